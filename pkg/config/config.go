// Package config manages TOML config for the rimeime process: tunables
// that apply across every schema rather than belonging to one of them
// (spec.md §10.2 distinguishes this "ops config" from schema config).
//
// InitConfig handles automatic config file creation and loading with
// fallback to defaults. LoadConfig and SaveConfig provide direct fs
// access for runtime changes. Update allows targeted parameter changes
// with persistence.
package config

import (
	"path/filepath"

	"github.com/Leon0824/rimeime/internal/logger"
	"github.com/Leon0824/rimeime/internal/utils"
)

var log = logger.New("config")

// Config holds the entire ops config structure.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	UserDb  UserDbConfig  `toml:"userdb"`
	Session SessionConfig `toml:"session"`
}

// ServerConfig has server-wide limits not carried by any one schema.
type ServerConfig struct {
	MaxLimit  int `toml:"max_limit"`
	MinPrefix int `toml:"min_prefix"`
	MaxPrefix int `toml:"max_prefix"`
}

// UserDbConfig holds the [userdb] settings. Path names the shared UserDb
// store under the user data directory. SnapshotEveryTicks is loaded and
// saved with the file, but pkg/userdb does not read it: the store
// snapshots every 50 ticks regardless.
type UserDbConfig struct {
	SnapshotEveryTicks int    `toml:"snapshot_every_ticks"`
	Path               string `toml:"path"`
}

// SessionConfig tunes session lifecycle bookkeeping (spec.md §6's
// create_session/destroy_session/cleanup_stale_sessions).
type SessionConfig struct {
	MaxSessions       int `toml:"max_sessions"`
	StaleAfterSeconds int `toml:"stale_after_seconds"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			MaxLimit:  100,
			MinPrefix: 1,
			MaxPrefix: 8,
		},
		UserDb: UserDbConfig{
			SnapshotEveryTicks: 50,
			Path:               "user.db",
		},
		Session: SessionConfig{
			MaxSessions:       64,
			StaleAfterSeconds: 3600,
		},
	}
}

// InitConfig loads config from file or creates the default if missing.
func InitConfig(configPath string) (*Config, error) {
	if err := utils.EnsureDir(filepath.Dir(configPath)); err != nil {
		return nil, err
	}
	if !utils.FileExists(configPath) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, configPath); err != nil {
			return nil, err
		}
		log.Debugf("created default config file at %s", configPath)
		return cfg, nil
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("failed to fully decode config, attempting partial recovery: %v", err)
		return recoverConfig(configPath), nil
	}
	return cfg, nil
}

// recoverConfig salvages whatever [server]/[userdb]/[session] keys it can
// from a config file too malformed for LoadConfig's strict decode,
// overlaying them onto DefaultConfig so one bad key doesn't discard every
// other tunable the file got right (spec.md §7: format errors are
// reported at the boundary, not propagated into every later read).
func recoverConfig(configPath string) *Config {
	cfg := DefaultConfig()
	data, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("no recoverable config at %s, using defaults: %v", configPath, err)
		return cfg
	}
	if server, ok := utils.ExtractSection(data, "server"); ok {
		if v, ok := utils.ExtractInt64(server, "max_limit"); ok {
			cfg.Server.MaxLimit = v
		}
		if v, ok := utils.ExtractInt64(server, "min_prefix"); ok {
			cfg.Server.MinPrefix = v
		}
		if v, ok := utils.ExtractInt64(server, "max_prefix"); ok {
			cfg.Server.MaxPrefix = v
		}
	}
	if userdb, ok := utils.ExtractSection(data, "userdb"); ok {
		if v, ok := utils.ExtractInt64(userdb, "snapshot_every_ticks"); ok {
			cfg.UserDb.SnapshotEveryTicks = v
		}
		if v, ok := userdb["path"].(string); ok {
			cfg.UserDb.Path = v
		}
	}
	if session, ok := utils.ExtractSection(data, "session"); ok {
		if v, ok := utils.ExtractInt64(session, "max_sessions"); ok {
			cfg.Session.MaxSessions = v
		}
		if v, ok := utils.ExtractInt64(session, "stale_after_seconds"); ok {
			cfg.Session.StaleAfterSeconds = v
		}
	}
	return cfg
}

// LoadConfig loads from a TOML file.
func LoadConfig(configPath string) (*Config, error) {
	var cfg Config
	if err := utils.LoadTOMLFile(configPath, &cfg); err != nil {
		log.Errorf("failed to decode config file: %v", err)
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig saves into a TOML file.
func SaveConfig(cfg *Config, configPath string) error {
	return utils.SaveTOMLFile(cfg, configPath)
}

// Update changes the config values in place and persists to configPath.
// Any nil pointer leaves that field untouched.
func (c *Config) Update(configPath string, maxLimit, minPrefix, maxPrefix *int, snapshotEveryTicks *int) error {
	if maxLimit != nil {
		c.Server.MaxLimit = *maxLimit
	}
	if minPrefix != nil {
		c.Server.MinPrefix = *minPrefix
	}
	if maxPrefix != nil {
		c.Server.MaxPrefix = *maxPrefix
	}
	if snapshotEveryTicks != nil {
		c.UserDb.SnapshotEveryTicks = *snapshotEveryTicks
	}
	return SaveConfig(c, configPath)
}

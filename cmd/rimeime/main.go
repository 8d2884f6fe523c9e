/*
Package main implements the rimeime session core and its commandline
interface.

rimeime turns romanized input (e.g. Pinyin) into ranked Chinese
candidates over a compiled Table/Prism dictionary plus a learning user
dictionary. It can run as a MessagePack IPC server, consumed by host
IME glue over process_key/get_context/get_commit (spec.md §6), or as a
standalone CLI for interactive debugging of one schema's pipeline.

# Server Mode

The server holds one shared UserDb and a registry of Dictionary mmaps,
both reused across every session it creates. Sessions are created
against a named schema and torn down independently.

# CLI Mode

The CLI drives a single Engine directly, without going through the
session/server layer, for quick manual testing of a schema's
syllabification and ranking.

# Config

Ops tunables are read from a TOML file (pkg/config), created with
defaults on first run. Per-schema behavior is read from the named
schema's YAML file (pkg/schema).
*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/Leon0824/rimeime/internal/utils"
	"github.com/Leon0824/rimeime/pkg/config"
	"github.com/Leon0824/rimeime/pkg/dictionary"
	"github.com/Leon0824/rimeime/pkg/engine"
	"github.com/Leon0824/rimeime/pkg/schema"
	"github.com/Leon0824/rimeime/pkg/server"
	"github.com/Leon0824/rimeime/pkg/syllable"
	"github.com/Leon0824/rimeime/pkg/translator"
	"github.com/Leon0824/rimeime/pkg/userdict"
)

const (
	Version = "0.1.0-beta"
	AppName = "rimeime"
	gh      = "https://github.com/Leon0824/rimeime"
)

// sigHandler prints a notice and exits with status 0 on SIGINT/SIGTERM.
// It calls os.Exit directly, so deferred cleanup such as srv.Finalize
// does not run.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

// main calls other packages to initialize the server or CLI. main()
// holds no pipeline logic itself and only manages the flow between
// flags, config, and the two run modes.
func main() {
	sigHandler()

	showVersion := flag.Bool("version", false, "Show current version")
	configFile := flag.String("config", "", "Path to custom rimeime.toml file")
	dataDir := flag.String("data", "data/", "Directory containing compiled .table.bin/.prism.bin files")
	userDataDir := flag.String("user-data", "user/", "Directory containing the shared user dictionary")
	schemaPath := flag.String("schema", "", "Path to the schema YAML file to run")
	debugMode := flag.Bool("v", false, "Toggle verbose mode")
	cliMode := flag.Bool("c", false, "Run a single schema directly over stdin -- useful for testing and debugging")

	flag.Parse()

	if *showVersion {
		printVersionBanner()
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	if *cliMode && *schemaPath == "" {
		log.Fatal("rimeime: -schema is required in CLI mode")
		os.Exit(1)
	}

	resolvedDataDir := *dataDir
	configPath := *configFile
	if pathResolver, err := utils.NewPathResolver(); err != nil {
		log.Warnf("rimeime: path resolver unavailable, using flags as given: %v", err)
	} else {
		if resolved, err := pathResolver.GetDataDir(*dataDir); err == nil {
			resolvedDataDir = resolved
		}
		if configPath == "" {
			if resolved, err := pathResolver.GetConfigPath("rimeime.toml"); err == nil {
				configPath = resolved
			}
		}
	}
	if configPath == "" {
		configPath = filepath.Join(*userDataDir, "rimeime.toml")
	}
	cfg, err := config.InitConfig(configPath)
	if err != nil {
		log.Fatalf("rimeime: failed to load config: %v", err)
		os.Exit(1)
	}
	log.Debugf("rimeime: using config file %s", configPath)

	if *cliMode {
		if err := runCLI(resolvedDataDir, *userDataDir, *schemaPath, cfg); err != nil {
			log.Fatalf("rimeime: cli error: %v", err)
			os.Exit(1)
		}
		return
	}

	srv, err := server.Initialize(server.Traits{SharedDataDir: resolvedDataDir, UserDataDir: *userDataDir}, cfg, configPath)
	if err != nil {
		log.Fatalf("rimeime: failed to initialize server: %v", err)
		os.Exit(1)
	}
	defer srv.Finalize()

	showStartupInfo(resolvedDataDir, *schemaPath)

	if err := srv.Serve(); err != nil {
		log.Fatalf("rimeime: server error: %v", err)
		os.Exit(1)
	}
}

// runCLI builds one Engine directly over schemaPath and drives it from
// stdin: each line is simulated as a key sequence, the resulting
// candidate menu is printed, and the top candidate is
// confirmed and committed before the next line is read.
func runCLI(dataDir, userDataDir, schemaPath string, cfg *config.Config) error {
	sch, err := schema.Load(schemaPath)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	d, err := dictionary.Load(dataDir, sch.Translator.Dictionary)
	if err != nil {
		return fmt.Errorf("load dictionary %s: %w", sch.Translator.Dictionary, err)
	}
	defer d.Close()

	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		return fmt.Errorf("create user data dir: %w", err)
	}
	u, err := userdict.Open(filepath.Join(userDataDir, cfg.UserDb.Path))
	if err != nil {
		return fmt.Errorf("open user dictionary: %w", err)
	}
	defer u.Close()

	syllabifier := syllable.New(d.Prism(), sch.Delimiters(), sch.Translator.EnableCompletion)
	tr := &translator.Translator{
		Dict:             d,
		UserDict:         u,
		EnableUserDict:   sch.Translator.EnableUserDict,
		EnableCompletion: sch.Translator.EnableCompletion,
		Delimiters:       sch.Delimiters(),
	}
	e := engine.New(syllabifier, tr, sch.Delimiters())

	fmt.Printf("rimeime CLI -- schema %s, ctrl+d to quit\n", sch.SchemaInfo.SchemaID)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !e.SimulateKeySequence(line) {
			fmt.Println("  (rejected: non-ASCII input)")
			continue
		}
		if seg := e.Context.Composition.LastSegment(); seg != nil && seg.Menu != nil {
			for i, c := range seg.Menu.Candidates() {
				fmt.Printf("  %d. %s\n", i+1, c.Text)
			}
		}
		if e.Select(0) {
			e.ConfirmCurrentSelection()
			fmt.Printf("  -> %s\n", e.Commit())
		}
	}
	return scanner.Err()
}

func printVersionBanner() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[rimeime] romanization input engine")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use --help to see available options")
	logger.Print("")
	logger.Print("Find out more at", "gh", gh)
}

// showStartupInfo displays basic info about the init process.
func showStartupInfo(dataDir, schemaPath string) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	println("===========")
	println(" rimeime ")
	println("===========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Info("init: OK")
	log.Infof("data dir: ( %s )", dataDir)
	if schemaPath != "" {
		log.Infof("schema: ( %s )", schemaPath)
	} else {
		log.Info("schema: chosen per create_session call")
	}
	log.Info("status: ready")
	println("===========")
	println("Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}

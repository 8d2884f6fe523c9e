// Package schema loads one input schema's YAML configuration: the
// per-schema knobs spec.md §6 names explicitly (schema id/version,
// translator/speller/engine pipeline settings, key-binder passthrough).
// Parsing anything beyond these keys is out of scope (spec.md §1's
// "schema YAML parsing beyond the named keys" Non-goal); unknown keys
// are simply ignored by yaml.v3's default decoding.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Leon0824/rimeime/internal/logger"
)

var log = logger.New("schema")

// Schema is the decoded form of one schema YAML file.
type Schema struct {
	SchemaInfo SchemaInfo `yaml:"schema"`
	Translator Translator `yaml:"translator"`
	Speller    Speller    `yaml:"speller"`
	Engine     Engine     `yaml:"engine"`
	KeyBinder  KeyBinder  `yaml:"key_binder"`
}

// SchemaInfo is the `schema/` block: identity, not behavior.
type SchemaInfo struct {
	SchemaID string `yaml:"schema_id"`
	Version  string `yaml:"version"`
}

// Translator is the `translator/` block.
type Translator struct {
	Dictionary       string `yaml:"dictionary"`
	EnableUserDict   bool   `yaml:"enable_user_dict"`
	EnableCompletion bool   `yaml:"enable_completion"`
	PreeditFormat    string `yaml:"preedit_format"`
}

// Speller is the `speller/` block.
type Speller struct {
	Alphabet  string `yaml:"alphabet"`
	Delimiter string `yaml:"delimiter"`
}

// Engine is the `engine/` block: named pipeline stages, registered and
// resolved elsewhere (spec.md §9's "tagged variants registered by
// name"). Schema loading itself only records the names.
type Engine struct {
	Processors  []string `yaml:"processors"`
	Segmentors  []string `yaml:"segmentors"`
	Translators []string `yaml:"translators"`
	Filters     []string `yaml:"filters"`
}

// KeyBinder is the `key_binder/` block. Bindings are read and carried
// through unmodified; no rebinding logic is implemented (out of scope,
// see SPEC_FULL.md §12).
type KeyBinder struct {
	Bindings []Binding `yaml:"bindings"`
}

// Binding is one key_binder/bindings[] entry, shaped after librime's
// own accept/send/when triple.
type Binding struct {
	Accept string `yaml:"accept"`
	Send   string `yaml:"send"`
	When   string `yaml:"when"`
}

// Load reads and decodes a schema YAML file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warnf("schema: read %s failed: %v", path, err)
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		log.Warnf("schema: parse %s failed: %v", path, err)
		return nil, fmt.Errorf("schema: parse %s: %w", path, err)
	}
	if s.SchemaInfo.SchemaID == "" {
		return nil, fmt.Errorf("schema: %s missing schema/schema_id", path)
	}
	return &s, nil
}

// Delimiters returns the speller delimiter set, defaulting to a single
// space when the schema doesn't set one (spec.md §4.3's Syllabifier
// takes an empty string to mean "delimiters disabled", which is a
// different, deliberate choice from "unset" here).
func (s *Schema) Delimiters() string {
	if s.Speller.Delimiter == "" {
		return " "
	}
	return s.Speller.Delimiter
}

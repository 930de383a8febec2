// Package config loads the mirror's YAML configuration and validates it
// against an embedded CUE schema before anything touches the database.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/poimirror/poimirror/internal/source"
)

//go:embed schema.cue
var schemaCUE string

// Scope names one sync source query. Scopes must partition the upstream
// working set: deletion inference and sync serialization treat each
// scope's entities as its own, so two scopes whose filters overlap will
// fight over the shared entities.
type Scope struct {
	Name   string `yaml:"name" json:"name"`
	Filter string `yaml:"filter" json:"filter"`
}

// Database holds storage settings.
type Database struct {
	Path string `yaml:"path" json:"path"`
}

// Source holds upstream fetch settings.
type Source struct {
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	UserAgent      string `yaml:"user_agent" json:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Sync holds the configured scopes.
type Sync struct {
	Scopes []Scope `yaml:"scopes" json:"scopes"`
}

// Report holds measurement windows, in days.
type Report struct {
	UpToDateDays int `yaml:"up_to_date_days" json:"up_to_date_days"`
	ActivityDays int `yaml:"activity_days" json:"activity_days"`
}

// Config is the full configuration tree.
type Config struct {
	Database Database `yaml:"database" json:"database"`
	Source   Source   `yaml:"source" json:"source"`
	Sync     Sync     `yaml:"sync" json:"sync"`
	Report   Report   `yaml:"report" json:"report"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: Database{Path: "poimirror.db"},
		Source: Source{
			Endpoint:       source.DefaultEndpoint,
			UserAgent:      "poimirror",
			TimeoutSeconds: 300,
		},
		// An explicit empty slice: a nil slice encodes as null, which
		// the schema's list constraint rejects.
		Sync: Sync{Scopes: []Scope{}},
		Report: Report{
			UpToDateDays: 365,
			ActivityDays: 30,
		},
	}
}

// Load reads, decodes and validates a config file. Missing fields fall
// back to Default values before validation runs.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML config bytes and validates the result.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate unifies the config with the embedded schema and requires a
// fully concrete result.
func Validate(cfg Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("validate config: compile schema: %w", err)
	}

	val := ctx.Encode(cfg)
	if err := val.Err(); err != nil {
		return fmt.Errorf("validate config: encode: %w", err)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// SourceTimeout returns the configured fetch timeout as a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// UpToDateWindow returns the up-to-date report window as a duration.
func (c Config) UpToDateWindow() time.Duration {
	return time.Duration(c.Report.UpToDateDays) * 24 * time.Hour
}

// ActivityWindow returns the activity report window as a duration.
func (c Config) ActivityWindow() time.Duration {
	return time.Duration(c.Report.ActivityDays) * 24 * time.Hour
}

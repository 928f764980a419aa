// Package config loads the idxdb CLI configuration.
//
// Sources, lowest precedence first:
//
//  1. defaults
//  2. global user config ($XDG_CONFIG_HOME/idxdb/config.json or
//     ~/.config/idxdb/config.json)
//  3. project config (.idxdb.json in the working directory), or the file
//     given with -c/--config instead
//  4. command-line overrides
//
// Files are JSONC: comments and trailing commas are allowed.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// FileName is the project config file name.
const FileName = ".idxdb.json"

var (
	ErrConfigInvalid      = errors.New("invalid config")
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrSchemaEmpty        = errors.New("schema cannot be empty")
	ErrDBEmpty            = errors.New("db cannot be empty for the sqlite backend")
	ErrUnknownBackend     = errors.New("unknown backend")
	ErrUnknownLogLevel    = errors.New("unknown log level")
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Schema   string `json:"schema"`
	Backend  string `json:"backend"`
	DB       string `json:"db,omitempty"`
	LogLevel string `json:"log_level"`

	// Resolved (computed, not serialized)
	EffectiveCwd string `json:"-"`
	SchemaAbs    string `json:"-"`
	DBAbs        string `json:"-"` // empty for the memory backend

	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // path if loaded
	Project string // path if loaded
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Schema:   "idxdb.schema.json",
		Backend:  BackendSQLite,
		DB:       "idxdb.sqlite",
		LogLevel: "warn",
	}
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLogLevel, c.LogLevel)
	}

	return level, nil
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd; empty means os.Getwd()
	ConfigPath      string            // -c/--config
	Overrides       Config            // non-empty fields win over files
	Env             map[string]string // environment variables
}

// Load merges all sources, validates the result and resolves paths against
// the working directory.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	globalPath := globalConfigPath(input.Env)
	if globalPath != "" {
		globalCfg, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = globalPath
			cfg = merge(cfg, globalCfg)
		}
	}

	projectCfg, projectPath, err := loadProject(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = merge(cfg, projectCfg)
	cfg = merge(cfg, input.Overrides)

	err = validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir
	cfg.SchemaAbs = resolve(workDir, cfg.Schema)

	if cfg.Backend == BackendSQLite {
		cfg.DBAbs = resolve(workDir, cfg.DB)
	}

	return cfg, nil
}

func resolve(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workDir, path)
}

// globalConfigPath returns the global config path, or "" when neither
// XDG_CONFIG_HOME nor HOME is set.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "idxdb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "idxdb", "config.json")
	}

	return ""
}

// loadProject loads .idxdb.json, or configPath when given (which must exist).
func loadProject(workDir, configPath string) (Config, string, error) {
	path := filepath.Join(workDir, FileName)
	mustExist := false

	if configPath != "" {
		path = resolve(workDir, configPath)
		mustExist = true

		_, statErr := os.Stat(path)
		if statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	}

	cfg, loaded, err := loadFile(path, mustExist)
	if err != nil || !loaded {
		return Config{}, "", err
	}

	return cfg, path, nil
}

// loadFile reads one config file. A missing optional file is not an error.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// An explicit "" would silently fall back to the lower layer.
	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if v, ok := raw["schema"].(string); ok && v == "" {
		return Config{}, ErrSchemaEmpty
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.Schema != "" {
		base.Schema = overlay.Schema
	}

	if overlay.Backend != "" {
		base.Backend = overlay.Backend
	}

	if overlay.DB != "" {
		base.DB = overlay.DB
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	return base
}

func validate(cfg Config) error {
	if cfg.Schema == "" {
		return ErrSchemaEmpty
	}

	switch cfg.Backend {
	case BackendSQLite:
		if cfg.DB == "" {
			return ErrDBEmpty
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: %q (want %s or %s)", ErrUnknownBackend, cfg.Backend, BackendSQLite, BackendMemory)
	}

	_, err := cfg.Level()

	return err
}

// Format renders the effective configuration as key=value lines followed by
// the loaded sources.
func Format(cfg Config) string {
	var b strings.Builder

	b.WriteString("effective_cwd=" + cfg.EffectiveCwd + "\n")
	b.WriteString("schema=" + cfg.SchemaAbs + "\n")
	b.WriteString("backend=" + cfg.Backend + "\n")

	if cfg.DBAbs != "" {
		b.WriteString("db=" + cfg.DBAbs + "\n")
	}

	b.WriteString("log_level=" + cfg.LogLevel + "\n")
	b.WriteString("\n# sources\n")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		b.WriteString("(defaults only)")

		return b.String()
	}

	var lines []string

	if cfg.Sources.Global != "" {
		lines = append(lines, "global_config="+cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		lines = append(lines, "project_config="+cfg.Sources.Project)
	}

	b.WriteString(strings.Join(lines, "\n"))

	return b.String()
}

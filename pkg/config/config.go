// Package config layers defaults, the migration-graph.toml file,
// MIGRATION_GRAPH_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ritzau/migration-graph/pkg/graph"
)

const (
	// FileName is the optional config file looked up in the working directory
	FileName = "migration-graph.toml"

	// EnvPrefix prefixes environment overrides, e.g. MIGRATION_GRAPH_PORT=9090
	EnvPrefix = "MIGRATION_GRAPH_"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for the application
type Config struct {
	Trace       string `koanf:"trace"`
	TraceCmd    string `koanf:"trace-command"`
	CallerRoot  string `koanf:"caller-root"`
	LibraryRoot string `koanf:"library-root"`
	Library     string `koanf:"library"`
	ScopeCache  int    `koanf:"scope-cache"`
	DB          string `koanf:"db"`
	JSON        string `koanf:"json"`
	WebMode     bool   `koanf:"web"`
	Port        int    `koanf:"port"`
	Watch       bool   `koanf:"watch"`
	Verbosity   string `koanf:"verbosity"`
	VerboseCnt  int    `koanf:"verbose"`
	LogFormat   string `koanf:"log-format"`
	Query       string `koanf:"query"`
	QueryKind   string `koanf:"query-kind"`
}

// Log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Defaults are the lowest priority layer
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"trace":         "",
		"trace-command": "",
		"caller-root":   ".",
		"library-root":  "",
		"library":       "",
		"scope-cache":   512,
		"db":            "",
		"json":          "",
		"web":           false,
		"port":          8080,
		"watch":         false,
		"verbosity":     "",
		"verbose":       0,
		"log-format":    LogFormatText,
		"query":         "",
		"query-kind":    string(graph.CallKindAll),
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return load(f, FileName)
}

func load(f *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// A missing file is fine, a broken one is not
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// envKey maps MIGRATION_GRAPH_CALLER_ROOT to caller-root
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}

// QueryMode reports whether the run reads a saved graph instead of building one
func (c *Config) QueryMode() bool {
	return c.Query != ""
}

// Validate checks the keys a build or query cannot run without
func (c *Config) Validate() error {
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("%w: log-format must be %s or %s, got %q", ErrInvalidConfig, LogFormatText, LogFormatJSON, c.LogFormat)
	}
	if c.QueryMode() {
		return c.validateQuery()
	}

	var missing []string
	if c.Trace == "" && c.TraceCmd == "" {
		missing = append(missing, "trace or trace-command")
	}
	if c.CallerRoot == "" {
		missing = append(missing, "caller-root")
	}
	if c.LibraryRoot == "" {
		missing = append(missing, "library-root")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.Trace != "" && c.TraceCmd != "" {
		return fmt.Errorf("%w: trace and trace-command are mutually exclusive", ErrInvalidConfig)
	}
	if c.ScopeCache <= 0 {
		return fmt.Errorf("%w: scope-cache must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validateQuery() error {
	if c.DB == "" {
		return fmt.Errorf("%w: query reads a saved graph and needs db", ErrInvalidConfig)
	}
	if c.WebMode || c.Watch {
		return fmt.Errorf("%w: query cannot be combined with web or watch", ErrInvalidConfig)
	}
	if _, err := graph.ParseCallKind(c.QueryKind); err != nil {
		return fmt.Errorf("%w: query-kind: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LibraryName returns the configured library name, falling back to the
// last element of the library root
func (c *Config) LibraryName() string {
	if c.Library != "" {
		return c.Library
	}
	root := strings.TrimRight(c.LibraryRoot, `/\`)
	if i := strings.LastIndexAny(root, `/\`); i >= 0 {
		return root[i+1:]
	}
	return root
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

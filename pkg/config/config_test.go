package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func testFlags() *pflag.FlagSet {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.String("trace", "", "")
	f.String("caller-root", ".", "")
	f.String("library-root", "", "")
	f.Int("port", 8080, "")
	f.Bool("web", false, "")
	f.CountP("verbose", "v", "")
	return f
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil, filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Port != 8080 || cfg.ScopeCache != 512 || cfg.CallerRoot != "." || cfg.LogFormat != LogFormatText || cfg.QueryKind != "all" {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.QueryMode() {
		t.Error("Defaults should not select query mode")
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := `
trace = "/tmp/calls.tsv"
library-root = "/venv/requests"
port = 7000
scope-cache = 64
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MIGRATION_GRAPH_PORT", "7100")
	t.Setenv("MIGRATION_GRAPH_CALLER_ROOT", "/src/app")
	t.Setenv("MIGRATION_GRAPH_LOG_FORMAT", "json")

	f := testFlags()
	if err := f.Parse([]string{"--port", "7200", "-vv"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(f, path)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Trace != "/tmp/calls.tsv" {
		t.Errorf("Trace from file = %q", cfg.Trace)
	}
	if cfg.ScopeCache != 64 {
		t.Errorf("ScopeCache from file = %d", cfg.ScopeCache)
	}
	if cfg.CallerRoot != "/src/app" {
		t.Errorf("CallerRoot from env = %q", cfg.CallerRoot)
	}
	if cfg.Port != 7200 {
		t.Errorf("Port should come from flags, got %d", cfg.Port)
	}
	if cfg.VerboseCnt != 2 {
		t.Errorf("VerboseCnt = %d, want 2", cfg.VerboseCnt)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat from env = %q", cfg.LogFormat)
	}
}

func TestLoadBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("port = = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := load(nil, path); err == nil {
		t.Error("Expected error for malformed TOML")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Trace:       "calls.tsv",
		CallerRoot:  "/src/app",
		LibraryRoot: "/venv/requests",
		Port:        8080,
		ScopeCache:  16,
		LogFormat:   LogFormatText,
		QueryKind:   "all",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no trace", mutate: func(c *Config) { c.Trace = "" }, wantErr: true},
		{name: "trace command", mutate: func(c *Config) { c.Trace, c.TraceCmd = "", "python -m tracer run.py" }},
		{name: "trace and command", mutate: func(c *Config) { c.TraceCmd = "python -m tracer run.py" }, wantErr: true},
		{name: "no library root", mutate: func(c *Config) { c.LibraryRoot = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "zero cache", mutate: func(c *Config) { c.ScopeCache = 0 }, wantErr: true},
		{name: "json logs", mutate: func(c *Config) { c.LogFormat = LogFormatJSON }},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "query without trace", mutate: func(c *Config) {
			c.Trace, c.LibraryRoot, c.Query, c.DB = "", "", "caller|views.py|index", "graph.db"
		}},
		{name: "query without db", mutate: func(c *Config) { c.Query = "caller|views.py|index" }, wantErr: true},
		{name: "query with web", mutate: func(c *Config) {
			c.Query, c.DB, c.WebMode = "caller|views.py|index", "graph.db", true
		}, wantErr: true},
		{name: "query bad kind", mutate: func(c *Config) {
			c.Query, c.DB, c.QueryKind = "caller|views.py|index", "graph.db", "indirect"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLibraryName(t *testing.T) {
	if got := (&Config{LibraryRoot: "/venv/site-packages/requests/"}).LibraryName(); got != "requests" {
		t.Errorf("LibraryName() = %q", got)
	}
	if got := (&Config{LibraryRoot: "/x", Library: "httpx"}).LibraryName(); got != "httpx" {
		t.Errorf("LibraryName() = %q", got)
	}
}

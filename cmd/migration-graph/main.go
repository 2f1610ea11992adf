package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ritzau/migration-graph/pkg/analysis"
	"github.com/ritzau/migration-graph/pkg/config"
	"github.com/ritzau/migration-graph/pkg/graph"
	"github.com/ritzau/migration-graph/pkg/logging"
	"github.com/ritzau/migration-graph/pkg/model"
	"github.com/ritzau/migration-graph/pkg/output"
	"github.com/ritzau/migration-graph/pkg/storage"
	"github.com/ritzau/migration-graph/pkg/trace"
	"github.com/ritzau/migration-graph/pkg/watcher"
	"github.com/ritzau/migration-graph/pkg/web"
)

func main() {
	flags := pflag.NewFlagSet("migration-graph", pflag.ExitOnError)
	flags.String("trace", "", "Path to the execution trace (tab separated call records)")
	flags.String("trace-command", "", "Run this instrumented command in --caller-root and parse the trace it prints")
	flags.String("caller-root", ".", "Root directory of the codebase being migrated")
	flags.String("library-root", "", "Install directory of the tracked library")
	flags.String("library", "", "Name of the tracked library (default: last element of --library-root)")
	flags.Int("scope-cache", 512, "Number of parsed source files kept per build")
	flags.String("db", "", "Write the call graph to this SQLite database")
	flags.String("json", "", "Write the call graph as JSON to this file")
	flags.Bool("web", false, "Start web server instead of printing to console")
	flags.Int("port", 8080, "Port for web server (only used with --web)")
	flags.Bool("watch", false, "Rebuild when the trace or caller sources change (requires --web)")
	flags.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	flags.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	flags.String("log-format", config.LogFormatText, "Log output format: text, json")
	flags.String("query", "", "Print the callers and callees of this function key from --db instead of building")
	flags.String("query-kind", string(graph.CallKindAll), "Calls followed by --query: direct, transitive, all")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.LogFormat == config.LogFormatJSON {
		logging.SetJSONOutput(level)
	} else {
		logging.SetLevel(level)
	}

	if cfg.QueryMode() {
		return query(cfg)
	}
	if cfg.Watch && !cfg.WebMode {
		return fmt.Errorf("%w: --watch requires --web", config.ErrInvalidConfig)
	}

	callerRoot, err := filepath.Abs(cfg.CallerRoot)
	if err != nil {
		return err
	}
	libraryRoot, err := filepath.Abs(cfg.LibraryRoot)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var source trace.Source = trace.NewFileSource(cfg.Trace)
	if cfg.TraceCmd != "" {
		source = trace.NewCommandSource(cfg.TraceCmd, callerRoot)
	}

	var server *web.Server
	opts := analysis.RunnerOptions{
		Source:         source,
		CallerRoot:     callerRoot,
		LibraryRoot:    libraryRoot,
		LibraryName:    cfg.LibraryName(),
		ScopeCacheSize: cfg.ScopeCache,
	}
	if cfg.WebMode {
		server = web.NewServer()
		opts.Sink = server
	}

	runner, err := analysis.NewRunner(opts)
	if err != nil {
		return err
	}

	if !cfg.WebMode {
		result, err := runner.Run(ctx, "command line")
		if err != nil {
			return err
		}
		if err := export(cfg, result); err != nil {
			return err
		}
		output.PrintMigrationReport(os.Stdout, cfg.LibraryName(), result)
		return nil
	}

	return serve(ctx, cfg, server, runner, callerRoot)
}

// serve runs the web server, builds once and then on every debounced change
func serve(ctx context.Context, cfg *config.Config, server *web.Server, runner *analysis.Runner, callerRoot string) error {
	errc := make(chan error, 1)
	go func() { errc <- server.Start(cfg.Port) }()

	rebuild := func(reason string) {
		result, err := runner.Run(ctx, reason)
		if err != nil {
			// The server keeps the previous graph
			logging.Error("Build failed", "reason", reason, "error", err)
			return
		}
		if err := export(cfg, result); err != nil {
			logging.Error("Export failed", "error", err)
		}
	}

	go rebuild("initial build")

	if cfg.Watch {
		fw, err := watcher.NewFileWatcher(cfg.Trace, callerRoot)
		if err != nil {
			return err
		}
		if err := fw.Start(ctx); err != nil {
			return err
		}
		debouncer := watcher.NewDebouncer(fw.Events(), 500*time.Millisecond, 5*time.Second)
		debouncer.Start(ctx)

		go func() {
			for batch := range debouncer.Output() {
				rebuild(batch.Reason())
			}
		}()
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// query prints a function of a saved graph with its neighbors
func query(cfg *config.Config) error {
	if _, err := os.Stat(cfg.DB); err != nil {
		return fmt.Errorf("opening %s: %w", cfg.DB, err)
	}
	kind, err := graph.ParseCallKind(cfg.QueryKind)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.Neighborhood(cfg.Query, kind)
	if err != nil {
		return err
	}
	output.PrintFunctionQuery(os.Stdout, n)
	return nil
}

// export writes the optional JSON and SQLite outputs
func export(cfg *config.Config, result *analysis.Result) error {
	if cfg.JSON != "" {
		f, err := os.Create(cfg.JSON)
		if err != nil {
			return fmt.Errorf("creating %s: %w", cfg.JSON, err)
		}
		werr := model.FromCallGraph(result.Graph, graph.CallKindAll).Write(f)
		if err := f.Close(); werr == nil {
			werr = err
		}
		if werr != nil {
			return werr
		}
		logging.Info("Wrote JSON export", "path", cfg.JSON)
	}

	if cfg.DB != "" {
		db, err := storage.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SaveGraph(result.Graph); err != nil {
			return fmt.Errorf("saving graph to %s: %w", cfg.DB, err)
		}
		stats, err := db.Stats()
		if err != nil {
			return err
		}
		logging.Info("Saved call graph", "path", cfg.DB,
			"functions", stats.Functions, "direct", stats.DirectCalls, "transitive", stats.TransitiveCalls)
	}
	return nil
}

// Command shannon-mcpd is the session supervisor daemon: it resolves the
// Claude Code CLI binary, spawns and tracks sessions, persists checkpoints,
// and exposes all of it as an MCP tool surface over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/binaryresolver"
	"github.com/shannon-mcp/shannon-mcp/internal/checkpoint"
	"github.com/shannon-mcp/shannon-mcp/internal/config"
	"github.com/shannon-mcp/shannon-mcp/internal/db"
	"github.com/shannon-mcp/shannon-mcp/internal/event"
	"github.com/shannon-mcp/shannon-mcp/internal/logging"
	"github.com/shannon-mcp/shannon-mcp/internal/registry"
	"github.com/shannon-mcp/shannon-mcp/internal/rpcserver"
	"github.com/shannon-mcp/shannon-mcp/internal/supervisor"
)

const version = "1.0.0"

func main() {
	var (
		directory = flag.String("directory", "", "project directory to load .shannon-mcp/config.json from")
		logLevel  = flag.String("log-level", "", "override the configured log level")
		logToFile = flag.Bool("log-file", false, "also write logs to a timestamped file under the daemon's log directory")
		printVer  = flag.Bool("version", false, "print the version and exit")
	)
	flag.Parse()

	if *printVer {
		fmt.Println(version)
		return
	}

	workDir := *directory
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "shannon-mcpd: resolve working directory:", err)
			os.Exit(1)
		}
		workDir = wd
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		fmt.Fprintln(os.Stderr, "shannon-mcpd: prepare data directory:", err)
		os.Exit(1)
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "shannon-mcpd: load config:", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Logging.Level)
	if *logLevel != "" {
		logCfg.Level = logging.ParseLevel(*logLevel)
	}
	logCfg.Pretty = cfg.Logging.Pretty
	logCfg.LogToFile = cfg.Logging.LogToFile || *logToFile
	logCfg.LogDir = paths.LogsDir()
	logging.Init(logCfg)
	defer logging.Close()

	logging.Info().Str("dataRoot", paths.Root).Msg("starting shannon-mcpd")

	regDB, err := db.Open(paths.ProcessRegistryDBPath())
	if err != nil {
		logging.Fatal().Err(err).Msg("open process registry database")
	}
	defer regDB.Close()
	if err := db.MigrateProcessRegistry(regDB); err != nil {
		logging.Fatal().Err(err).Msg("migrate process registry database")
	}

	sessDB, err := db.Open(paths.SessionsDBPath())
	if err != nil {
		logging.Fatal().Err(err).Msg("open sessions database")
	}
	defer sessDB.Close()
	if err := db.MigrateSessions(sessDB); err != nil {
		logging.Fatal().Err(err).Msg("migrate sessions database")
	}

	bus := event.NewBus()
	defer bus.Close()

	reg := registry.New(regDB, paths, bus, cfg.Registry)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := reg.Start(ctx); err != nil {
		logging.Fatal().Err(err).Msg("start process registry")
	}
	defer reg.Stop()

	resolver := binaryresolver.New(cfg.Binary, reg)
	checkpoints := checkpoint.New(sessDB, paths, bus, cfg.Checkpoint)

	sup := supervisor.New(cfg.Concurrency, cfg.Decoder, cfg.Checkpoint, cfg.Agent, paths, resolver, reg, checkpoints, bus)
	sup.Start(ctx)

	if _, err := resolver.Resolve(ctx, false); err != nil {
		logging.Warn().Err(err).Msg("no claude binary resolved at startup; find_binary will retry on demand")
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- rpcserver.Serve(sup, checkpoints, resolver)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			logging.Error().Err(err).Msg("rpc server exited")
		} else {
			logging.Info().Msg("stdin closed, shutting down")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	sup.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/sightbridge/moondream-mcp/internal/browser"
	"github.com/sightbridge/moondream-mcp/internal/config"
	"github.com/sightbridge/moondream-mcp/internal/moondream"
	"github.com/sightbridge/moondream-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "moondream-mcp",
	Short: "MCP server exposing Moondream vision analysis",
	Long: `moondream-mcp is an MCP (Model Context Protocol) server that gives
MCP clients three vision tools backed by a locally hosted Moondream model:

  test             Echo a message to verify the connection
  analyze_image    Caption, detect objects in, or question a local image
  analyze_webpage  Screenshot a URL in a headless browser and question it

On startup the server provisions a Python runtime with uv, downloads the
model weights if needed and launches the inference process. Once the
backend answers, the MCP protocol is served over stdin/stdout. All logs
go to stderr; stdout carries only protocol frames.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision the backend without serving",
	Long: `Runs the full backend setup (uv, virtualenv, Python packages, model
download, readiness check) and exits. Useful for warming a machine
before the first MCP client connects.`,
	RunE: runSetup,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("moondream-mcp %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default "+config.DefaultFile+" in the working directory, if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Both output paths point at stderr
// because stdout belongs to the MCP protocol.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(parsed)

	return zcfg.Build()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting moondream-mcp",
		zap.String("version", Version),
		zap.String("commit", GitCommit))

	supervisor := moondream.NewSupervisor(cfg.Backend, logger)
	capturer := browser.NewCapturer(cfg.Browser, logger)

	// shutdown tears down both owned singletons exactly once, whichever
	// path reaches it first. Both teardowns are themselves idempotent.
	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			var eg errgroup.Group
			eg.Go(func() error {
				supervisor.Cleanup()
				return nil
			})
			eg.Go(capturer.Close)
			if err := eg.Wait(); err != nil {
				logger.Warn("shutdown", zap.Error(err))
			}
		})
	}
	defer shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.Stringer("signal", sig))
		shutdown()
		_ = logger.Sync()
		os.Exit(0)
	}()

	// The backend must be up before the first request is read; a client
	// that connects mid-setup would only see tool failures.
	if err := supervisor.Setup(context.Background()); err != nil {
		shutdown()
		return fmt.Errorf("backend setup: %w", err)
	}

	srv := server.New(*cfg, moondream.NewClient(cfg.Backend, logger), capturer, logger)
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	logger.Info("stdin closed, shutting down")
	return nil
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	supervisor := moondream.NewSupervisor(cfg.Backend, logger)
	defer supervisor.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := supervisor.Setup(ctx); err != nil {
		return fmt.Errorf("backend setup: %w", err)
	}
	logger.Info("backend provisioned and answering", zap.String("base_url", cfg.Backend.BaseURL()))
	return nil
}

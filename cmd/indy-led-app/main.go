// Command indy-led-app is the app-side entry point of the Indy Sim LED display.
//
// Race data flows backend -> arduino-router -> sketch; this process only
// keeps the app alive by running the idle loop.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	ledapp "github.com/st-keller/indy-led-app"
	"github.com/st-keller/indy-led-app/config"
	"github.com/st-keller/indy-led-app/idle"
	"github.com/st-keller/indy-led-app/logging"
	"github.com/st-keller/indy-led-app/metrics"
	"github.com/st-keller/indy-led-app/standard"
	"github.com/st-keller/indy-led-app/transport"
)

// Version information, set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "indy-led-app",
		Short:        "Keeps the Indy Sim LED display app running",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the app host with the idle loop (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "indy-led-app %s (%s)\n", Version, GitCommit)
		},
	})

	return root
}

func run(ctx context.Context, opts *options, stdout io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if cfg.App.Version == "dev" {
		cfg.App.Version = Version
	}

	recent := standard.NewRecentLogs(cfg.Log.Recent)
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stdout,
	}, recent)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	loopMetrics := metrics.New()
	app, err := ledapp.New(ledapp.Config{
		Name:      cfg.App.Name,
		Version:   cfg.App.Version,
		Heartbeat: cfg.App.Heartbeat,
	},
		ledapp.WithLogger(logger),
		ledapp.WithRecentLogs(recent),
		ledapp.WithMetrics(loopMetrics),
	)
	if err != nil {
		logger.Error("failed to create app", zap.Error(err))
		return err
	}

	idleOpts := []idle.Option{idle.WithDelay(cfg.Loop.Delay)}
	if cfg.Loop.StatusPrint {
		idleOpts = append(idleOpts, idle.WithStatusPrint(stdout))
	}
	idler := idle.New(idleOpts...)
	if err := app.RegisterUserLoop(idler.Loop); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return app.Run(gctx)
	})

	if cfg.Status.Enabled {
		srv := transport.NewStatusServer(cfg.Status.Addr, app, loopMetrics.Registry(), logger)
		g.Go(srv.Run)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("app exited with error", zap.Error(err))
		return err
	}
	return nil
}

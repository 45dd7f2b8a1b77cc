package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/searchlet/chatbridge/internal/backend"
	"github.com/searchlet/chatbridge/internal/bridge"
	"github.com/searchlet/chatbridge/internal/browser"
	"github.com/searchlet/chatbridge/internal/cdp"
	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/events"
	"github.com/searchlet/chatbridge/internal/link"
	"github.com/searchlet/chatbridge/internal/scheduler"
	"github.com/searchlet/chatbridge/internal/store"
	"github.com/searchlet/chatbridge/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge control service",
	Long: `Starts the HTTP control service. The browser process itself is spawned
on demand through the API, not at startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	loader := newLoader()
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)

	binaryPath, err := browser.ResolveBinaryPath(cfg.Browser.BinaryPath)
	if err != nil {
		return err
	}
	cfg.Browser.BinaryPath = binaryPath

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.New(256)
	defer bus.Close()

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	cdpClient := cdp.NewClient(cfg.Browser.DebugPort, cfg.Browser.TargetURL)
	defer cdpClient.Close()

	controller := browser.NewController(cfg.Browser, logger, bus)
	probe := link.NewProbe(cfg.Probe, cdpClient, controller, bus, logger)
	commandBridge := bridge.New(cfg.Bridge, cdpClient, controller, logger)

	var notifier core.BackendNotifier
	if client := backend.New(cfg.Backend, logger); client != nil {
		notifier = client
	}

	sched := scheduler.New(cfg.Sync, controller, st, notifier, bus, logger)

	serverOpts := []web.ServerOption{web.WithStore(st)}
	if notifier != nil {
		serverOpts = append(serverOpts, web.WithNotifier(notifier))
	}
	server := web.NewServer(cfg.Server, controller, probe, sched, commandBridge, bus, logger, serverOpts...)

	commandBridge.Start()
	defer commandBridge.Stop()
	sched.Start()
	defer sched.Stop()

	// The probe follows the process lifecycle: it polls while a process runs
	// and is reset for the next spawn.
	lifecycleCh := bus.Subscribe(events.TypeProcessStarted, events.TypeProcessStopped)
	defer bus.Unsubscribe(lifecycleCh)
	go func() {
		for ev := range lifecycleCh {
			switch ev.EventType() {
			case events.TypeProcessStarted:
				probe.Reset()
				if err := probe.Start(ctx); err != nil {
					logger.Warn("link probe start failed", "error", err.Error())
				}
			case events.TypeProcessStopped:
				probe.Stop()
			}
		}
	}()

	watcher, err := config.NewWatcher(loader, logger.Logger, func(next *config.Config) {
		controller.SetIdleTimings(next.Browser.IdleTimeout, next.Browser.IdleCheckInterval)
		sched.SetInterval(next.Sync.Interval)
	})
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err.Error())
	} else {
		defer watcher.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})

	logger.Info("chatbridge started", "version", appVersion)
	err = g.Wait()

	// Leave no browser behind on shutdown.
	controller.Shutdown()
	probe.Stop()
	return err
}

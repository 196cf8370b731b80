package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/ExamShell/backend/internal/bridge"
	"github.com/GriffinCanCode/ExamShell/backend/internal/config"
	"github.com/GriffinCanCode/ExamShell/backend/internal/engine/fetch"
	"github.com/GriffinCanCode/ExamShell/backend/internal/enforcer"
	"github.com/GriffinCanCode/ExamShell/backend/internal/engine/sandbox"
	"github.com/GriffinCanCode/ExamShell/backend/internal/logging"
	"github.com/GriffinCanCode/ExamShell/backend/internal/monitoring"
	"github.com/GriffinCanCode/ExamShell/backend/internal/server"
	"github.com/GriffinCanCode/ExamShell/backend/internal/session"
	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
	"github.com/GriffinCanCode/ExamShell/backend/internal/ws"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a session on the sandbox engine until interrupted",
		Args:  cobra.NoArgs,
	}
	flags := newSettingsFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		exam, err := flags.configuration()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, config.LoadOrDefault(), exam)
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config, exam *settings.Configuration) error {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := monitoring.NewMetrics()
	hub := ws.NewHub(logger.Named("events"), metrics)
	host := enforcer.Hosts{hub, enforcer.HostFuncs{
		OnAddressChanged: func(windowID, url string) {
			logger.Debug("Address changed", zap.String("window_id", windowID), zap.String("url", url))
		},
		OnLoadFailed: func(windowID string, code int, message string, isMainFrame bool, url string) {
			if isMainFrame {
				logger.Warn("Page failed to load",
					zap.String("window_id", windowID),
					zap.Int("code", code),
					zap.String("message", message),
					zap.String("url", url))
			}
		},
	}}
	sessions := session.NewManager(logger, metrics,
		session.WithHost(host),
		session.WithBridgeLimits(bridge.Limits{
			MessagesPerSecond: cfg.Bridge.MessagesPerSecond,
			Burst:             cfg.Bridge.Burst,
		}),
	)

	sess, err := sessions.Start(ctx, exam)
	if err != nil {
		return err
	}
	defer func() {
		if err := sessions.End(); err != nil {
			logger.Warn("Failed to end session", zap.Error(err))
		}
	}()

	var resolver sandbox.Resolver
	if !cfg.Sandbox.Offline {
		fc := fetch.DefaultConfig()
		fc.Timeout = cfg.Sandbox.FetchTimeout
		resolver = fetch.New(fc, logger.Named("fetch")).Resolver(sess.Context())
	}

	sbx := sandbox.DefaultConfig()
	sbx.ScriptTimeout = cfg.Sandbox.ScriptTimeout
	browser := sandbox.New(sbx, resolver, logger.Named("sandbox"))
	defer func() { _ = browser.Close() }()

	if _, err := sess.Start(browser); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Diagnostics.Enabled {
		srv := server.New(server.Options{
			Config:      cfg.Diagnostics,
			Development: cfg.Logging.Development,
			Sessions:    sessions,
			Hub:         hub,
			Metrics:     metrics,
			Logger:      logger.Named("diagnostics"),
		})
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	logger.Info("Exam shell running", zap.String("session_id", sess.ID().String()))
	return g.Wait()
}

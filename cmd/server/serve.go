package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lk2023060901/agent-bridge/internal/conf"
	"github.com/lk2023060901/agent-bridge/internal/pkg/injector"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the /api/messages webhook server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := config.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return serve(config, log)
		},
	}
}

func serve(config *conf.Config, log *logger.Logger) error {
	app, cleanup, err := injector.InitializeApp(config, log)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.HTTPServer.Start()
	}()

	log.Info("agent bridge started",
		zap.String("addr", config.Server.Addr()),
		zap.String("mode", string(config.Serving.Mode)),
		zap.String("state_driver", app.Data.Driver),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error("HTTP server failed", zap.Error(serveErr))
		}
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()
	app.Shutdown(ctx)

	log.Info("server exited")
	return serveErr
}

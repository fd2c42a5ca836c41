package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/agent-bridge/internal/conf"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
)

var configFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	root := &cobra.Command{
		Use:           "agent-bridge",
		Short:         "Bot Framework bridge to Databricks serving endpoints and Genie spaces",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (yaml)")

	root.AddCommand(serve, newAskCmd(), newSpaceCmd())
	return root
}

// loadConfig 读取 .env 与配置文件并初始化日志
func loadConfig() (*conf.Config, *logger.Logger, error) {
	// .env 可选
	_ = godotenv.Load()

	config, err := conf.LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(log)

	return config, log, nil
}

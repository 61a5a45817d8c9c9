package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/bootstrap"
	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfgPath  string
		once     string
		logLevel string
	)

	root := &cobra.Command{
		Use:   "chatcli",
		Short: "Chat with the life insurance assistant from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_ = godotenv.Load()
			cfg, err := config.LoadFrom(cfgPath)
			if err != nil {
				return err
			}
			log := logger.New(logLevel, "console")
			defer func() { _ = log.Sync() }()

			app, err := bootstrap.New(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("initialize assistant: %w", err)
			}
			defer func() {
				if err := app.Close(context.Background()); err != nil {
					log.Warn("cleanup failed", zap.Error(err))
				}
			}()

			repl := NewREPL(app.Conversation, cmd.InOrStdin(), cmd.OutOrStdout())
			if once != "" {
				return repl.Once(ctx, once)
			}
			return repl.Run(ctx)
		},
	}

	root.Flags().StringVarP(&cfgPath, "config", "c", os.Getenv("LIFELINE_CONFIG"), "config file")
	root.Flags().StringVar(&once, "once", "", "answer a single question and exit")
	root.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	return root
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mnemo/internal/bot"
	"mnemo/internal/config"
	"mnemo/internal/llm"
	"mnemo/internal/logging"
	"mnemo/internal/memory"
	"mnemo/internal/observability"
	"mnemo/internal/session"
	"mnemo/internal/session/filestore"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mnemo",
		Short: "Chat assistant with daily-consolidated memory",
		Long: `Mnemo bridges Telegram and generative-model providers. It keeps a
per-user conversation history, folds past days into compact summaries,
and answers with the combined context.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("mnemo: ")+err.Error())
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.GetLogger()
	defer logger.Close()
	logger.Info("Starting mnemo")

	metrics, err := observability.NewMetrics(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, err := filestore.New(cfg.StateFile)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	fmt.Println(green("✓") + " state: " + cfg.StateFile)

	factory := llm.NewFactory(map[session.ProviderID]llm.Config{
		session.ProviderGemini: {
			APIKey:  cfg.Providers.Gemini.APIKey,
			Model:   cfg.Providers.Gemini.Model,
			Timeout: cfg.Providers.Gemini.Timeout,
		},
		session.ProviderOpenAI: {
			APIKey:  cfg.Providers.OpenAI.APIKey,
			Model:   cfg.Providers.OpenAI.Model,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Timeout: cfg.Providers.OpenAI.Timeout,
		},
	})
	dispatcher := llm.NewDispatcher(factory, metrics)
	consolidator := memory.NewConsolidator(dispatcher, metrics, cfg.Consolidation.Threshold)

	tg := bot.NewTelegramClient(cfg.Telegram.Token, cfg.Telegram.PollTimeout)
	handler := bot.NewHandler(tg, store, dispatcher, consolidator, metrics)
	runner := bot.NewRunner(tg, handler, cfg.Telegram.PollTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		fmt.Println(green("✓") + " polling for updates")
		return runner.Run(ctx)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	fmt.Println(yellow("shutting down"))
	if err := metrics.Shutdown(context.Background()); err != nil {
		logger.Warn("Metrics shutdown: %v", err)
	}
	logger.Info("Stopped")
	return nil
}

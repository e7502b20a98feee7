package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linebridge/internal/bridge"
	"linebridge/internal/config"
	"linebridge/internal/journal"
	"linebridge/internal/line"
	"linebridge/internal/metrics"
	"linebridge/internal/provider"
	"linebridge/internal/server"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "linebridge",
		Short: "linebridge: LINE webhook to chat-completion bridge",
		Long:  "linebridge receives LINE messaging webhooks, forwards the user's text to an OpenAI-compatible chat-completions API, and pushes the reply back to the sender.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.linebridge/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Println("Set OPENAI_API_KEY, LINE_CHANNEL_ACCESS_TOKEN, and LINE_CHANNEL_SECRET in the environment (or a .env file) before running 'linebridge serve'.")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// Pick up secrets from a local .env when present.
	_ = godotenv.Load()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.Log.Level)

	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.apiKey is not set (set OPENAI_API_KEY)")
	}
	if cfg.Line.ChannelAccessToken == "" {
		return fmt.Errorf("line.channelAccessToken is not set (set LINE_CHANNEL_ACCESS_TOKEN)")
	}
	if cfg.Line.ChannelSecret == "" {
		logger.Warn("line.channelSecret not set, webhook signature verification disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	completer := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		APIBase: cfg.OpenAI.APIBase,
		Model:   cfg.OpenAI.Model,
		Timeout: time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	if err := completer.Healthy(ctx); err != nil {
		logger.Warn("completion API unhealthy at startup", "err", err)
	} else {
		logger.Info("completion API healthy", "model", completer.Model())
	}

	pusher := line.NewClient(line.ClientConfig{
		AccessToken: cfg.Line.ChannelAccessToken,
		Logger:      logger,
	})

	handler := bridge.NewHandler(bridge.HandlerConfig{
		Completer: completer,
		Pusher:    pusher,
		Logger:    logger,
	})

	var jstore *journal.Store
	if cfg.Journal.Enabled {
		jstore, err = journal.Open(cfg.Journal.DBPath, logger)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer jstore.Close()
		logger.Info("delivery journal enabled", "path", cfg.Journal.DBPath)
	}

	metricsEP := ""
	if cfg.Metrics.Enabled {
		metricsEP = cfg.Metrics.Endpoint
	}

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		WebhookPath:     cfg.Server.WebhookPath,
		ChannelSecret:   cfg.Line.ChannelSecret,
		Handler:         handler,
		Journal:         jstore,
		Collector:       metrics.NewCollector(),
		MetricsEndpoint: metricsEP,
		Logger:          logger,
	})

	return srv.Start(ctx)
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List config values (credentials redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

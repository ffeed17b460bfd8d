package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomchat/internal/chatlog"
	"roomchat/internal/config"
	"roomchat/internal/domain"
	"roomchat/internal/metrics"
	"roomchat/internal/relay"
	"roomchat/internal/session"
	"roomchat/internal/ui"
	"roomchat/internal/upload"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// .env is optional; credential env vars may come from the shell instead.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "roomchat",
		Short: "roomchat: room-scoped real-time messaging client",
		Long:  "roomchat joins a named room on a message relay, exchanges text messages and file attachments, and uploads attachments out-of-band via signed URLs.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.roomchat/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(uploadCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	var room string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect to the relay and chat interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(room)
		},
	}
	cmd.Flags().StringVarP(&room, "room", "r", "", "room to join on startup")
	return cmd
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	return cfg
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runChat(room string) error {
	cfg := loadConfig()
	logger = newLogger(cfg.General.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Addr)
	}

	cred := domain.Credential{
		Company:     cfg.Credential.Company,
		AccessToken: cfg.Credential.AccessToken,
	}

	channel, err := relay.Dial(ctx, relay.Config{
		URL:         cfg.Relay.URL,
		DialTimeout: time.Duration(cfg.Relay.DialTimeoutSeconds) * time.Second,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer channel.Close()

	uploader := upload.New(upload.Config{
		AuthorizeURL: cfg.Upload.AuthorizeURL,
		Credential:   cred,
		Timeout:      time.Duration(cfg.Upload.TimeoutSeconds) * time.Second,
		MaxSizeBytes: cfg.Upload.MaxSizeBytes,
		Logger:       logger,
	})

	log := chatlog.New()
	sess := session.New(session.Config{
		Channel:    channel,
		Uploader:   uploader,
		Log:        log,
		Credential: cred,
		Logger:     logger,
	})

	term := ui.New(ui.Config{
		Session:  sess,
		Uploader: uploader,
		Log:      log,
		Logger:   logger,
	})

	// Exit the REPL when the relay connection drops.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-channel.Done()
		if err := channel.Err(); err != nil {
			logger.Error("relay connection lost", "err", err)
		}
		cancel()
	}()

	return term.Run(runCtx, room)
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a single file via the signed-URL exchange and print its URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger = newLogger(cfg.General.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			uploader := upload.New(upload.Config{
				AuthorizeURL: cfg.Upload.AuthorizeURL,
				Credential: domain.Credential{
					Company:     cfg.Credential.Company,
					AccessToken: cfg.Credential.AccessToken,
				},
				Timeout:      time.Duration(cfg.Upload.TimeoutSeconds) * time.Second,
				MaxSizeBytes: cfg.Upload.MaxSizeBytes,
				Logger:       logger,
			})

			if err := uploader.Select(ctx, args[0]); err != nil {
				return err
			}
			att := uploader.Take()
			if att == nil {
				return fmt.Errorf("upload did not produce a URL")
			}
			fmt.Println(att.RemoteURL)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("roomchat", version)
		},
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "err", err)
	}
}

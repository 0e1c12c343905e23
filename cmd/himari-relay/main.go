// ABOUTME: Entry point for himari-relay
// ABOUTME: Bridges OneBot group chats to the ChatGPT backend

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/himari-bot/himari-relay/internal/chatgpt"
	"github.com/himari-bot/himari-relay/internal/config"
	"github.com/himari-bot/himari-relay/internal/relay"
)

const banner = `
    ╭──────────────────────────────────╮
    │                                  │
    │   ╻ ╻╻┏┳┓┏━┓┏━┓╻   ┏━┓┏━╸╻  ┏━┓  │
    │   ┣━┫┃┃┃┃┣━┫┣┳┛┃   ┣┳┛┣╸ ┃  ┣━┫  │
    │   ╹ ╹╹╹ ╹╹ ╹╹┗╸╹   ╹┗╸┗━╸┗━╸╹ ╹  │
    │                                  │
    │       himari chatgpt relay       │
    │                                  │
    ╰──────────────────────────────────╯
`

// getConfigPath returns the path to the relay config file.
// Priority: HIMARI_RELAY_CONFIG env var > XDG_CONFIG_HOME/himari/relay.yaml > ~/.config/himari/relay.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HIMARI_RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "relay.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "himari", "relay.yaml")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Pull local overrides into the environment before config expansion
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env: %w", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging)

	// Print startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:  %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Model:   %s\n", cfg.OpenAI.Model)
	green.Print("    ▶ ")
	fmt.Printf("Command: %s\n", cfg.Relay.CommandPrefix)
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gpt, err := chatgpt.NewClient(chatgpt.Options{
		BaseURL:     cfg.OpenAI.BaseURL,
		AuthBaseURL: cfg.OpenAI.AuthBaseURL,
		Model:       cfg.OpenAI.Model,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating chatgpt client: %w", err)
	}

	if cfg.OpenAI.AccessToken != "" {
		gpt.LoginWithToken(cfg.OpenAI.AccessToken)
		logger.Info("using injected access token")
	} else {
		logger.Info("logging in", "username", cfg.OpenAI.Username)
		if err := gpt.Login(ctx, cfg.OpenAI.Username, cfg.OpenAI.Password); err != nil {
			return fmt.Errorf("logging in: %w", err)
		}
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: relay.NewServer(gpt, cfg.Server.AccessToken, cfg.Relay.CommandPrefix, logger).Routes(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("onebot websocket server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/raine/telegram-fastkale-bot/config"
	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/harness"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
	"github.com/raine/telegram-fastkale-bot/internal/tui"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var baseURL, device, token, logFile string

	cmd := &cobra.Command{
		Use:          "fastkale-scan [image]...",
		Short:        "Scan an item and add it to the cart from the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(logFile); err != nil {
				return err
			}

			config.LoadEnvFile()
			cfg, err := config.LoadDefault()
			if err != nil {
				return err
			}
			if baseURL != "" {
				cfg.API.BaseURL = baseURL
			}
			if device != "" {
				cfg.API.Device = device
			}
			dev, err := fastkale.ParseDevice(cfg.API.Device)
			if err != nil {
				return err
			}

			accessToken, err := resolveToken(cfg, token)
			if err != nil {
				return err
			}

			images, err := scanflow.LoadImageFiles(args)
			if err != nil {
				return err
			}

			client := fastkale.NewClient(fastkale.ClientOpts{BaseURL: cfg.API.BaseURL, Device: dev})
			tokens := scanflow.TokenFunc(func() string { return accessToken })
			model := tui.New(context.Background(), client, tokens, images)

			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "backend base URL")
	cmd.Flags().StringVar(&device, "device", "", "send device headers: mobile or laptop")
	cmd.Flags().StringVar(&token, "token", "", "access token (default "+harness.TokenEnv+" or the harness session)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write debug logs to this file")
	return cmd
}

// resolveToken uses the flag or environment first. The stored harness
// session is only opened when neither is set.
func resolveToken(cfg *config.Config, flag string) (string, error) {
	if t := strings.TrimSpace(flag); t != "" {
		return t, nil
	}
	if t := strings.TrimSpace(os.Getenv(harness.TokenEnv)); t != "" {
		return t, nil
	}
	if cfg.Storage.TokenKey == "" {
		return "", harness.ErrNoToken
	}

	key, err := storage.DeriveKey(cfg.Storage.TokenKey)
	if err != nil {
		return "", err
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.DBPath, key)
	if err != nil {
		return "", err
	}
	defer store.Close()
	return harness.ResolveToken("", store)
}

// setupLogging keeps log output off the terminal the TUI draws on.
func setupLogging(path string) error {
	if path == "" {
		zerolog.SetGlobalLevel(zerolog.Disabled)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return nil
}

package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/raine/telegram-fastkale-bot/config"
	"github.com/raine/telegram-fastkale-bot/internal/bot"
	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
	"github.com/raine/telegram-fastkale-bot/internal/watcher"
)

const logFileName = "telegram-fastkale-bot.log"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	config.LoadEnvFile()

	cfg, err := config.LoadDefault()
	if err != nil {
		config.FatalWithWait("failed to load config: %v", err)
	}

	if missing := cfg.Missing(); len(missing) > 0 {
		if config.IsInteractiveTerminal() {
			if !config.RunSetupWizard() {
				config.WaitOnWindows()
				os.Exit(1)
			}
			// The wizard exported the new values
			if cfg, err = config.LoadDefault(); err != nil {
				config.FatalWithWait("failed to load config: %v", err)
			}
		} else {
			config.FatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
	}

	// JOURNAL_STREAM is set by systemd; journald keeps the logs there.
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			config.FatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	if err := config.ValidateBaseURL(cfg.API.BaseURL); err != nil {
		config.FatalWithWait("invalid backend URL: %v", err)
	}
	device, err := fastkale.ParseDevice(cfg.API.Device)
	if err != nil {
		config.FatalWithWait("%v", err)
	}
	pollInterval, err := cfg.PollInterval()
	if err != nil {
		config.FatalWithWait("%v", err)
	}

	tg, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		config.FatalWithWait("failed to initialize telegram bot: %v", err)
	}
	tg.Debug = false
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

	bot.RegisterCommands(tg)

	encryptionKey, err := storage.DeriveKey(cfg.Storage.TokenKey)
	if err != nil {
		config.FatalWithWait("failed to derive encryption key: %v", err)
	}

	sessionStore, err := storage.NewSQLiteStore(cfg.Storage.DBPath, encryptionKey)
	if err != nil {
		config.FatalWithWait("failed to initialize session store: %v", err)
	}
	defer sessionStore.Close()
	log.Info().Str("dbPath", cfg.Storage.DBPath).Msg("session store initialized")

	if err := bot.InitFlowLog("."); err != nil {
		log.Warn().Err(err).Msg("failed to initialize flow log")
	}

	client := fastkale.NewClient(fastkale.ClientOpts{BaseURL: cfg.API.BaseURL, Device: device})
	log.Info().Str("baseURL", cfg.API.BaseURL).Str("device", cfg.API.Device).Msg("backend client initialized")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := bot.NewBot(tg, sessionStore, client, cfg.Bot.AdminID)
	defer b.Shutdown()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runBot(ctx, tg, b)
	})

	watcherService := watcher.NewService(sessionStore, client, tg, pollInterval)
	g.Go(func() error {
		watcherService.Run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, b *bot.Bot) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}

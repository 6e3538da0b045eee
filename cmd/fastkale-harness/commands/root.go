package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/raine/telegram-fastkale-bot/config"
	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/harness"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
)

// app is what every subcommand runs against. It is built in
// PersistentPreRunE from config and flags.
type app struct {
	client *fastkale.Client
	store  *storage.SQLiteStore
	rec    *harness.Recorder
	out    io.Writer
}

type rootFlags struct {
	baseURL string
	device  string
	token   string
	dbPath  string
	debug   bool
}

func Execute() error {
	return NewRootCmd(os.Stdout).Execute()
}

// NewRootCmd builds the command tree writing results to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	var flags rootFlags
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "fastkale-harness",
		Short:         "Call the FastKale backend endpoints one at a time",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(flags)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.store != nil {
				a.store.Close()
			}
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.baseURL, "base-url", "", "backend base URL (default from FASTKALE_API_BASE_URL or "+config.DefaultBaseURL+")")
	pf.StringVar(&flags.device, "device", "", "send device headers: mobile or laptop")
	pf.StringVar(&flags.token, "token", "", "access token (default "+harness.TokenEnv+" or the stored session)")
	pf.StringVar(&flags.dbPath, "db", "", "session and call log database (default from FASTKALE_DB_PATH)")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		authCmd(a, &flags),
		scanCmd(a, &flags),
		confirmCmd(a, &flags),
		priceCmd(a, &flags),
		overrideCmd(a, &flags),
		cartCmd(a, &flags),
		offerCmd(a, &flags),
		logCmd(a),
	)
	return root
}

func (a *app) init(flags rootFlags) error {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if flags.debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()
	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	if flags.baseURL != "" {
		cfg.API.BaseURL = flags.baseURL
	}
	if flags.device != "" {
		cfg.API.Device = flags.device
	}
	if flags.dbPath != "" {
		cfg.Storage.DBPath = flags.dbPath
	}
	if err := config.ValidateBaseURL(cfg.API.BaseURL); err != nil {
		return err
	}

	device, err := fastkale.ParseDevice(cfg.API.Device)
	if err != nil {
		return err
	}
	if cfg.Storage.TokenKey == "" {
		return fmt.Errorf("FASTKALE_TOKEN_KEY is required to keep the session and call log")
	}
	key, err := storage.DeriveKey(cfg.Storage.TokenKey)
	if err != nil {
		return err
	}
	a.store, err = storage.NewSQLiteStore(cfg.Storage.DBPath, key)
	if err != nil {
		return err
	}

	a.client = fastkale.NewClient(fastkale.ClientOpts{BaseURL: cfg.API.BaseURL, Device: device})
	a.rec = harness.NewRecorder(a.client, a.store, a.out)
	log.Debug().Str("baseURL", a.client.BaseURL()).Str("device", string(device)).Msg("harness ready")
	return nil
}

// token resolves the bearer token for an authenticated call.
func (a *app) token(flags *rootFlags) (string, error) {
	return harness.ResolveToken(flags.token, a.store)
}

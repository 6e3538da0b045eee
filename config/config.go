package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	AppName      = "telegram-fastkale-bot"
	EnvFileName  = "config.env"
	YAMLFileName = "config.yaml"

	DefaultBaseURL = "http://localhost:54321/functions/v1"
	DefaultDBPath  = "sessions.db"
)

// Config holds the bot, harness and TUI configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Bot     BotConfig     `yaml:"bot"`
	Storage StorageConfig `yaml:"storage"`
	Watcher WatcherConfig `yaml:"watcher"`
}

// APIConfig configures the backend connection.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Device  string `yaml:"device"` // mobile, laptop or empty
}

// BotConfig configures the Telegram bot.
type BotConfig struct {
	Token   string `yaml:"token"`
	AdminID int64  `yaml:"admin_id"`
}

// StorageConfig configures the session database.
type StorageConfig struct {
	DBPath   string `yaml:"db_path"`
	TokenKey string `yaml:"token_key"`
}

// WatcherConfig configures the offer watcher.
type WatcherConfig struct {
	PollInterval string `yaml:"poll_interval"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		API:     APIConfig{BaseURL: DefaultBaseURL},
		Storage: StorageConfig{DBPath: DefaultDBPath},
		Watcher: WatcherConfig{PollInterval: "5m"},
	}
}

// Dir returns the application's config directory path.
// Creates the directory if it doesn't exist.
func Dir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// EnvFilePath returns the full path to the env file.
func EnvFilePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	path, err := EnvFilePath()
	if err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// Load reads the YAML config at path (a missing file yields defaults) and
// applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDefault loads config.yaml from the user config directory.
func LoadDefault() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return Load("")
	}
	return Load(filepath.Join(dir, YAMLFileName))
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("FASTKALE_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("FASTKALE_DEVICE"); v != "" {
		c.API.Device = v
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv("ADMIN_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ADMIN_TELEGRAM_ID must be a valid integer: %w", err)
		}
		c.Bot.AdminID = id
	}
	if v := os.Getenv("FASTKALE_TOKEN_KEY"); v != "" {
		c.Storage.TokenKey = v
	}
	if v := os.Getenv("FASTKALE_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("OFFER_POLL_INTERVAL"); v != "" {
		c.Watcher.PollInterval = v
	}
	return nil
}

// Missing returns the names of the settings the bot cannot start without.
func (c *Config) Missing() []string {
	var missing []string
	if c.Bot.Token == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if c.Storage.TokenKey == "" {
		missing = append(missing, "FASTKALE_TOKEN_KEY")
	}
	if c.Bot.AdminID == 0 {
		missing = append(missing, "ADMIN_TELEGRAM_ID")
	}
	return missing
}

// PollInterval parses the watcher interval. Empty means the watcher default.
func (c *Config) PollInterval() (time.Duration, error) {
	if c.Watcher.PollInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Watcher.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll interval %q: %w", c.Watcher.PollInterval, err)
	}
	return d, nil
}

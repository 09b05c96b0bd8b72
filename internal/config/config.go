package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the resolved fridgewatch configuration.
type Config struct {
	APIURL          string `validate:"required,url"`
	WebURL          string `validate:"required,url"`
	PollInterval    int    `validate:"gte=1,lte=3600"`
	HistoryInterval int    `validate:"gte=1,lte=86400"`
	PushListen      string `validate:"required,hostname_port"`
	PushPublicURL   string `validate:"required,url"`
	DataDir         string `validate:"required"`
	LogFile         string `validate:"required"`
	LogLevel        string `validate:"oneof=debug info warn error"`
	OpenCommand     string
}

const (
	defaultConfigPath      = "~/.config/fridgewatch/config.toml"
	defaultDataDir         = "~/.local/share/fridgewatch"
	defaultAPIURL          = "http://127.0.0.1:5000/api"
	defaultPollInterval    = 5
	defaultHistoryInterval = 30
	defaultPushListen      = "127.0.0.1:8743"
	defaultLogLevel        = "info"
	defaultOpenCommand     = "xdg-open"
)

// Environment variables that override api_url, highest precedence first.
// VITE_API_URL is honored so a web build's .env can be shared.
var apiURLEnv = []string{"FRIDGEWATCH_API_URL", "VITE_API_URL"}

var validate = validator.New()

// Load reads the config file at path, falling back to defaults when it is
// missing. A .env file in the working directory is loaded first, and
// environment variables take precedence over the file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	raw, err := readFile(resolved)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIURL:          strings.TrimSpace(raw.APIURL),
		WebURL:          strings.TrimSpace(raw.WebURL),
		PollInterval:    raw.PollInterval,
		HistoryInterval: raw.HistoryInterval,
		PushListen:      strings.TrimSpace(raw.PushListen),
		PushPublicURL:   strings.TrimSpace(raw.PushPublicURL),
		DataDir:         strings.TrimSpace(raw.DataDir),
		LogFile:         strings.TrimSpace(raw.LogFile),
		LogLevel:        strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		OpenCommand:     strings.TrimSpace(raw.OpenCommand),
	}
	for _, key := range apiURLEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			cfg.APIURL = v
			break
		}
	}
	if v := strings.TrimSpace(os.Getenv("FRIDGEWATCH_LOG_LEVEL")); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type fileConfig struct {
	APIURL          string `toml:"api_url"`
	WebURL          string `toml:"web_url"`
	PollInterval    int    `toml:"poll_interval"`
	HistoryInterval int    `toml:"history_interval"`
	PushListen      string `toml:"push_listen"`
	PushPublicURL   string `toml:"push_public_url"`
	DataDir         string `toml:"data_dir"`
	LogFile         string `toml:"log_file"`
	LogLevel        string `toml:"log_level"`
	OpenCommand     string `toml:"open_command"`
}

func readFile(path string) (fileConfig, error) {
	var raw fileConfig
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return raw, nil
		}
		return raw, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return raw, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return raw, fmt.Errorf("parse config: %w", err)
	}
	return raw, nil
}

func (c *Config) applyDefaults() error {
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	if c.WebURL == "" {
		c.WebURL = originOf(c.APIURL)
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.HistoryInterval == 0 {
		c.HistoryInterval = defaultHistoryInterval
	}
	if c.PushListen == "" {
		c.PushListen = defaultPushListen
	}
	if c.PushPublicURL == "" {
		c.PushPublicURL = "http://" + c.PushListen
	}
	c.PushPublicURL = strings.TrimRight(c.PushPublicURL, "/")
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.OpenCommand == "" {
		c.OpenCommand = defaultOpenCommand
	}

	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	dir, err := expandPath(c.DataDir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	c.DataDir = dir

	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "fridgewatch.log")
	}
	logFile, err := expandPath(c.LogFile)
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	c.LogFile = logFile
	return nil
}

// PollEvery is the status poll interval.
func (c Config) PollEvery() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// HistoryEvery is the history refresh interval.
func (c Config) HistoryEvery() time.Duration {
	return time.Duration(c.HistoryInterval) * time.Second
}

// KeystorePath is where the local push subscription is kept.
func (c Config) KeystorePath() string {
	return filepath.Join(c.DataDir, "push.toml")
}

// originOf returns scheme://host/ of an absolute URL, or the input when it
// cannot be parsed; validation reports the latter.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host + "/"
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
)

const defaultWorkbook = "Hunter_Logging"

var ErrMissingToken = errors.New("DISCORD_BOT_TOKEN is not set")

// Config holds the settings from the credentials file overlaid by the
// environment.
type Config struct {
	Driver        string `json:"driver"`
	DataDir       string `json:"path"`
	DSN           string `json:"dsn"`
	Token         string `json:"token"`
	Workbook      string `json:"workbook"`
	Outbox        bool   `json:"outbox"`
	Notify        bool   `json:"notify"`
	Workers       int    `json:"workers"`
	KeepAliveAddr string `json:"keepalive_addr"`
	KeepAliveURL  string `json:"keepalive_url"`

	LoginSheet  string `json:"login_sheet"`
	LogoutSheet string `json:"logout_sheet"`
	StatsSheet  string `json:"stats_sheet"`

	// CredentialsPath is the file the config was read from.
	CredentialsPath string `json:"-"`
}

func defaults() Config {
	return Config{
		Driver:      "xlsx",
		DataDir:     ".",
		Workbook:    defaultWorkbook,
		Workers:     4,
		LoginSheet:  "Logins",
		LogoutSheet: "Logouts",
		StatsSheet:  "Statistics",
	}
}

// credentialCandidates lists the credentials files tried in order.
func credentialCandidates() []string {
	candidates := []string{"credentials.json"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "hunterlog", "credentials.json"))
	}
	return candidates
}

// LoadConfig reads the credentials file and applies environment overrides.
// explicit, or HUNTERLOG_CREDENTIALS, replaces the candidate search.
func LoadConfig(explicit string) (Config, error) {
	if explicit == "" {
		explicit = os.Getenv("HUNTERLOG_CREDENTIALS")
	}

	paths := credentialCandidates()
	if explicit != "" {
		paths = []string{explicit}
	}

	var errs []error
	for _, path := range paths {
		cfg, err := loadFrom(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return applyEnv(cfg), nil
	}
	return Config{}, fmt.Errorf("no readable credentials file: %w", errors.Join(errs...))
}

func loadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.CredentialsPath = path
	return cfg, nil
}

func applyEnv(cfg Config) Config {
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("HUNTERLOG_WORKBOOK"); v != "" {
		cfg.Workbook = v
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg
}

// RequireToken is checked by commands that connect to the gateway.
func (c Config) RequireToken() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

func (c Config) WorkbookPath() string {
	return filepath.Join(c.DataDir, c.Workbook+".xlsx")
}

func (c Config) SQLitePath() string {
	return filepath.Join(c.DataDir, c.Workbook+".db")
}

func (c Config) OutboxPath() string {
	return filepath.Join(c.DataDir, "outbox.db")
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the default config file name inside the config directory.
const FileName = "wallet.yaml"

// Config represents the top-level wallet.yaml configuration.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	User      UserConfig      `yaml:"user,omitempty"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Activity  ActivityConfig  `yaml:"activity"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// BackendConfig points the client at the remote backend.
type BackendConfig struct {
	URL         string        `yaml:"url"`
	AnonKey     string        `yaml:"anon_key"`
	AccessToken string        `yaml:"access_token,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
}

// UserConfig overrides the identity derived from the access token.
type UserConfig struct {
	ID string `yaml:"id,omitempty"`
}

// TransferConfig holds the client-side instant transfer limits and timings.
// Amounts are whole DZD.
type TransferConfig struct {
	MinAmount          int64         `yaml:"min_amount"`
	MaxAmount          int64         `yaml:"max_amount"`
	SearchDebounce     time.Duration `yaml:"search_debounce"`
	ResetAfter         time.Duration `yaml:"reset_after"`
	ReloadAfter        time.Duration `yaml:"reload_after"`
	DefaultDescription string        `yaml:"default_description"`
}

// ActivityConfig controls the local activity log.
type ActivityConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir,omitempty"` // defaults to the config directory
}

// DevServerConfig configures the development backend.
type DevServerConfig struct {
	Listen       string `yaml:"listen"`
	JWTSecret    string `yaml:"jwt_secret"`
	Store        string `yaml:"store"` // "memory" or "postgres"
	PostgresDSN  string `yaml:"postgres_dsn,omitempty"`
	DailyLimit   int64  `yaml:"daily_limit"`
	MonthlyLimit int64  `yaml:"monthly_limit"`
}

// Load reads a wallet.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for local development.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:     "http://127.0.0.1:54321",
			AnonKey: "dev-anon-key",
			Timeout: 30 * time.Second,
		},
		Transfer: TransferConfig{
			MinAmount:          100,
			MaxAmount:          100000,
			SearchDebounce:     300 * time.Millisecond,
			ResetAfter:         5 * time.Second,
			ReloadAfter:        time.Second,
			DefaultDescription: "Instant transfer",
		},
		Activity: ActivityConfig{
			Enabled: true,
		},
		DevServer: DevServerConfig{
			Listen:       "127.0.0.1:54321",
			JWTSecret:    "dev-jwt-secret-change-me",
			Store:        "memory",
			DailyLimit:   500000,
			MonthlyLimit: 2000000,
		},
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.URL == "" {
		errs = append(errs, errors.New("backend.url is required"))
	}
	if c.Backend.AnonKey == "" {
		errs = append(errs, errors.New("backend.anon_key is required"))
	}
	if c.Transfer.MinAmount <= 0 {
		errs = append(errs, errors.New("transfer.min_amount must be positive"))
	}
	if c.Transfer.MaxAmount < c.Transfer.MinAmount {
		errs = append(errs, fmt.Errorf("transfer.max_amount (%d) is below min_amount (%d)", c.Transfer.MaxAmount, c.Transfer.MinAmount))
	}
	if c.Transfer.SearchDebounce < 0 || c.Transfer.ResetAfter < 0 {
		errs = append(errs, errors.New("transfer timings must not be negative"))
	}
	switch c.DevServer.Store {
	case "", "memory":
	case "postgres":
		if c.DevServer.PostgresDSN == "" {
			errs = append(errs, errors.New("devserver.postgres_dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("devserver.store %q is not one of memory, postgres", c.DevServer.Store))
	}
	return errors.Join(errs...)
}

// Dir returns the default config directory ($WALLET_HOME or the user config dir).
func Dir() (string, error) {
	if home := os.Getenv("WALLET_HOME"); home != "" {
		return home, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(base, "wallet"), nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. For each setting the first
// non-empty variable in the list wins.
func (c *Config) ApplyEnv() {
	if v := firstEnv("WALLET_URL", "SUPABASE_URL", "VITE_SUPABASE_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := firstEnv("WALLET_ANON_KEY", "SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY"); v != "" {
		c.Backend.AnonKey = v
	}
	if v := firstEnv("WALLET_ACCESS_TOKEN"); v != "" {
		c.Backend.AccessToken = v
	}
	if v := firstEnv("WALLET_USER_ID"); v != "" {
		c.User.ID = v
	}
	if v := firstEnv("WALLET_JWT_SECRET"); v != "" {
		c.DevServer.JWTSecret = v
	}
	if v := firstEnv("WALLET_POSTGRES_DSN"); v != "" {
		c.DevServer.PostgresDSN = v
		c.DevServer.Store = "postgres"
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			return v
		}
	}
	return ""
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the daemon configuration, loaded from config.toml with
// environment overrides for deploy-specific values and secrets.
type Config struct {
	DataDir    string `toml:"data_dir"`
	ListenAddr string `toml:"listen_addr"`

	Provider ProviderConfig `toml:"provider"`
	Blob     BlobConfig     `toml:"blob"`
	Sync     SyncConfig     `toml:"sync"`
}

// ProviderConfig configures the upstream messaging-provider API client.
type ProviderConfig struct {
	BaseURL       string   `toml:"base_url"`
	Token         string   `toml:"token"`
	RatePerSecond float64  `toml:"rate_per_second"`
	Warmup        Duration `toml:"warmup"`
}

// BlobConfig configures the blob storage collaborator.
type BlobConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// SyncConfig holds page sizes, ceilings and policy toggles for the sync engine.
type SyncConfig struct {
	ChatPageSize      int      `toml:"chat_page_size"`
	ChatLimit         int      `toml:"chat_limit"`
	AttendeeLimit     int      `toml:"attendee_limit"`
	MessagePageSize   int      `toml:"message_page_size"`
	MessageLimit      int      `toml:"message_limit"`
	IncludeOrgContent bool     `toml:"include_org_content"`
	SinglePage        bool     `toml:"single_page"`
	BulkChunkSize     int      `toml:"bulk_chunk_size"`
	BulkConcurrency   int      `toml:"bulk_concurrency"`
	OwnerRefreshEvery Duration `toml:"owner_refresh_every"`
}

// Duration wraps time.Duration for TOML decoding of values like "3s" or "24h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:    filepath.Join(home, ".inboxd"),
		ListenAddr: "127.0.0.1:8744",
		Provider: ProviderConfig{
			RatePerSecond: 4,
			Warmup:        Duration{3 * time.Second},
		},
		Sync: SyncConfig{
			ChatPageSize:      20,
			ChatLimit:         500,
			AttendeeLimit:     100,
			MessagePageSize:   50,
			MessageLimit:      250,
			BulkChunkSize:     25,
			BulkConcurrency:   4,
			OwnerRefreshEvery: Duration{24 * time.Hour},
		},
	}
}

// Load reads config from the given path, merged over defaults. A missing file
// is not an error: defaults plus environment overrides are returned.
func Load(path string) (*Config, error) {
	// .env is optional; it only seeds the process environment.
	_ = godotenv.Load()

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv lets deploy environments override file values; secrets are
// expected to arrive this way rather than committed in config.toml.
func applyEnv(cfg *Config) {
	if v := os.Getenv("INBOXD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("INBOXD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("INBOXD_PROVIDER_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("INBOXD_PROVIDER_TOKEN"); v != "" {
		cfg.Provider.Token = v
	}
	if v := os.Getenv("INBOXD_BLOB_URL"); v != "" {
		cfg.Blob.BaseURL = v
	}
	if v := os.Getenv("INBOXD_BLOB_TOKEN"); v != "" {
		cfg.Blob.Token = v
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// DBPath returns the sqlite database path under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "inboxd.db")
}

// LogPath returns the daemon log file path under the data dir.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "inboxd.log")
}

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddr   string `toml:"listen_addr"`
	DatabasePath string `toml:"database_path"`

	// ExternalURL is the base URL vendors reach this server at. It is the
	// target prefix for provisioned webhooks.
	ExternalURL string `toml:"external_url"`

	// TenantID namespaces provisioned vendor-side resources so two
	// installations can share one vendor account.
	TenantID string `toml:"tenant_id"`

	// TLS
	TLSMode      string `toml:"tls_mode"` // "autocert", "selfsigned", "manual", "none"
	Domain       string `toml:"domain"`    // for autocert
	CertFile     string `toml:"cert_file"` // for manual
	KeyFile      string `toml:"key_file"`  // for manual
	CertCacheDir string `toml:"cert_cache_dir"`

	// Auth
	AdminPasswordHash string `toml:"admin_password_hash"`
	IngestKeyHash     string `toml:"ingest_key_hash"`

	// Ingestion
	PollIntervalMinutes int `toml:"poll_interval_minutes"`
	AlertRetentionDays  int `toml:"alert_retention_days"`
}

func DefaultServerConfig() *Config {
	return &Config{
		ListenAddr:          ":8080",
		DatabasePath:        defaultDatabasePath(),
		TenantID:            "default",
		TLSMode:             "none",
		CertCacheDir:        defaultCertCacheDir(),
		PollIntervalMinutes: 5,
		AlertRetentionDays:  90,
	}
}

func LoadServerConfig(path string) (*Config, error) {
	cfg := DefaultServerConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read server config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	return cfg, nil
}

func SaveServerConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open config for writing: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func DefaultServerConfigPath() string {
	switch runtime.GOOS {
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "AlertBridge", "server.toml")
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".config", "alertbridge", "server.toml")
		}
	}
	return "/etc/alertbridge/server.toml"
}

func defaultDatabasePath() string {
	switch runtime.GOOS {
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "AlertBridge", "alertbridge.db")
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", "alertbridge", "alertbridge.db")
		}
	}
	return "/var/lib/alertbridge/alertbridge.db"
}

func defaultCertCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "AlertBridge", "certs")
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", "alertbridge", "certs")
		}
	}
	return "/var/lib/alertbridge/certs"
}

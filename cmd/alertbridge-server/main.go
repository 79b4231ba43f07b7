package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alertbridge/alertbridge/internal/ingest"
	"github.com/alertbridge/alertbridge/internal/server"
	"github.com/alertbridge/alertbridge/internal/service"
	"github.com/alertbridge/alertbridge/internal/store"
	"github.com/alertbridge/alertbridge/internal/version"
)

func main() {
	configPath := flag.String("config", server.DefaultServerConfigPath(), "path to config file")
	setup := flag.Bool("setup", false, "run initial setup")
	serviceInstall := flag.Bool("service-install", false, "install as a system service (auto-detects init system)")
	serviceUninstall := flag.Bool("service-uninstall", false, "remove the system service")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String())
		os.Exit(0)
	}

	if *serviceInstall {
		binPath, _ := os.Executable()
		cfgAbs, _ := filepath.Abs(*configPath)
		if err := service.Install("alertbridge-server", binPath, cfgAbs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	if *serviceUninstall {
		if err := service.Uninstall("alertbridge-server"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := server.LoadServerConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	if *setup || cfg.AdminPasswordHash == "" {
		if err := runSetup(cfg, *configPath); err != nil {
			logger.Error("setup failed", "err", err)
			os.Exit(1)
		}
	}

	// Ensure database directory exists
	dbDir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		logger.Error("failed to create database directory", "path", dbDir, "err", err)
		os.Exit(1)
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DatabasePath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	logger.Info("database ready", "path", cfg.DatabasePath)

	interval := ingest.DefaultInterval
	if cfg.PollIntervalMinutes > 0 {
		interval = time.Duration(cfg.PollIntervalMinutes) * time.Minute
	}
	retention := ingest.DefaultAlertRetention
	if cfg.AlertRetentionDays > 0 {
		retention = time.Duration(cfg.AlertRetentionDays) * 24 * time.Hour
	}

	// Start the ingest poller
	poller := ingest.NewPoller(st, logger, interval, retention)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	srv := server.New(cfg, st, poller, logger)

	logger.Info("AlertBridge Server starting",
		"version", version.Version,
		"addr", cfg.ListenAddr,
		"tls", cfg.TLSMode)

	// Graceful shutdown on SIGTERM/SIGINT
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServeTLS()
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down gracefully", "signal", sig)
		cancel() // Stop the poller
		logger.Info("server stopped")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
			cancel()
			os.Exit(1)
		}
	}
}

func runSetup(cfg *server.Config, configPath string) error {
	fmt.Println("=== AlertBridge Server Setup ===")
	fmt.Println()

	// Admin password
	if cfg.AdminPasswordHash == "" {
		fmt.Print("Set admin password: ")
		var pw string
		fmt.Scanln(&pw)
		if pw == "" {
			return fmt.Errorf("admin password is required")
		}
		hash, err := server.HashPassword(pw)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		cfg.AdminPasswordHash = hash
	}

	// Ingest key: the shared secret provisioned vendor webhooks send back
	if cfg.IngestKeyHash == "" {
		fmt.Print("Set ingest key (used by provisioned vendor webhooks): ")
		var key string
		fmt.Scanln(&key)
		if key == "" {
			return fmt.Errorf("ingest key is required")
		}
		hash, err := server.HashPassword(key)
		if err != nil {
			return fmt.Errorf("hash ingest key: %w", err)
		}
		cfg.IngestKeyHash = hash
	}

	// TLS mode
	fmt.Println()
	fmt.Println("TLS mode options:")
	fmt.Println("  1. none     - HTTP only (use with reverse proxy like nginx)")
	fmt.Println("  2. autocert - Let's Encrypt automatic HTTPS")
	fmt.Println("  3. selfsigned - Generate self-signed certificate")
	fmt.Print("Choose TLS mode [1]: ")
	var tlsChoice string
	fmt.Scanln(&tlsChoice)
	switch tlsChoice {
	case "2", "autocert":
		cfg.TLSMode = "autocert"
		fmt.Print("Domain name for HTTPS certificate: ")
		fmt.Scanln(&cfg.Domain)
		if cfg.Domain == "" {
			return fmt.Errorf("domain is required for autocert")
		}
		cfg.ListenAddr = ":443"
		cfg.ExternalURL = "https://" + cfg.Domain
	case "3", "selfsigned":
		cfg.TLSMode = "selfsigned"
		fmt.Print("Listen address [0.0.0.0:8443]: ")
		var addr string
		fmt.Scanln(&addr)
		if addr != "" {
			cfg.ListenAddr = addr
		} else {
			cfg.ListenAddr = "0.0.0.0:8443"
		}
	default:
		cfg.TLSMode = "none"
		fmt.Print("Listen address [0.0.0.0:8080]: ")
		var addr string
		fmt.Scanln(&addr)
		if addr != "" {
			cfg.ListenAddr = addr
		} else {
			cfg.ListenAddr = "0.0.0.0:8080"
		}
	}

	// The external URL ends up inside provisioned webhook definitions, so
	// it has to be the address the vendor can actually reach.
	if cfg.ExternalURL == "" {
		fmt.Println()
		fmt.Println("What is the public URL vendors will use to deliver webhooks to this server?")
		fmt.Print("External URL (e.g. https://alerts.example.com): ")
		var extURL string
		fmt.Scanln(&extURL)
		if extURL != "" {
			cfg.ExternalURL = extURL
		}
	}

	if err := server.SaveServerConfig(cfg, configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Println()
	fmt.Printf("Config saved to %s\n", configPath)
	return nil
}

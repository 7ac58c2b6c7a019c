package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/consensuslabs/vaultscope/pkg/vault"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger            *slog.Logger
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	View   *vault.View
	Source vault.VaultSource
	Quotes vault.QuoteProvider
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.View == nil {
		return errors.New("vault view is required")
	}
	if cfg.Source == nil {
		return errors.New("vault source is required")
	}
	if cfg.Quotes == nil {
		return errors.New("quote provider is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

// config.go - Configuration management for the clearing daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// Auction settings
	MinPrice  uint64 `json:"min_price"`
	MaxAmount uint64 `json:"max_amount"`

	// Network
	ListenAddr string `json:"listen_addr"`

	// File paths
	KeyDir         string `json:"key_dir"`
	FillLedgerPath string `json:"fill_ledger_path"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting
	RateLimitTokens int `json:"rate_limit_tokens"`
	RefillRate      int `json:"refill_rate"`
	RefillSeconds   int `json:"refill_seconds"`

	// Security
	EnableAudit  bool   `json:"enable_audit"`
	AuditLogPath string `json:"audit_log_path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		MinPrice:        10,
		MaxAmount:       1000,
		ListenAddr:      "localhost:8585",
		KeyDir:          "keys",
		FillLedgerPath:  "fills.json",
		LogLevel:        "info",
		LogFile:         "cleard.log",
		RateLimitTokens: 10,
		RefillRate:      5,
		RefillSeconds:   1,
		EnableAudit:     true,
		AuditLogPath:    "audit.log",
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}

		return &config, nil
	}

	// Create default config and save it
	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// MaxAmount zero is allowed: it runs a valid auction that clears
	// nothing.
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.RateLimitTokens <= 0 {
		return fmt.Errorf("rate_limit_tokens must be positive")
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("refill_rate must be positive")
	}
	if c.RefillSeconds <= 0 {
		return fmt.Errorf("refill_seconds must be positive")
	}
	return nil
}

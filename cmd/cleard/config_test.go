package main

import "testing"

func TestConfigValidate(t *testing.T) {
	t.Run("Defaults Are Valid", func(t *testing.T) {
		if err := DefaultConfig().Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("Zero Max Amount Allowed", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxAmount = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("a zero-capacity auction is valid, got %v", err)
		}
	})

	t.Run("Missing Listen Address Rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ListenAddr = ""
		if err := cfg.Validate(); err == nil {
			t.Errorf("empty listen_addr should be rejected")
		}
	})
}

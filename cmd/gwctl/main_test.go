package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigPortMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ip_address: 192.168.1.50\nport: 45001\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	configFile = path
	t.Cleanup(func() {
		configFile = ""
		devicePort = 45000
	})

	// flag left untouched: the file's port wins
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.PortOverride != 45001 {
		t.Errorf("PortOverride = %d, want 45001 from config file", cfg.PortOverride)
	}

	// explicit --port wins over the file, even at the default value
	if err := rootCmd.PersistentFlags().Set("port", "45000"); err != nil {
		t.Fatalf("setting port flag: %v", err)
	}
	cfg, err = loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.PortOverride != 45000 {
		t.Errorf("PortOverride = %d, want 45000 from the flag", cfg.PortOverride)
	}
}

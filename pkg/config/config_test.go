package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := (&Config{}).Default()
	if c.PortOverride != 45000 {
		t.Errorf("PortOverride = %d, want 45000", c.PortOverride)
	}
	if c.PollInterval != Duration(60*time.Second) {
		t.Errorf("PollInterval = %v, want 60s", c.PollInterval)
	}
	if c.CommandTimeout != Duration(2*time.Second) {
		t.Errorf("CommandTimeout = %v, want 2s", c.CommandTimeout)
	}
	if c.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", c.MaxRetries)
	}
	if c.RetryWait != Duration(10*time.Second) {
		t.Errorf("RetryWait = %v, want 10s", c.RetryWait)
	}
}

func TestDefaultKeepsExplicitValues(t *testing.T) {
	c := (&Config{PollInterval: Duration(20 * time.Second), MaxRetries: 5}).Default()
	if c.PollInterval != Duration(20*time.Second) {
		t.Errorf("PollInterval = %v, want explicit 20s", c.PollInterval)
	}
	if c.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want explicit 5", c.MaxRetries)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwclient.yaml")
	content := `
ip_address: 192.168.10.32
poll_interval: 30s
log_unknown_fields: true
field_map_extensions:
  inHumidity: humid5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.IPOverride != "192.168.10.32" {
		t.Errorf("IPOverride = %q", c.IPOverride)
	}
	if c.PollInterval != Duration(30*time.Second) {
		t.Errorf("PollInterval = %v, want 30s", c.PollInterval)
	}
	if !c.LogUnknownFields {
		t.Error("LogUnknownFields = false, want true")
	}
	if c.FieldMapExtensions["inHumidity"] != "humid5" {
		t.Errorf("FieldMapExtensions = %v", c.FieldMapExtensions)
	}
	// defaults still applied
	if c.PortOverride != 45000 {
		t.Errorf("PortOverride = %d, want default 45000", c.PortOverride)
	}
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwclient.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: 45\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.PollInterval != Duration(45*time.Second) {
		t.Errorf("PollInterval = %v, want 45s", c.PollInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig tests the defaults match the wire-compatible peer
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Discovery.ServiceType != "_airtype._tcp" {
		t.Errorf("Expected service type '_airtype._tcp', got '%s'", cfg.Discovery.ServiceType)
	}
	if cfg.Discovery.FallbackPort != 8080 {
		t.Errorf("Expected fallback port 8080, got %d", cfg.Discovery.FallbackPort)
	}
	if cfg.Receiver.KeyInterval != 10*time.Millisecond || cfg.Receiver.ClickHold != 50*time.Millisecond {
		t.Errorf("Unexpected receiver delays: %+v", cfg.Receiver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

// TestSaveLoad tests that a saved configuration loads back unchanged
func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := NewManagerAt(path)

	cfg := m.Get()
	cfg.General.DeviceName = "Studio Mac"
	cfg.General.Pro = true
	cfg.Discovery.ServiceType = ServiceControlla
	cfg.Receiver.AdvertiseIPs = []string{"192.168.1.20"}
	cfg.Receiver.KeyHold = 25 * time.Millisecond
	m.Set(cfg)
	if err := m.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := NewManagerAt(path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := loaded.Get()
	if got.General.DeviceName != "Studio Mac" || !got.General.Pro {
		t.Errorf("Expected general section to survive, got %+v", got.General)
	}
	if got.Discovery.ServiceType != ServiceControlla {
		t.Errorf("Expected service type '%s', got '%s'", ServiceControlla, got.Discovery.ServiceType)
	}
	if got.Receiver.KeyHold != 25*time.Millisecond {
		t.Errorf("Expected key hold 25ms, got %v", got.Receiver.KeyHold)
	}
	if len(got.Receiver.AdvertiseIPs) != 1 || got.Receiver.AdvertiseIPs[0] != "192.168.1.20" {
		t.Errorf("Expected advertise IPs to survive, got %v", got.Receiver.AdvertiseIPs)
	}
}

// TestLoadMissingFile tests that a missing file keeps defaults
func TestLoadMissingFile(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "absent.yaml"))
	if err := m.Load(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if m.Get().General.Mode != ModeReceiver {
		t.Errorf("Expected default mode receiver, got %s", m.Get().General.Mode)
	}
}

// TestLoadPartialFile tests that unset keys fall back to defaults
func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("general:\n  mode: controller\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m := NewManagerAt(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()
	if cfg.General.Mode != ModeController {
		t.Errorf("Expected mode controller, got %s", cfg.General.Mode)
	}
	if cfg.Discovery.ServiceType != ServiceAirType {
		t.Errorf("Expected default service type, got '%s'", cfg.Discovery.ServiceType)
	}
}

// TestLoadRejectsBadMode tests validation on load
func TestLoadRejectsBadMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("general:\n  mode: host\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := NewManagerAt(path).Load(); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

// TestSetModePersists tests that SetMode writes the file
func TestSetModePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := NewManagerAt(path)
	called := 0
	m.RegisterChangeCallback(func() { called++ })

	if err := m.SetMode(ModeController); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if err := m.SetMode("agent"); err == nil {
		t.Error("Expected error for unknown mode")
	}

	reloaded := NewManagerAt(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if reloaded.Get().General.Mode != ModeController {
		t.Errorf("Expected persisted mode controller, got %s", reloaded.Get().General.Mode)
	}
	if called != 0 {
		t.Errorf("Expected no change callback from SetMode, got %d", called)
	}
}

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("receiver"); err != nil {
		t.Errorf("Expected receiver to parse, got %v", err)
	}
	if _, err := ParseMode("host"); err == nil {
		t.Error("Expected error for host")
	}
}

package configuration

import (
	"strings"
	"testing"
	"time"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""), nil)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if cfg.Freshness != 7*24*time.Hour {
		t.Errorf("Freshness = %v, want 7 days", cfg.Freshness)
	}
	if cfg.NetworkUse != NetworkFull {
		t.Errorf("NetworkUse = %v, want full", cfg.NetworkUse)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %v, want info", cfg.Log.Level)
	}
}

func TestParseGlobalKeys(t *testing.T) {
	doc := `
freshness = 3600
network_use = minimal
help_with_testing = true
auto_approve_keys = true
feed_mirror = https://example.com/mirror
key_info_server = https://example.com/keys
kiosk_mode = true
`
	cfg, err := Parse(strings.NewReader(doc), nil)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if cfg.Freshness != time.Hour {
		t.Errorf("Freshness = %v, want 1h", cfg.Freshness)
	}
	if cfg.NetworkUse != NetworkMinimal {
		t.Errorf("NetworkUse = %v, want minimal", cfg.NetworkUse)
	}
	if !cfg.HelpWithTesting || !cfg.AutoApproveKeys || !cfg.KioskMode {
		t.Errorf("bool flags not applied: %+v", cfg)
	}
	if cfg.FeedMirror != "https://example.com/mirror" {
		t.Errorf("FeedMirror = %q", cfg.FeedMirror)
	}
	if cfg.KeyInfoServer != "https://example.com/keys" {
		t.Errorf("KeyInfoServer = %q", cfg.KeyInfoServer)
	}
}

func TestParseSyncAndLogSections(t *testing.T) {
	doc := `
[sync]
server = https://sync.example.com
username = alice
password = hunter2

[log]
level = debug
formatter = json
`
	cfg, err := Parse(strings.NewReader(doc), nil)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if cfg.SyncServer.URL != "https://sync.example.com" || cfg.SyncServer.Username != "alice" {
		t.Errorf("SyncServer = %+v", cfg.SyncServer)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Formatter != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestParseRejectsInvalidNetworkUse(t *testing.T) {
	if _, err := Parse(strings.NewReader("network_use = bogus\n"), nil); err == nil {
		t.Errorf("expected error for invalid network_use")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	doc := "network_use = minimal\n"
	env := []string{"ZEROINSTALL_NETWORK_USE=offline", "ZEROINSTALL_KIOSK_MODE=true"}
	cfg, err := Parse(strings.NewReader(doc), env)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if cfg.NetworkUse != NetworkOffline {
		t.Errorf("NetworkUse = %v, want offline (env should win)", cfg.NetworkUse)
	}
	if !cfg.KioskMode {
		t.Errorf("expected KioskMode true from environment")
	}
}

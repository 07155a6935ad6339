package trust

import (
	"path/filepath"
	"testing"
)

func TestDBTrustPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trust.xml")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if db.IsTrusted("ABCDEF", "example.com") {
		t.Fatalf("expected fresh db to trust nothing")
	}
	if err := db.Trust("ABCDEF", "Example.COM"); err != nil {
		t.Fatalf("Trust() = %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("Open() reload = %v", err)
	}
	if !reloaded.IsTrusted("ABCDEF", "example.com") {
		t.Errorf("expected trust to persist and compare case-insensitively")
	}
}

func TestDBUntrust(t *testing.T) {
	dir := t.TempDir()
	db, _ := Open(filepath.Join(dir, "trust.xml"))
	db.Trust("FP1", "example.com")
	if err := db.Untrust("FP1", "example.com"); err != nil {
		t.Fatalf("Untrust() = %v", err)
	}
	if db.IsTrusted("FP1", "example.com") {
		t.Errorf("expected trust removed")
	}
}

func TestSplitPayloadNoTrailer(t *testing.T) {
	raw := []byte("<interface></interface>\n")
	payload, sig, err := SplitPayload(raw)
	if err != nil {
		t.Fatalf("SplitPayload() = %v", err)
	}
	if sig != nil {
		t.Errorf("expected nil signature for unsigned feed")
	}
	if string(payload) != string(raw) {
		t.Errorf("expected payload to equal raw input when unsigned")
	}
}

func TestSplitPayloadMissingEndMarker(t *testing.T) {
	raw := []byte("data\n<!-- Base64 Signature\nQUJD\n")
	if _, _, err := SplitPayload(raw); err == nil {
		t.Errorf("expected error for missing end marker")
	}
}

func TestSplitPayloadTrailingBytes(t *testing.T) {
	raw := []byte("data\n<!-- Base64 Signature\nQUJD\n-->\nextra")
	if _, _, err := SplitPayload(raw); err == nil {
		t.Errorf("expected error for trailing bytes after end marker")
	}
}

func TestSplitPayloadValidTrailer(t *testing.T) {
	raw := []byte("data\n<!-- Base64 Signature\nQUJD\n-->\n")
	payload, sig, err := SplitPayload(raw)
	if err != nil {
		t.Fatalf("SplitPayload() = %v", err)
	}
	if string(payload) != "data\n" {
		t.Errorf("payload = %q, want %q", payload, "data\n")
	}
	if string(sig) != "ABC" {
		t.Errorf("signature = %q, want %q", sig, "ABC")
	}
}

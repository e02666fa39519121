package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meridian-courier/device-trust/models"
)

func TestDeviceIDStableAcrossCalls(t *testing.T) {
	r := NewResolver(Options{DurableDir: t.TempDir(), SessionDir: t.TempDir()})
	first := r.DeviceID()
	if first == "" || !strings.HasPrefix(first, "device_") {
		t.Fatalf("bad id: %q", first)
	}
	if second := r.DeviceID(); second != first {
		t.Fatalf("id changed between calls: %q vs %q", first, second)
	}
}

func TestDeviceIDSurvivesNewResolver(t *testing.T) {
	durable := t.TempDir()
	session := t.TempDir()

	first := NewResolver(Options{DurableDir: durable, SessionDir: session}).DeviceID()
	second := NewResolver(Options{DurableDir: durable, SessionDir: session}).DeviceID()
	if first != second {
		t.Fatalf("durable tier did not persist: %q vs %q", first, second)
	}
}

func TestSessionFallbackWhenDurableUnavailable(t *testing.T) {
	// A file where the durable directory should be makes MkdirAll fail.
	base := t.TempDir()
	blocked := filepath.Join(base, "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	session := t.TempDir()

	r := NewResolver(Options{DurableDir: filepath.Join(blocked, "nested"), SessionDir: session})
	id := r.DeviceID()
	if id == "" {
		t.Fatal("no id under durable outage")
	}

	// A fresh resolver sharing only the session tier must see the same id.
	again := NewResolver(Options{DurableDir: filepath.Join(blocked, "nested"), SessionDir: session}).DeviceID()
	if again != id {
		t.Fatalf("session tier did not hold the id: %q vs %q", id, again)
	}
}

func TestMemoryFallbackWhenAllTiersUnavailable(t *testing.T) {
	base := t.TempDir()
	blocked := filepath.Join(base, "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	r := NewResolver(Options{
		DurableDir: filepath.Join(blocked, "durable"),
		SessionDir: filepath.Join(blocked, "session"),
	})
	id := r.DeviceID()
	if id == "" {
		t.Fatal("no id with all tiers down")
	}
	if r.DeviceID() != id {
		t.Fatal("memory tier not stable within the process")
	}
}

func TestSniff(t *testing.T) {
	cases := []struct {
		ua      string
		kind    string
		browser string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36", models.KindDesktop, "Chrome"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", models.KindMobile, "Safari"},
		{"Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Safari/604.1", models.KindTablet, "Safari"},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", models.KindDesktop, "Firefox"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 Edg/120.0", models.KindDesktop, "Edge"},
		{"curl/8.4.0", models.KindDesktop, "Unknown"},
	}
	for _, tc := range cases {
		got := Sniff(tc.ua)
		if got.Kind != tc.kind || got.Browser != tc.browser {
			t.Errorf("Sniff(%q) = %s/%s, want %s/%s", tc.ua, got.Kind, got.Browser, tc.kind, tc.browser)
		}
		if got.Name == "" {
			t.Errorf("Sniff(%q) produced empty name", tc.ua)
		}
	}
}

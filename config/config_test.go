package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "GEOFENCE_RADIUS_METERS", "SYNC_INTERVAL", "MOCK_AUTH", "ACCEPT_LIMIT"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port: expected 8080, got %s", cfg.Port)
	}
	if cfg.GeofenceRadiusMeters != 50 {
		t.Errorf("GeofenceRadiusMeters: expected 50, got %v", cfg.GeofenceRadiusMeters)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval: expected 30s, got %v", cfg.SyncInterval)
	}
	if cfg.MockAuth {
		t.Errorf("MockAuth: expected false by default")
	}
	if cfg.AcceptLimit != 20 {
		t.Errorf("AcceptLimit: expected 20, got %d", cfg.AcceptLimit)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GEOFENCE_RADIUS_METERS", "75.5")
	t.Setenv("SYNC_INTERVAL", "1m")
	t.Setenv("MOCK_AUTH", "yes")
	t.Setenv("ACCEPT_LIMIT", "not-a-number")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("Port: expected 9090, got %s", cfg.Port)
	}
	if cfg.GeofenceRadiusMeters != 75.5 {
		t.Errorf("GeofenceRadiusMeters: expected 75.5, got %v", cfg.GeofenceRadiusMeters)
	}
	if cfg.SyncInterval != time.Minute {
		t.Errorf("SyncInterval: expected 1m, got %v", cfg.SyncInterval)
	}
	if !cfg.MockAuth {
		t.Errorf("MockAuth: expected true")
	}
	if cfg.AcceptLimit != 20 {
		t.Errorf("AcceptLimit: expected fallback 20, got %d", cfg.AcceptLimit)
	}
}

func TestGetBoolEnv(t *testing.T) {
	testCases := []struct {
		value    string
		fallback bool
		expected bool
	}{
		{"true", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"no", true, false},
		{"", true, true},
		{"maybe", false, false},
	}
	for _, tc := range testCases {
		t.Setenv("TEST_BOOL", tc.value)
		if got := getBoolEnv("TEST_BOOL", tc.fallback); got != tc.expected {
			t.Errorf("getBoolEnv(%q, %v): expected %v, got %v", tc.value, tc.fallback, tc.expected, got)
		}
	}
}

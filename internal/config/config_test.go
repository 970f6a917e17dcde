package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("IMAGE_MAX_KB", "")
	t.Setenv("APP_URL", "")

	cfg := Load()

	if cfg.DBDriver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.DBDriver)
	}
	if cfg.ImageMaxKB != 5048 {
		t.Fatalf("expected 5048 KB limit, got %d", cfg.ImageMaxKB)
	}
	if len(cfg.ImageAllowedTypes) != 3 {
		t.Fatalf("expected 3 allowed types, got %v", cfg.ImageAllowedTypes)
	}
	if cfg.AppURL != "http://localhost:8000" {
		t.Fatalf("unexpected app url %q", cfg.AppURL)
	}
	if cfg.GPSStrict {
		t.Fatalf("expected lenient gps validation by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_URL", "https://tasks.example.com/")
	t.Setenv("IMAGE_MAX_KB", "5055")
	t.Setenv("IMAGE_ALLOWED_TYPES", "image/png, image/gif ,")
	t.Setenv("GPS_STRICT", "true")
	t.Setenv("JWT_ACCESS_EXPIRY", "not-a-duration")

	cfg := Load()

	if cfg.AppURL != "https://tasks.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.AppURL)
	}
	if cfg.ImageMaxKB != 5055 {
		t.Fatalf("expected 5055, got %d", cfg.ImageMaxKB)
	}
	if len(cfg.ImageAllowedTypes) != 2 || cfg.ImageAllowedTypes[1] != "image/gif" {
		t.Fatalf("unexpected allowed types %v", cfg.ImageAllowedTypes)
	}
	if !cfg.GPSStrict {
		t.Fatalf("expected strict gps validation")
	}
	if cfg.JWTAccessExpiry != 24*time.Hour {
		t.Fatalf("expected fallback expiry, got %v", cfg.JWTAccessExpiry)
	}
}

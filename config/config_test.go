package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STORAGE_TYPE", "EXPORT_SCALE", "UPLOAD_TOKEN_TTL", "PUBLIC_BASE_URL", "UPLOAD_TOKEN_SECRET"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.StorageType != "memory" {
		t.Errorf("StorageType = %q, want memory", cfg.StorageType)
	}
	if cfg.ExportScale != 1 {
		t.Errorf("ExportScale = %d, want 1", cfg.ExportScale)
	}
	if cfg.UploadTokenTTL != 15*time.Minute {
		t.Errorf("UploadTokenTTL = %v, want 15m", cfg.UploadTokenTTL)
	}
	if cfg.UploadTokenSecret == "" {
		t.Error("an ephemeral upload token secret should be generated")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "sqlite")
	t.Setenv("EXPORT_SCALE", "2")
	t.Setenv("EXPORT_FORMAT", "JPEG")
	t.Setenv("UPLOAD_TOKEN_TTL", "90s")
	t.Setenv("PUBLIC_BASE_URL", "https://files.example.com/")

	cfg := Load()
	if cfg.StorageType != "sqlite" {
		t.Errorf("StorageType = %q, want sqlite", cfg.StorageType)
	}
	if cfg.ExportScale != 2 {
		t.Errorf("ExportScale = %d, want 2", cfg.ExportScale)
	}
	if cfg.ExportFormat != "jpeg" {
		t.Errorf("ExportFormat = %q, want jpeg", cfg.ExportFormat)
	}
	if cfg.UploadTokenTTL != 90*time.Second {
		t.Errorf("UploadTokenTTL = %v, want 90s", cfg.UploadTokenTTL)
	}
	if cfg.PublicBaseURL != "https://files.example.com" {
		t.Errorf("PublicBaseURL = %q, trailing slash should be trimmed", cfg.PublicBaseURL)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("EXPORT_SCALE", "abc")
	t.Setenv("UPLOAD_TOKEN_TTL", "soon")

	cfg := Load()
	if cfg.ExportScale != 1 {
		t.Errorf("ExportScale = %d, want default 1", cfg.ExportScale)
	}
	if cfg.UploadTokenTTL != 15*time.Minute {
		t.Errorf("UploadTokenTTL = %v, want default", cfg.UploadTokenTTL)
	}
}

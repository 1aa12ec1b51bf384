package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Storage.PresignExpiry != time.Hour {
		t.Errorf("Expected presign expiry 1h, got %s", cfg.Storage.PresignExpiry)
	}
	if cfg.Storage.ConnectTimeout != 5*time.Second || cfg.Storage.ReadTimeout != 10*time.Second {
		t.Errorf("Expected 5s/10s storage timeouts, got %s/%s", cfg.Storage.ConnectTimeout, cfg.Storage.ReadTimeout)
	}
	if cfg.Upload.SessionTTL != 45*time.Minute {
		t.Errorf("Expected session ttl 45m, got %s", cfg.Upload.SessionTTL)
	}
	if cfg.Upload.ExtensionWindow != 30*time.Minute {
		t.Errorf("Expected extension window 30m, got %s", cfg.Upload.ExtensionWindow)
	}
	if cfg.Moderation.WordListTTL != 5*time.Minute {
		t.Errorf("Expected word list ttl 5m, got %s", cfg.Moderation.WordListTTL)
	}
	if cfg.Jobs.StatusTTL < cfg.Jobs.MaxRuntime {
		t.Errorf("Expected status ttl >= max runtime, got %s < %s", cfg.Jobs.StatusTTL, cfg.Jobs.MaxRuntime)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PROMPTFINDER_STORAGE_CUSTOMDOMAIN", "media.example.net")
	t.Setenv("PROMPTFINDER_UPLOAD_WEEKLYLIMIT", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Storage.CustomDomain != "media.example.net" {
		t.Errorf("Expected custom domain from env, got %q", cfg.Storage.CustomDomain)
	}
	if cfg.Upload.WeeklyLimit != 10 {
		t.Errorf("Expected weekly limit 10, got %d", cfg.Upload.WeeklyLimit)
	}
}

func TestValidateRejectsLongPresign(t *testing.T) {
	cfg := AppConfig{
		Storage: StorageConfig{PresignExpiry: 2 * time.Hour, MaxAttempts: 2},
		Jobs:    JobsConfig{StatusTTL: time.Hour, MaxRuntime: time.Minute, Concurrency: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for presign expiry above one hour")
	}

	cfg.Storage.PresignExpiry = time.Hour
	cfg.Jobs.StatusTTL = time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for status ttl shorter than max runtime")
	}
}

// chdirTemp moves into an empty directory so a developer's config.yaml is not picked up.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := NewConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store != StoreMemory || cfg.TokenTTL != 10*time.Minute || cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.NotificationsEnabled() {
		t.Fatal("notifications enabled without SMTP host")
	}
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("port: \"9090\"\nstore: postgres\ntoken_ttl: 15m\nsmtp_host: smtp.example.com\nsender_email: bank@example.com\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("REQUEST_RETENTION", "2h")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "7070" {
		t.Errorf("env should override file: port=%s", cfg.Port)
	}
	if cfg.Store != StorePostgres || cfg.TokenTTL != 15*time.Minute {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.RequestRetention != 2*time.Hour {
		t.Errorf("retention=%s", cfg.RequestRetention)
	}
	if !cfg.NotificationsEnabled() {
		t.Error("notifications should be enabled")
	}
}

func TestInvalid(t *testing.T) {
	cases := map[string]string{
		"STORE":          "redis",
		"JWT_SECRET":     "",
		"TOKEN_TTL":      "ten minutes",
		"STORE_TIMEOUT":  "0s",
		"SMTP_PORT":      "smtp",
		"TELEGRAM_TOKEN": "123:abc",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(key, value)
			if _, err := NewConfig(); err == nil {
				t.Fatalf("%s=%q accepted", key, value)
			}
		})
	}
}

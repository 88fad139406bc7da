package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.API.Port != 8080 {
		t.Fatalf("expected default api port 8080 got %d", cfg.API.Port)
	}
	if cfg.Database.Name != "socialdraft" {
		t.Fatalf("expected default database name socialdraft got %q", cfg.Database.Name)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Fatalf("expected default model gpt-4o-mini got %q", cfg.OpenAI.Model)
	}
	if cfg.Generate.RateLimitPerHour != 30 {
		t.Fatalf("expected default rate limit 30 got %d", cfg.Generate.RateLimitPerHour)
	}
	// Secrets are optional at startup.
	if cfg.Identity.WebhookSecret != "" || cfg.OpenAI.APIKey != "" {
		t.Fatalf("expected empty secrets by default")
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("POSTGRES_DB", "drafts")
	t.Setenv("POSTGRES_USER", "svc")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("IDENTITY_WEBHOOK_SECRET", "whsec_abc")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GENERATE_RATE_LIMIT_PER_HOUR", "5")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://app.example.com, https://staging.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.API.Port != 9090 {
		t.Fatalf("expected port 9090 got %d", cfg.API.Port)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Name != "drafts" {
		t.Fatalf("database env not applied: %+v", cfg.Database)
	}
	if cfg.Redis.Addr() != "cache.internal:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr())
	}
	if cfg.Identity.WebhookSecret != "whsec_abc" {
		t.Fatalf("webhook secret not applied")
	}
	if cfg.Generate.RateLimitPerHour != 5 {
		t.Fatalf("expected rate limit 5 got %d", cfg.Generate.RateLimitPerHour)
	}
	want := []string{"https://app.example.com", "https://staging.example.com"}
	if len(cfg.WS.AllowedOrigins) != 2 || cfg.WS.AllowedOrigins[0] != want[0] || cfg.WS.AllowedOrigins[1] != want[1] {
		t.Fatalf("unexpected allowed origins %v", cfg.WS.AllowedOrigins)
	}

	dsn := cfg.Database.DSN()
	wantDSN := "host=db.internal port=5432 user=svc password=secret dbname=drafts sslmode=disable"
	if dsn != wantDSN {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("API_PORT", "-1")
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for negative port")
	}
}

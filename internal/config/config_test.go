package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}

	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.DBPath != "app.db" || cfg.DatabaseDSN != "" {
		t.Fatalf("unexpected store defaults: %+v", cfg)
	}
	if !cfg.CacheEnabled || cfg.CacheTTL != 5*time.Minute || cfg.StatsTTL != 3*time.Minute {
		t.Fatalf("unexpected cache defaults: %+v", cfg)
	}
	if cfg.AccessTokenTTL != 30*time.Minute || cfg.JWTSecret == "" {
		t.Fatalf("unexpected auth defaults: %+v", cfg)
	}
	if cfg.PaginationDefaultLimit != 10 || cfg.PaginationMaxLimit != 100 {
		t.Fatalf("unexpected pagination defaults: %+v", cfg)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("unexpected rate defaults: %+v", cfg)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency default: %v", cfg.IdempotencyTTL)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("unexpected otel defaults: %+v", cfg.OTEL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("GIN_MODE", "DEBUG")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("DATABASE_DSN", "postgres://u:p@db/app")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ACCESS_TOKEN_TTL", "2h")
	t.Setenv("RATE_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Fatalf("PORT override failed: %q", cfg.Port)
	}
	if cfg.GinMode != "debug" {
		t.Fatalf("GIN_MODE should be lowercased: %q", cfg.GinMode)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("warning should normalize to warn: %q", cfg.LogLevel)
	}
	if cfg.DatabaseDSN == "" || cfg.RedisURL == "" {
		t.Fatalf("connection overrides failed: %+v", cfg)
	}
	if cfg.AccessTokenTTL != 2*time.Hour || cfg.RateRPS != 2.5 {
		t.Fatalf("duration/float overrides failed: %+v", cfg)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("CSV parsing failed: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_UnknownGinModeFallsBack(t *testing.T) {
	t.Setenv("GIN_MODE", "production")
	cfg, err := Load()
	if err != nil || cfg.GinMode != "release" {
		t.Fatalf("mode=%q err=%v", cfg.GinMode, err)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := map[string][2]string{
		"bad log level":   {"LOG_LEVEL", "loud"},
		"empty secret":    {"JWT_SECRET", " "},
		"zero token ttl":  {"ACCESS_TOKEN_TTL", "0s"},
		"zero cache ttl":  {"CACHE_TTL", "0s"},
		"negative rps":    {"RATE_RPS", "-1"},
		"zero burst":      {"RATE_BURST", "0"},
		"bad otel ratio":  {"OTEL_TRACES_SAMPLER_ARG", "2"},
		"zero idem ttl":   {"IDEMPOTENCY_TTL", "0s"},
		"tiny page limit": {"PAGINATION_DEFAULT_LIMIT", "0"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestLoad_MaxLimitMustCoverDefault(t *testing.T) {
	t.Setenv("PAGINATION_DEFAULT_LIMIT", "50")
	t.Setenv("PAGINATION_MAX_LIMIT", "20")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when max < default")
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	_ = MustLoad()
}

package config

import (
	"testing"
	"time"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	t.Run("knowledge TTL floor", func(t *testing.T) {
		cfg := Defaults()
		cfg.Knowledge.TTL = time.Minute
		cfg.Normalize()
		if cfg.Knowledge.TTL != MinKnowledgeTTL {
			t.Errorf("expected TTL %v, got %v", MinKnowledgeTTL, cfg.Knowledge.TTL)
		}
	})

	t.Run("longer TTL kept", func(t *testing.T) {
		cfg := Defaults()
		cfg.Knowledge.TTL = 48 * time.Hour
		cfg.Normalize()
		if cfg.Knowledge.TTL != 48*time.Hour {
			t.Errorf("expected TTL 48h, got %v", cfg.Knowledge.TTL)
		}
	})

	t.Run("default language from list", func(t *testing.T) {
		cfg := Defaults()
		cfg.Chat.DefaultLanguage = ""
		cfg.Chat.Languages = []string{"fr", "en"}
		cfg.Normalize()
		if cfg.Chat.DefaultLanguage != "fr" {
			t.Errorf("expected fr, got %q", cfg.Chat.DefaultLanguage)
		}
	})
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis without addrs", func(c *Config) { c.Cache.Backend = "redis"; c.Redis.Addrs = nil }},
		{"bad endpoint", func(c *Config) { c.OpenAI.Endpoint = "not a url" }},
		{"zero rate limit", func(c *Config) { c.RateLimit.Requests = 0 }},
		{"default language not supported", func(c *Config) { c.Chat.DefaultLanguage = "de" }},
		{"unknown knowledge backend", func(c *Config) { c.Knowledge.Backend = "disk" }},
		{"s3 without bucket", func(c *Config) { c.Knowledge.Backend = "s3"; c.Storage.Bucket = "" }},
		{"bad sitemap url", func(c *Config) { c.Sitemap.URL = "not a url" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

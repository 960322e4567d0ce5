package main

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{port: 8080, minPlayers: 2, sendConcurrency: 8}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"tls pair", func(c *Config) { c.tlsCert, c.tlsKey = "cert.pem", "key.pem" }, false},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }, true},
		{"key without cert", func(c *Config) { c.tlsKey = "key.pem" }, true},
		{"port zero", func(c *Config) { c.port = 0 }, true},
		{"port too high", func(c *Config) { c.port = 65536 }, true},
		{"one player", func(c *Config) { c.minPlayers = 1 }, true},
		{"larger party", func(c *Config) { c.minPlayers = 4 }, false},
		{"negative timeout", func(c *Config) { c.sessionTimeout = -time.Second }, true},
		{"unbounded fan-out", func(c *Config) { c.sendConcurrency = 0 }, false},
		{"negative fan-out", func(c *Config) { c.sendConcurrency = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheme(t *testing.T) {
	cfg := &Config{}
	if got := cfg.scheme(); got != "http" {
		t.Errorf("scheme() = %q, want http", got)
	}

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	if got := cfg.scheme(); got != "https" {
		t.Errorf("scheme() = %q, want https", got)
	}
}

func TestFlagDefaults(t *testing.T) {
	cfg := &Config{}
	newCmd(cfg)

	if cfg.port != 8080 || cfg.bind != "0.0.0.0" {
		t.Errorf("listen defaults = %s:%d", cfg.bind, cfg.port)
	}
	if cfg.minPlayers != 2 {
		t.Errorf("minPlayers = %d, want 2", cfg.minPlayers)
	}
	if cfg.sessionTimeout != 0 {
		t.Errorf("sessionTimeout = %s, want disabled", cfg.sessionTimeout)
	}
	if cfg.sendConcurrency != 8 {
		t.Errorf("sendConcurrency = %d, want 8", cfg.sendConcurrency)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MOSTLIKELY_PORT", "9090")
	t.Setenv("MOSTLIKELY_MIN_PLAYERS", "3")
	t.Setenv("MOSTLIKELY_SESSION_TIMEOUT", "90s")
	t.Setenv("MOSTLIKELY_PREFIX", "/games")

	cfg := &Config{}
	newCmd(cfg)

	if cfg.port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.port)
	}
	if cfg.minPlayers != 3 {
		t.Errorf("minPlayers = %d, want 3", cfg.minPlayers)
	}
	if cfg.sessionTimeout != 90*time.Second {
		t.Errorf("sessionTimeout = %s, want 1m30s", cfg.sessionTimeout)
	}
	if cfg.prefix != "/games" {
		t.Errorf("prefix = %q, want /games", cfg.prefix)
	}
}

func TestHumanReadableSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.0 kB"},
		{1500000, "1.5 MB"},
	}

	for _, tt := range tests {
		if got := humanReadableSize(tt.in); got != tt.want {
			t.Errorf("humanReadableSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

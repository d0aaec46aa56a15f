package config

import "testing"

type testConfig struct {
	Addr   string `env:"CORENIC_TEST_ADDR" envDefault:":7700"`
	DBPath string `env:"CORENIC_TEST_DB"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":7700" {
		t.Fatalf("addr = %s, want :7700", cfg.Addr)
	}
}

func TestParseEnvOverride(t *testing.T) {
	t.Setenv("CORENIC_TEST_ADDR", ":9100")
	t.Setenv("CORENIC_TEST_DB", "/tmp/registry.sqlite")

	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Fatalf("addr = %s, want :9100", cfg.Addr)
	}
	if cfg.DBPath != "/tmp/registry.sqlite" {
		t.Fatalf("db path = %s, want /tmp/registry.sqlite", cfg.DBPath)
	}
}

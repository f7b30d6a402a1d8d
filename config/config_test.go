package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxLands != 1000 {
		t.Errorf("expected MaxLands 1000, got %d", cfg.MaxLands)
	}
	if cfg.MaxPlayersPerLand != 50 {
		t.Errorf("expected MaxPlayersPerLand 50, got %d", cfg.MaxPlayersPerLand)
	}
	if cfg.JoinTimeoutMS != 5000 {
		t.Errorf("expected JoinTimeoutMS 5000, got %d", cfg.JoinTimeoutMS)
	}
	if cfg.DefaultEncoding != "json" {
		t.Errorf("expected DefaultEncoding %q, got %q", "json", cfg.DefaultEncoding)
	}
	if cfg.EnableLegacyJoin {
		t.Errorf("expected EnableLegacyJoin false by default")
	}
	if cfg.ListenAddr != ":3000" {
		t.Errorf("unexpected ListenAddr: %q", cfg.ListenAddr)
	}
}

func TestLoadValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	data := `{
		"maxLands": 20,
		"maxPlayersPerLand": 8,
		"joinTimeoutMS": 10000,
		"defaultEncoding": "opcode-messagepack",
		"enableLegacyJoin": true,
		"listenAddr": ":8080"
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)

	if cfg.MaxLands != 20 {
		t.Errorf("expected MaxLands 20, got %d", cfg.MaxLands)
	}
	if cfg.MaxPlayersPerLand != 8 {
		t.Errorf("expected MaxPlayersPerLand 8, got %d", cfg.MaxPlayersPerLand)
	}
	if cfg.JoinTimeoutMS != 10000 {
		t.Errorf("expected JoinTimeoutMS 10000, got %d", cfg.JoinTimeoutMS)
	}
	if cfg.DefaultEncoding != "opcode-messagepack" {
		t.Errorf("expected DefaultEncoding opcode-messagepack, got %q", cfg.DefaultEncoding)
	}
	if !cfg.EnableLegacyJoin {
		t.Errorf("expected EnableLegacyJoin true")
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("unexpected ListenAddr: %q", cfg.ListenAddr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg := Load("/nonexistent/path/config.json")
	defaults := DefaultConfig()

	if cfg != defaults {
		t.Errorf("expected defaults on missing file, got %+v", cfg)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := os.WriteFile(path, []byte("not valid json!!!"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	defaults := DefaultConfig()

	if cfg != defaults {
		t.Errorf("expected defaults on invalid JSON, got %+v", cfg)
	}
}

func TestLoadPartialJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	// Only override maxLands; everything else should keep defaults.
	data := `{"maxLands": 42}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)

	if cfg.MaxLands != 42 {
		t.Errorf("expected MaxLands 42, got %d", cfg.MaxLands)
	}
	if cfg.MaxPlayersPerLand != 50 {
		t.Errorf("expected default MaxPlayersPerLand 50, got %d", cfg.MaxPlayersPerLand)
	}
	if cfg.JoinTimeoutMS != 5000 {
		t.Errorf("expected default JoinTimeoutMS 5000, got %d", cfg.JoinTimeoutMS)
	}
	if cfg.DefaultEncoding != "json" {
		t.Errorf("expected default DefaultEncoding json, got %q", cfg.DefaultEncoding)
	}
}

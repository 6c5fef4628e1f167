package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadStatsSection(t *testing.T) {
	path := writeTempConfig(t, `
[stats]
cardinality = true
mode = true
decimalPlaces = 2

[stats.global]
input = "data.csv"
delimiter = ";"
jobs = 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Stats == nil {
		t.Fatal("expected stats section to be populated")
	}
	if !cfg.Stats.Cardinality || !cfg.Stats.Mode {
		t.Fatalf("expected cardinality and mode enabled, got %+v", cfg.Stats)
	}
	if cfg.Stats.Global.Delimiter != ";" || cfg.Stats.Global.Jobs != 4 {
		t.Fatalf("unexpected global section: %+v", cfg.Stats.Global)
	}
}

func TestNormalizeGlobalDefaults(t *testing.T) {
	g := NormalizeGlobal(GlobalConfig{}, 8)
	if g.Delimiter != "," || g.Jobs != 8 || g.Batch != 50_000 {
		t.Fatalf("unexpected normalized defaults: %+v", g)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error loading missing file")
	}
}

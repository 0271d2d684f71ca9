package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Seed.Feeds) == 0 {
		t.Error("expected seed feeds to be populated")
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("expected backend 'sqlite', got %q", cfg.Store.Backend)
	}
	if cfg.Store.Models.Article != "article" {
		t.Errorf("expected article model 'article', got %q", cfg.Store.Models.Article)
	}
	if cfg.Store.Concurrency != 1 {
		t.Errorf("expected sequential counts, got concurrency %d", cfg.Store.Concurrency)
	}
	if cfg.Site.PageLimit != 10 {
		t.Errorf("expected page limit 10, got %d", cfg.Site.PageLimit)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
store:
  backend: newt
  space_uid: myspace
  concurrency: 4
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Store.Backend != BackendNewt || cfg.Store.SpaceUID != "myspace" {
		t.Errorf("unexpected store section: %+v", cfg.Store)
	}
	if cfg.Store.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Store.Concurrency)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Store.AppUID != "blog" || cfg.Store.TokenEnv != "NEWT_CDN_API_TOKEN" {
		t.Errorf("expected default app and token env, got %+v", cfg.Store)
	}
	if cfg.Store.Models.Tag != "tag" {
		t.Errorf("expected default tag model, got %q", cfg.Store.Models.Tag)
	}
}

func TestParseRejectsUnknownBackend(t *testing.T) {
	_, err := parse([]byte("store:\n  backend: mongo\n"))
	if err == nil || !strings.Contains(err.Error(), "mongo") {
		t.Errorf("expected unknown backend error, got %v", err)
	}
}

func TestParseClampsConcurrency(t *testing.T) {
	cfg, err := parse([]byte("store:\n  concurrency: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Concurrency != 1 {
		t.Errorf("expected concurrency clamped to 1, got %d", cfg.Store.Concurrency)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Seed.Feeds) == 0 {
		t.Error("expected feeds to be populated from file")
	}
}

func TestResolveExplicitPath(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("{}"), 0o644)
	got, err := ResolveConfigPath(path)
	if err != nil || got != path {
		t.Errorf("expected %s, got %q (%v)", path, got, err)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.LocalPath() != filepath.Join("/custom/path", "content.db") {
		t.Errorf("unexpected local path %q", cfg.LocalPath())
	}

	cfg.Local.Path = "/elsewhere/blog.db"
	if cfg.LocalPath() != "/elsewhere/blog.db" {
		t.Errorf("expected explicit local path, got %q", cfg.LocalPath())
	}
}

func TestToken(t *testing.T) {
	t.Setenv("BLOGAGG_TEST_TOKEN", "secret")
	cfg := &Config{Store: Store{TokenEnv: "BLOGAGG_TEST_TOKEN"}}
	if cfg.Token() != "secret" {
		t.Errorf("expected token from env, got %q", cfg.Token())
	}
}

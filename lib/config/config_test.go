// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Container.BlockSize != 4096 {
		t.Errorf("expected block_size=4096, got %d", cfg.Container.BlockSize)
	}
	if cfg.Container.MaxUsers != 64 {
		t.Errorf("expected max_users=64, got %d", cfg.Container.MaxUsers)
	}
	if cfg.Admin.Name != "admin" {
		t.Errorf("expected admin name=admin, got %s", cfg.Admin.Name)
	}
	if cfg.Server.IdleTimeout.Duration() != 5*time.Minute {
		t.Errorf("expected idle_timeout=5m, got %s", cfg.Server.IdleTimeout.Duration())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresEnvironment(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when OMNIFS_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "OMNIFS_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithEnvironment(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "omnifs.yaml")
	content := `
container:
  path: /srv/omnifs/disk.omni
  total_blocks: 1024
server:
  listen: ":9000"
  idle_timeout: 30s
log:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvironmentVariable, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Container.Path != "/srv/omnifs/disk.omni" {
		t.Errorf("expected path=/srv/omnifs/disk.omni, got %s", cfg.Container.Path)
	}
	if cfg.Container.TotalBlocks != 1024 {
		t.Errorf("expected total_blocks=1024, got %d", cfg.Container.TotalBlocks)
	}
	// Unset fields keep their defaults.
	if cfg.Container.BlockSize != 4096 {
		t.Errorf("expected default block_size=4096, got %d", cfg.Container.BlockSize)
	}
	if cfg.Server.Listen != ":9000" {
		t.Errorf("expected listen=:9000, got %s", cfg.Server.Listen)
	}
	if cfg.Server.IdleTimeout.Duration() != 30*time.Second {
		t.Errorf("expected idle_timeout=30s, got %s", cfg.Server.IdleTimeout.Duration())
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected level=debug, got %s", cfg.Log.Level)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "omnifs.jsonc")
	content := `{
  // Small test container.
  "container": {
    "path": "small.omni",
    "total_blocks": 16, /* sixteen blocks */
  },
  "admin": {"name": "root", "password": "secret"},
}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Container.Path != "small.omni" || cfg.Container.TotalBlocks != 16 {
		t.Errorf("container = %+v", cfg.Container)
	}
	if cfg.Admin.Name != "root" || cfg.Admin.Password != "secret" {
		t.Errorf("admin = %+v", cfg.Admin)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	directory := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown field", "unknown.yaml", "container:\n  sise: 3\n"},
		{"bad duration", "duration.yaml", "server:\n  idle_timeout: soon\n"},
		{"bad yaml", "bad.yaml", "container: [\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(directory, test.file)
			if err := os.WriteFile(path, []byte(test.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFile(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if _, err := LoadFile(filepath.Join(directory, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile(empty): %v", err)
	}
	if cfg.Container.Path != Default().Container.Path {
		t.Errorf("empty file changed path to %s", cfg.Container.Path)
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("OMNIFS_TEST_ROOT", "/data")
	t.Setenv("OMNIFS_TEST_UNSET", "")

	cfg, err := Parse([]byte(`
container:
  path: ${OMNIFS_TEST_ROOT}/disk.omni
server:
  socket: ${OMNIFS_TEST_UNSET:-/run/omnifs}/query.sock
`), "omnifs.yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Container.Path != "/data/disk.omni" {
		t.Errorf("expected /data/disk.omni, got %s", cfg.Container.Path)
	}
	if cfg.Server.Socket != "/run/omnifs/query.sock" {
		t.Errorf("expected /run/omnifs/query.sock, got %s", cfg.Server.Socket)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"empty path", func(c *Config) { c.Container.Path = "" }, "container.path"},
		{"zero block size", func(c *Config) { c.Container.BlockSize = 0 }, "block_size must be positive"},
		{"odd block size", func(c *Config) { c.Container.BlockSize = 3000 }, "power of two"},
		{"zero blocks", func(c *Config) { c.Container.TotalBlocks = 0 }, "total_blocks"},
		{"zero users", func(c *Config) { c.Container.MaxUsers = 0 }, "max_users"},
		{"no admin", func(c *Config) { c.Admin.Name = "" }, "admin.name"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error %q does not mention %q", err, test.wantErr)
			}
		})
	}
}

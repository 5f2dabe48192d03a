package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dmeireles/writeback/internal/config"
)

func TestLoadConfigFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "writeback.yaml")
	yaml := `
api:
  base_url: https://clinic.example.com
store:
  path: /var/lib/writeback
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	origCfgFile := cfgFile
	defer func() { cfgFile = origCfgFile }()
	cfgFile = path

	override := filepath.Join(dir, "override-data")
	if err := rootCmd.PersistentFlags().Set("data-dir", override); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}

	if cfg.Store.Path != override {
		t.Errorf("Store.Path = %q, want the flag override %q", cfg.Store.Path, override)
	}
	// Derived paths follow the override
	if cfg.DeadLetter.Path != filepath.Join(override, "deadletter.jsonl") {
		t.Errorf("DeadLetter.Path = %q, want it under the overridden data dir", cfg.DeadLetter.Path)
	}
	if cfg.API.BaseURL != "https://clinic.example.com" {
		t.Errorf("API.BaseURL = %q, want the file value", cfg.API.BaseURL)
	}
}

func TestBuildExecutor(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		tokenFile string
	}{
		{name: "no auth"},
		{name: "static token", token: "tok-123"},
		{name: "token file", tokenFile: "/etc/writeback/token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			if err != nil {
				t.Fatalf("config.Load() failed: %v", err)
			}
			cfg.API.BaseURL = "https://clinic.example.com"
			cfg.API.Token = tt.token
			cfg.API.TokenFile = tt.tokenFile

			if got := buildExecutor(cfg); got == nil {
				t.Error("buildExecutor() = nil, want a client")
			}
		})
	}
}

func TestOpenStoreDrivers(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() failed: %v", err)
	}

	cfg.Store.Driver = "memory"
	st, err := openStore(cfg)
	if err != nil {
		t.Fatalf("openStore() failed for the memory driver: %v", err)
	}
	st.Close()

	cfg.Store.Driver = "bolt"
	if _, err := openStore(cfg); err == nil {
		t.Error("openStore() succeeded with an unknown driver")
	}
}

func TestSortedKeys(t *testing.T) {
	m := map[int]int{8: 1, 1: 3, 5: 2}
	got := sortedKeys(m)
	want := []int{1, 5, 8}
	if len(got) != len(want) {
		t.Fatalf("sortedKeys() returned %d keys, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sortedKeys()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestKindNames(t *testing.T) {
	names := kindNames()
	if len(names) != 4 {
		t.Fatalf("kindNames() returned %d names, want 4", len(names))
	}
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	for _, want := range []string{"create", "update", "delete", "custom"} {
		if !seen[want] {
			t.Errorf("kindNames() missing %q", want)
		}
	}
}

func TestPrintOutput(t *testing.T) {
	if err := printOutput(map[string]any{"key": "value", "number": 42}); err != nil {
		t.Errorf("printOutput() failed: %v", err)
	}
	if err := printOutput(make(chan int)); err == nil {
		t.Error("printOutput() succeeded on an unencodable value")
	}
}

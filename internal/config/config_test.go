package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Index.Glob != "*.py" {
		t.Errorf("expected *.py glob, got %q", cfg.Index.Glob)
	}
	if !cfg.Index.Signatures {
		t.Error("expected signatures enabled by default")
	}
	if !cfg.Vector.Enabled || cfg.Vector.Provider != ProviderHash {
		t.Errorf("expected hash vectors enabled, got %+v", cfg.Vector)
	}
	if cfg.Vector.MinDocLength != 4 {
		t.Errorf("expected min doc length 4, got %d", cfg.Vector.MinDocLength)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadNonExistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("expected no error for nonexistent file, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config")
	}
	if cfg.Storage.DBFile != "symbols.db" {
		t.Errorf("expected default db file, got %s", cfg.Storage.DBFile)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
index:
  glob: "src/*.py"
  exclude_dirs:
    - migrations
  exclude_imports: true
  signatures: false

storage:
  data_dir: /var/lib/symdex

vector:
  provider: hash
  dimensions: 64

server:
  port: 9090

ui:
  language: zh_cn
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, FileName)
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Index.Glob != "src/*.py" {
		t.Errorf("expected src/*.py, got %s", cfg.Index.Glob)
	}
	if len(cfg.Index.ExcludeDirs) != 1 || cfg.Index.ExcludeDirs[0] != "migrations" {
		t.Errorf("expected [migrations], got %v", cfg.Index.ExcludeDirs)
	}
	if !cfg.Index.ExcludeImports {
		t.Error("expected exclude_imports true")
	}
	if cfg.Index.Signatures {
		t.Error("expected signatures false")
	}
	if !cfg.Index.RespectGitignore {
		t.Error("absent keys should keep their defaults")
	}
	if cfg.Vector.Dimensions != 64 {
		t.Errorf("expected 64 dimensions, got %d", cfg.Vector.Dimensions)
	}
	if cfg.Vector.MinDocLength != 4 {
		t.Errorf("expected default min doc length, got %d", cfg.Vector.MinDocLength)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.UI.Language != "zh_cn" {
		t.Errorf("expected zh_cn, got %s", cfg.UI.Language)
	}
	if got := cfg.DBPath("/project"); got != filepath.Join("/var/lib/symdex", "symbols.db") {
		t.Errorf("unexpected db path %s", got)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("index: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":  "sk-test",
		"BASE_URL":        "http://localhost:11434/v1",
		"EMBEDDING_MODEL": "nomic-embed-text",
		"SYMDEX_LANG":     "zh_cn",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Vector.APIKey != "sk-test" {
		t.Errorf("expected api key from env, got %q", cfg.Vector.APIKey)
	}
	if cfg.Vector.BaseURL != env["BASE_URL"] {
		t.Errorf("expected base url from env, got %q", cfg.Vector.BaseURL)
	}
	if cfg.Vector.Model != "nomic-embed-text" {
		t.Errorf("expected model from env, got %q", cfg.Vector.Model)
	}
	if cfg.UI.Language != "zh_cn" {
		t.Errorf("expected language from env, got %q", cfg.UI.Language)
	}
}

func TestMerge(t *testing.T) {
	cfg := Default()
	cfg.Merge(&Config{
		Index:  IndexConfig{Regex: `models\.py$`, ExcludeGlobs: []string{"test_*.py"}},
		Server: ServerConfig{Port: 7000},
	})

	if cfg.Index.Regex != `models\.py$` {
		t.Errorf("expected regex to merge, got %q", cfg.Index.Regex)
	}
	if cfg.Index.Glob != "*.py" {
		t.Errorf("empty glob should keep default, got %q", cfg.Index.Glob)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host, got %s", cfg.Server.Host)
	}

	cfg.Merge(nil)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad provider", func(c *Config) { c.Vector.Provider = "cohere" }, "vector.provider"},
		{"openai without key", func(c *Config) { c.Vector.Provider = ProviderOpenAI }, "requires $OPENAI_API_KEY"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"no db file", func(c *Config) { c.Storage.DBFile = "" }, "storage.db_file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	cfg := Default()
	cfg.Vector.Provider = ProviderOpenAI
	cfg.Vector.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled vectors should not need a key: %v", err)
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	root := filepath.Join("/srv", "project")

	if got := cfg.DataDir(root); got != filepath.Join(root, ".symdex") {
		t.Errorf("unexpected data dir %s", got)
	}
	if got := cfg.VectorPath(root); got != filepath.Join(root, ".symdex", "vectors.db") {
		t.Errorf("unexpected vector path %s", got)
	}

	opts := cfg.ScanOptions()
	if opts.Glob != "*.py" || !opts.RespectGitignore || opts.MaxFileSize != cfg.Index.MaxFileSize {
		t.Errorf("unexpected scan options %+v", opts)
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/abramin/symdex/internal/scan"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "symdex.yaml"

// Config represents the symdex configuration.
type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Storage StorageConfig `yaml:"storage"`
	Vector  VectorConfig  `yaml:"vector"`
	Server  ServerConfig  `yaml:"server"`
	UI      UIConfig      `yaml:"ui"`
	Log     LogConfig     `yaml:"log"`
}

// IndexConfig selects files and controls extraction.
type IndexConfig struct {
	Glob             string   `yaml:"glob"`
	Regex            string   `yaml:"regex"`
	ExcludeDirs      []string `yaml:"exclude_dirs"`
	ExcludeGlobs     []string `yaml:"exclude_globs"`
	ExcludeImports   bool     `yaml:"exclude_imports"`
	Signatures       bool     `yaml:"signatures"`
	RespectGitignore bool     `yaml:"respect_gitignore"`
	MaxFileSize      int64    `yaml:"max_file_size"`
}

// StorageConfig locates the databases. A relative DataDir is resolved against
// the indexed root.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	DBFile     string `yaml:"db_file"`
	VectorFile string `yaml:"vector_file"`
}

// VectorConfig configures description publishing.
type VectorConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	APIKeyEnv    string `yaml:"api_key_env"`
	Dimensions   int    `yaml:"dimensions"`
	MinDocLength int    `yaml:"min_doc_length"`
	Collection   string `yaml:"collection"`

	// APIKey is read from the environment variable named by APIKeyEnv.
	APIKey string `yaml:"-"`
}

// ServerConfig configures the local UI server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// UIConfig configures user-facing strings.
type UIConfig struct {
	Language string `yaml:"language"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Embedding providers.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Glob:             scan.DefaultGlob,
			ExcludeDirs:      []string{"build", "dist", "site-packages"},
			Signatures:       true,
			RespectGitignore: true,
			MaxFileSize:      2 << 20,
		},
		Storage: StorageConfig{
			DataDir:    ".symdex",
			DBFile:     "symbols.db",
			VectorFile: "vectors.db",
		},
		Vector: VectorConfig{
			Enabled:      true,
			Provider:     ProviderHash,
			Model:        "text-embedding-3-small",
			APIKeyEnv:    "OPENAI_API_KEY",
			Dimensions:   256,
			MinDocLength: 4,
			Collection:   "symbol_docs",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		UI: UIConfig{
			Language: "en",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from file, falling back to defaults.
// If configPath is empty, it looks for symdex.yaml in the current directory.
// Keys present in the file override defaults; absent keys keep them.
// Environment overrides are applied last.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = FileName
	}

	data, err := os.ReadFile(configPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// LoadFromDir loads configuration from the specified directory.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// ApplyEnv applies environment overrides using getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.Vector.APIKeyEnv != "" {
		if key := getenv(c.Vector.APIKeyEnv); key != "" {
			c.Vector.APIKey = key
		}
	}
	if v := getenv("BASE_URL"); v != "" {
		c.Vector.BaseURL = v
	}
	if v := getenv("EMBEDDING_MODEL"); v != "" {
		c.Vector.Model = v
	}
	if v := getenv("SYMDEX_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := getenv("SYMDEX_LANG"); v != "" {
		c.UI.Language = v
	}
}

// Merge combines another config into this one, with non-zero fields of other
// taking precedence. Boolean switches are not merged.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Index.Glob != "" {
		c.Index.Glob = other.Index.Glob
	}
	if other.Index.Regex != "" {
		c.Index.Regex = other.Index.Regex
	}
	if len(other.Index.ExcludeDirs) > 0 {
		c.Index.ExcludeDirs = other.Index.ExcludeDirs
	}
	if len(other.Index.ExcludeGlobs) > 0 {
		c.Index.ExcludeGlobs = other.Index.ExcludeGlobs
	}
	if other.Index.MaxFileSize > 0 {
		c.Index.MaxFileSize = other.Index.MaxFileSize
	}
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.DBFile != "" {
		c.Storage.DBFile = other.Storage.DBFile
	}
	if other.Storage.VectorFile != "" {
		c.Storage.VectorFile = other.Storage.VectorFile
	}
	if other.Vector.Provider != "" {
		c.Vector.Provider = other.Vector.Provider
	}
	if other.Vector.Model != "" {
		c.Vector.Model = other.Vector.Model
	}
	if other.Vector.BaseURL != "" {
		c.Vector.BaseURL = other.Vector.BaseURL
	}
	if other.Vector.Dimensions > 0 {
		c.Vector.Dimensions = other.Vector.Dimensions
	}
	if other.Vector.MinDocLength > 0 {
		c.Vector.MinDocLength = other.Vector.MinDocLength
	}
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port > 0 {
		c.Server.Port = other.Server.Port
	}
	if other.UI.Language != "" {
		c.UI.Language = other.UI.Language
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Index.Glob != "" {
		if _, err := glob.Compile(c.Index.Glob); err != nil {
			errs = append(errs, fmt.Errorf("index.glob %q: %w", c.Index.Glob, err))
		}
	}
	for _, p := range c.Index.ExcludeGlobs {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, fmt.Errorf("index.exclude_globs %q: %w", p, err))
		}
	}
	if c.Index.MaxFileSize < 0 {
		errs = append(errs, errors.New("index.max_file_size must not be negative"))
	}
	if c.Storage.DBFile == "" {
		errs = append(errs, errors.New("storage.db_file is required"))
	}
	switch c.Vector.Provider {
	case ProviderHash, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("vector.provider %q: want %s or %s", c.Vector.Provider, ProviderHash, ProviderOpenAI))
	}
	if c.Vector.Enabled && c.Vector.Provider == ProviderOpenAI && c.Vector.APIKey == "" {
		errs = append(errs, fmt.Errorf("vector.provider openai requires $%s", c.Vector.APIKeyEnv))
	}
	if c.Vector.Dimensions < 0 {
		errs = append(errs, errors.New("vector.dimensions must not be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

// DataDir returns the data directory for an index rooted at root.
func (c *Config) DataDir(root string) string {
	dir := c.Storage.DataDir
	if dir == "" {
		dir = ".symdex"
	}
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

// DBPath returns the symbol database path for an index rooted at root.
func (c *Config) DBPath(root string) string {
	return filepath.Join(c.DataDir(root), c.Storage.DBFile)
}

// VectorPath returns the vector database path for an index rooted at root.
func (c *Config) VectorPath(root string) string {
	name := c.Storage.VectorFile
	if name == "" {
		name = "vectors.db"
	}
	return filepath.Join(c.DataDir(root), name)
}

// ScanOptions returns the file filters of the index section.
func (c *Config) ScanOptions() scan.Options {
	return scan.Options{
		Glob:             c.Index.Glob,
		Regex:            c.Index.Regex,
		ExcludeDirs:      c.Index.ExcludeDirs,
		ExcludeGlobs:     c.Index.ExcludeGlobs,
		RespectGitignore: c.Index.RespectGitignore,
		MaxFileSize:      c.Index.MaxFileSize,
	}
}

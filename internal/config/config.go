package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataRoot      string   `toml:"data_root"`
	StateDir      string   `toml:"state_dir"`
	CacheDir      string   `toml:"cache_dir"`
	APIBind       string   `toml:"api_bind"`
	RawExtensions []string `toml:"raw_extensions"`
}

// Cache contains configuration for derived preview assets.
type Cache struct {
	Backend              string `toml:"backend"`     // filesystem, sqlite or s3
	Fingerprint          string `toml:"fingerprint"` // stat or checksum
	ThumbnailWidth       int    `toml:"thumbnail_width"`
	WaitTimeoutSeconds   int    `toml:"wait_timeout_seconds"`
	DecodeTimeoutSeconds int    `toml:"decode_timeout_seconds"`
	ExiftoolBinary       string `toml:"exiftool_binary"`
}

// S3 contains object storage settings used when cache.backend is "s3".
type S3 struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
}

// Batch contains configuration for bulk preview generation.
type Batch struct {
	// Concurrency bounds parallel decodes. Zero means runtime.GOMAXPROCS(0).
	Concurrency int  `toml:"concurrency"`
	WarmOnStart bool `toml:"warm_on_start"`
}

// Annotation contains voting and listing settings.
type Annotation struct {
	MinWeight    int `toml:"min_weight"`
	MaxWeight    int `toml:"max_weight"`
	AuthorWeight int `toml:"author_weight"`
	PageSize     int `toml:"page_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for rawlabel.
//
// Configuration sections by subsystem:
//   - Paths: RAW source root, state and cache directories, API bind address
//   - Cache: asset backend, fingerprint mode, thumbnail size and timeouts
//   - S3: object storage for the s3 cache backend
//   - Batch: warm concurrency and warm-on-start
//   - Annotation: vote weight range, authorship weight, page size
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Cache      Cache      `toml:"cache"`
	S3         S3         `toml:"s3"`
	Batch      Batch      `toml:"batch"`
	Annotation Annotation `toml:"annotation"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("rawlabel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and cache directories. The data root is
// only read, never created.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file holding images, proposals and votes.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "rawlabel.db")
}

// AssetDatabasePath returns the SQLite file used by the sqlite cache backend.
func (c *Config) AssetDatabasePath() string {
	return filepath.Join(c.Paths.CacheDir, "assets.db")
}

// LogPath returns the log file written alongside console output.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.StateDir, "rawlabel.log")
}

// LockPath returns the single-instance lock file used by the server.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "rawlabel.lock")
}

// ExiftoolBinary returns the exiftool executable name.
func (c *Config) ExiftoolBinary() string {
	if bin := strings.TrimSpace(c.Cache.ExiftoolBinary); bin != "" {
		return bin
	}
	return defaultExiftoolBinary
}

// WaitTimeout is how long a preview caller waits for an in-flight generation.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.Cache.WaitTimeoutSeconds) * time.Second
}

// DecodeTimeout bounds a single exiftool invocation.
func (c *Config) DecodeTimeout() time.Duration {
	return time.Duration(c.Cache.DecodeTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "rawlabel", "assets")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/rawlabel/assets"
	}
	return filepath.Join(home, ".cache", "rawlabel", "assets")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

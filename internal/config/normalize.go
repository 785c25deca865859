package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCache()
	c.normalizeS3()
	c.normalizeAnnotation()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	c.Paths.DataRoot = strings.TrimSpace(c.Paths.DataRoot)
	if c.Paths.DataRoot == "" {
		if value, ok := os.LookupEnv("RAWLABEL_DATA_ROOT"); ok {
			c.Paths.DataRoot = strings.TrimSpace(value)
		}
	}
	if c.Paths.DataRoot, err = expandPath(c.Paths.DataRoot); err != nil {
		return fmt.Errorf("paths.data_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}

	exts := make([]string, 0, len(c.Paths.RawExtensions))
	seen := make(map[string]struct{}, len(c.Paths.RawExtensions))
	for _, ext := range c.Paths.RawExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = []string{defaultRawExtension}
	}
	c.Paths.RawExtensions = exts
	return nil
}

func (c *Config) normalizeCache() {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaultCacheBackend
	}
	c.Cache.Fingerprint = strings.ToLower(strings.TrimSpace(c.Cache.Fingerprint))
	if c.Cache.Fingerprint == "" {
		c.Cache.Fingerprint = defaultFingerprintMode
	}
	if c.Cache.ThumbnailWidth == 0 {
		c.Cache.ThumbnailWidth = defaultThumbnailWidth
	}
	if c.Cache.WaitTimeoutSeconds == 0 {
		c.Cache.WaitTimeoutSeconds = defaultWaitTimeoutSeconds
	}
	if c.Cache.DecodeTimeoutSeconds == 0 {
		c.Cache.DecodeTimeoutSeconds = defaultDecodeTimeoutSeconds
	}
	c.Cache.ExiftoolBinary = strings.TrimSpace(c.Cache.ExiftoolBinary)
	if c.Cache.ExiftoolBinary == "" {
		c.Cache.ExiftoolBinary = defaultExiftoolBinary
	}
}

func (c *Config) normalizeS3() {
	c.S3.Endpoint = strings.TrimSpace(c.S3.Endpoint)
	c.S3.Bucket = strings.TrimSpace(c.S3.Bucket)
	c.S3.Prefix = strings.Trim(strings.TrimSpace(c.S3.Prefix), "/")
	c.S3.AccessKey = strings.TrimSpace(c.S3.AccessKey)
	if c.S3.AccessKey == "" {
		if value, ok := os.LookupEnv("RAWLABEL_S3_ACCESS_KEY"); ok {
			c.S3.AccessKey = strings.TrimSpace(value)
		}
	}
	c.S3.SecretKey = strings.TrimSpace(c.S3.SecretKey)
	if c.S3.SecretKey == "" {
		if value, ok := os.LookupEnv("RAWLABEL_S3_SECRET_KEY"); ok {
			c.S3.SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeAnnotation() {
	if c.Annotation.PageSize <= 0 {
		c.Annotation.PageSize = defaultPageSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

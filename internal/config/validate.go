package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateS3(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateAnnotation(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataRoot == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("paths.data_root is required. Set RAWLABEL_DATA_ROOT env var or edit %s (create with 'rawlabel config init')", defaultPath)
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.CacheDir == "" {
		return errors.New("paths.cache_dir must be set")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case BackendFilesystem, BackendSQLite, BackendS3:
	default:
		return fmt.Errorf("cache.backend must be one of filesystem, sqlite, s3 (got %q)", c.Cache.Backend)
	}
	switch c.Cache.Fingerprint {
	case FingerprintStat, FingerprintChecksum:
	default:
		return fmt.Errorf("cache.fingerprint must be stat or checksum (got %q)", c.Cache.Fingerprint)
	}
	return ensurePositiveMap(map[string]int{
		"cache.thumbnail_width":        c.Cache.ThumbnailWidth,
		"cache.wait_timeout_seconds":   c.Cache.WaitTimeoutSeconds,
		"cache.decode_timeout_seconds": c.Cache.DecodeTimeoutSeconds,
	})
}

func (c *Config) validateS3() error {
	if c.Cache.Backend != BackendS3 {
		return nil
	}
	if c.S3.Endpoint == "" {
		return errors.New("s3.endpoint must be set when cache.backend is s3")
	}
	if c.S3.Bucket == "" {
		return errors.New("s3.bucket must be set when cache.backend is s3")
	}
	if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
		return errors.New("s3.access_key and s3.secret_key must be set when cache.backend is s3 (or set RAWLABEL_S3_ACCESS_KEY / RAWLABEL_S3_SECRET_KEY)")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Concurrency < 0 {
		return errors.New("batch.concurrency must be >= 0")
	}
	return nil
}

func (c *Config) validateAnnotation() error {
	if c.Annotation.MinWeight > c.Annotation.MaxWeight {
		return errors.New("annotation.min_weight must not exceed annotation.max_weight")
	}
	if c.Annotation.AuthorWeight < c.Annotation.MinWeight || c.Annotation.AuthorWeight > c.Annotation.MaxWeight {
		return errors.New("annotation.author_weight must lie within [min_weight, max_weight]")
	}
	if c.Annotation.PageSize <= 0 || c.Annotation.PageSize > MaxPageSize {
		return fmt.Errorf("annotation.page_size must be between 1 and %d", MaxPageSize)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

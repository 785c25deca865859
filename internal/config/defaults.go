package config

const (
	defaultConfigPath           = "~/.config/rawlabel/config.toml"
	defaultStateDir             = "~/.local/share/rawlabel"
	defaultAPIBind              = "127.0.0.1:7491"
	defaultRawExtension         = ".arw"
	defaultCacheBackend         = "filesystem"
	defaultFingerprintMode      = "stat"
	defaultThumbnailWidth       = 80
	defaultWaitTimeoutSeconds   = 30
	defaultDecodeTimeoutSeconds = 60
	defaultExiftoolBinary       = "exiftool"
	defaultS3Prefix             = "rawlabel"
	defaultMinWeight            = -1
	defaultMaxWeight            = 1
	defaultAuthorWeight         = 1
	defaultPageSize             = 50
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"

	// MaxPageSize caps annotation.page_size and per-request page sizes.
	MaxPageSize = 500
)

// Cache backends.
const (
	BackendFilesystem = "filesystem"
	BackendSQLite     = "sqlite"
	BackendS3         = "s3"
)

// Fingerprint modes.
const (
	FingerprintStat     = "stat"
	FingerprintChecksum = "checksum"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:      defaultStateDir,
			CacheDir:      defaultCacheDir(),
			APIBind:       defaultAPIBind,
			RawExtensions: []string{defaultRawExtension},
		},
		Cache: Cache{
			Backend:              defaultCacheBackend,
			Fingerprint:          defaultFingerprintMode,
			ThumbnailWidth:       defaultThumbnailWidth,
			WaitTimeoutSeconds:   defaultWaitTimeoutSeconds,
			DecodeTimeoutSeconds: defaultDecodeTimeoutSeconds,
			ExiftoolBinary:       defaultExiftoolBinary,
		},
		S3: S3{
			UseSSL: true,
			Prefix: defaultS3Prefix,
		},
		Annotation: Annotation{
			MinWeight:    defaultMinWeight,
			MaxWeight:    defaultMaxWeight,
			AuthorWeight: defaultAuthorWeight,
			PageSize:     defaultPageSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

import "time"

// S3Config selects direct bucket access for media instead of the
// service-issued upload targets.
type S3Config struct {
	Region    string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Config holds runtime settings for the decksync CLI.
type Config struct {
	ServerURL    string
	MediaBaseURL string
	APIToken     string

	DatabasePath   string
	CollectionPath string
	MediaDir       string

	LockTimeout      time.Duration
	PageSize         int
	UploadBatchBytes int64
	UploadWorkers    int
	DownloadWorkers  int

	LogFile  string
	LogLevel string

	S3 S3Config
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000/api"
	c.MediaBaseURL = "http://127.0.0.1:9000/media"
	c.DatabasePath = "decksync.db"
	c.CollectionPath = "collection.db"
	c.MediaDir = "collection.media"
	c.LockTimeout = 5 * time.Second
	c.PageSize = 2000
	c.UploadBatchBytes = 2 << 20
	c.UploadWorkers = 4
	c.DownloadWorkers = 8
	c.LogLevel = "info"
	c.S3.Region = "us-east-1"
	c.S3.Prefix = "decks"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

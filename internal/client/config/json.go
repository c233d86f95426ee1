package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/decksync/internal/flagx"
	"github.com/dmitrijs2005/decksync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell "absent" apart from a zero value.
type JsonConfig struct {
	ServerURL        *string         `json:"server_url"`
	MediaBaseURL     *string         `json:"media_base_url"`
	APIToken         *string         `json:"api_token"`
	DatabasePath     *string         `json:"database_path"`
	CollectionPath   *string         `json:"collection_path"`
	MediaDir         *string         `json:"media_dir"`
	LockTimeout      *timex.Duration `json:"lock_timeout"`
	PageSize         *int            `json:"page_size"`
	UploadBatchBytes *int64          `json:"upload_batch_bytes"`
	UploadWorkers    *int            `json:"upload_workers"`
	DownloadWorkers  *int            `json:"download_workers"`
	LogFile          *string         `json:"log_file"`
	LogLevel         *string         `json:"log_level"`
	S3               *JsonS3Config   `json:"s3"`
}

type JsonS3Config struct {
	Region    *string `json:"region"`
	Endpoint  *string `json:"endpoint"`
	Bucket    *string `json:"bucket"`
	AccessKey *string `json:"access_key"`
	SecretKey *string `json:"secret_key"`
	Prefix    *string `json:"prefix"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// flagx.JsonConfigFlags. Read or unmarshal errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (jc *JsonConfig) apply(cfg *Config) {
	set(&cfg.ServerURL, jc.ServerURL)
	set(&cfg.MediaBaseURL, jc.MediaBaseURL)
	set(&cfg.APIToken, jc.APIToken)
	set(&cfg.DatabasePath, jc.DatabasePath)
	set(&cfg.CollectionPath, jc.CollectionPath)
	set(&cfg.MediaDir, jc.MediaDir)
	if jc.LockTimeout != nil {
		cfg.LockTimeout = jc.LockTimeout.Duration
	}
	set(&cfg.PageSize, jc.PageSize)
	set(&cfg.UploadBatchBytes, jc.UploadBatchBytes)
	set(&cfg.UploadWorkers, jc.UploadWorkers)
	set(&cfg.DownloadWorkers, jc.DownloadWorkers)
	set(&cfg.LogFile, jc.LogFile)
	set(&cfg.LogLevel, jc.LogLevel)

	if s := jc.S3; s != nil {
		set(&cfg.S3.Region, s.Region)
		set(&cfg.S3.Endpoint, s.Endpoint)
		set(&cfg.S3.Bucket, s.Bucket)
		set(&cfg.S3.AccessKey, s.AccessKey)
		set(&cfg.S3.SecretKey, s.SecretKey)
		set(&cfg.S3.Prefix, s.Prefix)
	}
}

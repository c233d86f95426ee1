// Package config loads runtime configuration for the decksync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config, or DECKSYNC_CONFIG.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-s string   base URL of the deck service API
//	-m string   base URL media files are downloaded from
//	-t string   API token
//	-d string   path of the sync database
//	-col string path of the local collection
//	-media dir  collection media folder
//	-l int      lock timeout (seconds)
//	-log file   write logs to a rotating file instead of stderr
//
// # JSON schema
//
// Intervals use timex.Duration, so "5s" and integer nanoseconds both work.
// Fields left out keep their defaults.
//
//	{
//	  "server_url": "https://decks.example/api",
//	  "media_base_url": "https://media.example",
//	  "api_token": "…",
//	  "database_path": "decksync.db",
//	  "collection_path": "collection.db",
//	  "media_dir": "collection.media",
//	  "lock_timeout": "5s",
//	  "page_size": 2000,
//	  "upload_batch_bytes": 2097152,
//	  "upload_workers": 4,
//	  "download_workers": 8,
//	  "log_file": "",
//	  "log_level": "info",
//	  "s3": {"region": "us-east-1", "endpoint": "", "bucket": "", "access_key": "", "secret_key": "", "prefix": "decks"}
//	}
package config

package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/decksync/internal/flagx"
)

var knownFlags = []string{"-s", "-m", "-t", "-d", "-col", "-media", "-l", "-log", "-v"}

// parseFlags populates selected Config fields from command-line flags.
// Only the flags listed in knownFlags are looked at.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "base URL of the deck service API")
	fs.StringVar(&cfg.MediaBaseURL, "m", cfg.MediaBaseURL, "base URL to download media from")
	fs.StringVar(&cfg.APIToken, "t", cfg.APIToken, "API token")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "sync database path")
	fs.StringVar(&cfg.CollectionPath, "col", cfg.CollectionPath, "collection path")
	fs.StringVar(&cfg.MediaDir, "media", cfg.MediaDir, "collection media folder")
	lockTimeout := fs.Int("l", int(cfg.LockTimeout.Seconds()), "lock timeout (in seconds)")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "log file")
	verbose := fs.Bool("v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.LockTimeout = time.Duration(*lockTimeout) * time.Second
	if *verbose {
		cfg.LogLevel = "debug"
	}
}

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dmitrijs2005/decksync/internal/client/client"
	"github.com/dmitrijs2005/decksync/internal/client/collection"
	"github.com/dmitrijs2005/decksync/internal/client/config"
	"github.com/dmitrijs2005/decksync/internal/client/objstore"
	"github.com/dmitrijs2005/decksync/internal/client/services"
	"github.com/dmitrijs2005/decksync/internal/client/status"
	"github.com/dmitrijs2005/decksync/internal/client/store"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/google/uuid"
)

type App struct {
	config  *config.Config
	records *store.Store
	coll    *collection.SQLite
	syncer  *services.SyncService
	media   *services.MediaService
	bus     *status.Bus
	log     logging.Logger
	reader  *bufio.Reader
	out     io.Writer

	progress *progress
	closers  []io.Closer
}

// NewApp opens both databases and builds the services. A missing API
// token is asked for on the terminal.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	a := &App{
		config: c,
		bus:    status.NewBus(),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	a.log = a.buildLogger()
	a.progress = newProgress(a.out, isTerminal(os.Stdout))

	token := c.APIToken
	if token == "" {
		secret, err := GetSecret(a.out, "Enter API token: ")
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("read API token: %w", err)
		}
		token = strings.TrimSpace(string(secret))
	}

	remote, err := client.NewHTTPClient(c.ServerURL, token, client.WithLogger(a.log))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.records, err = store.Open(ctx, c.DatabasePath,
		store.WithLogger(a.log), store.WithLockTimeout(c.LockTimeout))
	if err != nil {
		a.log.Error(ctx, "error initializing sync database", "path", c.DatabasePath, "err", err)
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.records)

	a.coll, err = collection.Open(ctx, c.CollectionPath, collection.WithLogger(a.log))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.coll)

	a.syncer = services.NewSyncService(remote, a.records, a.coll,
		services.WithPageSize(c.PageSize),
		services.WithStatusBus(a.bus),
		services.WithSyncLogger(a.log))

	mediaOpts := []services.MediaOption{
		services.WithMediaStatusBus(a.bus),
		services.WithMediaLogger(a.log),
	}
	var locator objstore.Locator = objstore.PublicLocator{BaseURL: c.MediaBaseURL}
	if c.S3.Enabled() {
		bucket := objstore.NewS3(objstore.S3Config{
			Region:    c.S3.Region,
			Endpoint:  c.S3.Endpoint,
			Bucket:    c.S3.Bucket,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
			Prefix:    c.S3.Prefix,
		}, nil)
		locator = bucket
		mediaOpts = append(mediaOpts, services.WithUploadTarget(
			func(_ context.Context, deckID uuid.UUID) (objstore.Target, error) {
				return bucket.UploadTarget(deckID), nil
			}))
	}
	a.media = services.NewMediaService(remote, a.records, locator, services.MediaConfig{
		Dir:              c.MediaDir,
		UploadBatchBytes: c.UploadBatchBytes,
		UploadWorkers:    c.UploadWorkers,
		DownloadWorkers:  c.DownloadWorkers,
	}, mediaOpts...)

	return a, nil
}

func (a *App) buildLogger() logging.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.config.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	var w io.Writer = os.Stderr
	if a.config.LogFile != "" {
		f := logging.RotatingFile(a.config.LogFile, 10)
		a.closers = append(a.closers, f)
		w = f
	}
	return logging.NewTextLogger(w, level)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Error(ctx, "close", "err", err)
		}
	}()
	a.Root(ctx)
}

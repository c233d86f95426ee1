package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/guard"
	"github.com/dmitrijs2005/decksync/internal/client/migrations"
	"github.com/dmitrijs2005/decksync/internal/client/repositories/media"
	"github.com/dmitrijs2005/decksync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/decksync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/decksync/internal/client/repositories/notetypes"
	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/dmitrijs2005/decksync/internal/logging"

	_ "modernc.org/sqlite"
)

type Store struct {
	db          *sql.DB
	guard       *guard.Guard
	log         logging.Logger
	lockTimeout time.Duration

	mu    sync.Mutex
	state AttachState
}

type options struct {
	log         logging.Logger
	lockTimeout time.Duration
	busyTimeout time.Duration
}

type Option func(*options)

// WithLogger sets the logger; the default discards output.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithLockTimeout bounds how long operations wait for the guard.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) { o.lockTimeout = d }
}

// WithBusyTimeout sets SQLite's busy_timeout for the opened file.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// Open opens or creates the sync database at path and brings its schema to
// the latest version before returning.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{log: logging.Nop(), lockTimeout: guard.DefaultTimeout, busyTimeout: 5 * time.Second}
	for _, fn := range opts {
		fn(&o)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, o.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sync database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sync database: %w", err)
	}

	m, err := migrations.NewMigrator(db, o.log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	from, err := m.CurrentVersion(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if from < migrations.Latest {
		o.log.Info(ctx, "upgrading sync database", "path", path, "from", from, "to", migrations.Latest)
	}
	if err := m.Migrate(ctx, from); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db, guard.New(o.lockTimeout), o.log), nil
}

// New wraps an already migrated database handle.
func New(db *sql.DB, g *guard.Guard, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{db: db, guard: g, log: log, lockTimeout: g.DefaultTimeout()}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Guard exposes the lock so foreground readers can coordinate with syncs.
func (s *Store) Guard() *guard.Guard {
	return s.guard
}

type repos struct {
	notes     notes.Repository
	noteTypes notetypes.Repository
	media     media.Repository
	metadata  metadata.Repository
}

func newRepos(db dbx.DBTX) repos {
	return repos{
		notes:     notes.NewSQLiteRepository(db),
		noteTypes: notetypes.NewSQLiteRepository(db),
		media:     media.NewSQLiteRepository(db),
		metadata:  metadata.NewSQLiteRepository(db),
	}
}

// write runs fn under the write lock inside one transaction.
func (s *Store) write(ctx context.Context, fn func(ctx context.Context, r repos) error) error {
	release, err := s.guard.Lock(ctx, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, newRepos(tx))
	})
}

// read runs fn under the read lock against the pool.
func (s *Store) read(ctx context.Context, fn func(ctx context.Context, r repos) error) error {
	release, err := s.guard.RLock(ctx, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx, newRepos(s.db))
}

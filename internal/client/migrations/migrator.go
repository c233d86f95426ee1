package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/pressly/goose/v3"
)

// Latest is the schema version the chain converges on.
var Latest = defaultSteps[len(defaultSteps)-1].Version

type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
	steps    []step
	log      logging.Logger
}

// NewMigrator prepares the migration chain for db.
func NewMigrator(db *sql.DB, log logging.Logger) (*Migrator, error) {
	return newMigrator(db, log, defaultSteps)
}

func newMigrator(db *sql.DB, log logging.Logger, steps []step) (*Migrator, error) {
	migrations := make([]*goose.Migration, 0, len(steps))
	for _, s := range steps {
		migrations = append(migrations, goose.NewGoMigration(s.Version,
			&goose.GoFunc{RunTx: stampVersion(s.Version, s.Up)}, nil))
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, nil,
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(migrations...),
	)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}

	return &Migrator{db: db, provider: provider, steps: steps, log: log}, nil
}

// stampVersion runs up and then records version in user_version inside the
// same transaction.
func stampVersion(version int64, up func(context.Context, *sql.Tx) error) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		if err := up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, version))
		return err
	}
}

// CurrentVersion returns the schema version recorded in the database header.
func (m *Migrator) CurrentVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := m.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Migrate applies every step newer than from, oldest first.
func (m *Migrator) Migrate(ctx context.Context, from int64) error {
	return m.migrate(ctx, from, m.steps[len(m.steps)-1].Version)
}

func (m *Migrator) migrate(ctx context.Context, from, to int64) error {
	latest := m.steps[len(m.steps)-1].Version
	if from > latest {
		return &MigrationError{Version: from, Step: from, Err: ErrSchemaTooNew}
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return &MigrationError{Version: from, Step: from + 1, Err: err}
	}

	completed := from
	for _, s := range m.steps {
		if s.Version <= from || s.Version > to {
			continue
		}
		if applied[s.Version] {
			completed = s.Version
			continue
		}

		m.log.Info(ctx, "applying migration", "version", s.Version, "name", s.Name)
		_, err := m.provider.ApplyVersion(ctx, s.Version, true)
		if errors.Is(err, goose.ErrAlreadyApplied) {
			completed = s.Version
			continue
		}
		if err != nil {
			m.log.Error(ctx, "migration failed", "version", s.Version, "error", err)
			return &MigrationError{Version: completed, Step: s.Version, Err: unwrapPartial(err)}
		}
		completed = s.Version
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	applied := make(map[int64]bool, len(statuses))
	for _, st := range statuses {
		if st.State == goose.StateApplied {
			applied[st.Source.Version] = true
		}
	}
	return applied, nil
}

func unwrapPartial(err error) error {
	var pe *goose.PartialError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err
	}
	return err
}

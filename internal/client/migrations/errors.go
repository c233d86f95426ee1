package migrations

import (
	"errors"
	"fmt"
)

var (
	// ErrMigration matches every MigrationError via errors.Is.
	ErrMigration = errors.New("migration failed")

	// ErrSchemaTooNew is returned when the database was written by a newer
	// version of decksync.
	ErrSchemaTooNew = errors.New("database schema is newer than supported")
)

// MigrationError reports a failed step. Version is the last version that
// completed; Step is the one that failed.
type MigrationError struct {
	Version int64
	Step    int64
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration to version %d failed (database at version %d): %v", e.Step, e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

func (e *MigrationError) Is(target error) bool { return target == ErrMigration }

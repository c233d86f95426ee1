package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"
)

type AttachState int

const (
	Detached AttachState = iota
	Attached
)

func (s AttachState) String() string {
	if s == Attached {
		return "attached"
	}
	return "detached"
}

var aliasRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Attachment is the open window during which the sync database is attached
// to a foreign connection. The store's write lock is held until Detach.
type Attachment struct {
	store   *Store
	conn    *sql.Conn
	alias   string
	release func()

	mu   sync.Mutex
	done bool
}

func (s *Store) State() AttachState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attach runs ATTACH DATABASE on conn under alias.
func (s *Store) Attach(ctx context.Context, conn *sql.Conn, alias string) (*Attachment, error) {
	if !aliasRe.MatchString(alias) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	if s.State() == Attached {
		return nil, ErrAlreadyAttached
	}

	release, err := s.guard.Lock(ctx, s.lockTimeout)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Attached {
		release()
		return nil, ErrAlreadyAttached
	}

	path, err := s.mainFile(ctx)
	if err != nil {
		release()
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS `+alias, path); err != nil {
		release()
		return nil, fmt.Errorf("attach sync database: %w", err)
	}

	s.state = Attached
	s.log.Debug(ctx, "sync database attached", "alias", alias)
	return &Attachment{store: s, conn: conn, alias: alias, release: release}, nil
}

func (s *Store) mainFile(ctx context.Context) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT file FROM pragma_database_list WHERE name = 'main'`).Scan(&path)
	if err != nil {
		return "", fmt.Errorf("locate sync database file: %w", err)
	}
	if path == "" {
		return "", fmt.Errorf("sync database is not file backed")
	}
	return path, nil
}

// Alias is the schema name the sync tables are visible under on Conn.
func (a *Attachment) Alias() string { return a.alias }

func (a *Attachment) Conn() *sql.Conn { return a.conn }

// Detach runs DETACH DATABASE and releases the write lock. On failure the
// attachment stays open and Detach may be retried.
func (a *Attachment) Detach(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return ErrNotAttached
	}

	if _, err := a.conn.ExecContext(ctx, `DETACH DATABASE `+a.alias); err != nil {
		return fmt.Errorf("detach sync database: %w", err)
	}

	a.done = true
	a.store.mu.Lock()
	a.store.state = Detached
	a.store.mu.Unlock()
	a.release()
	a.store.log.Debug(ctx, "sync database detached", "alias", a.alias)
	return nil
}

package guard

import (
	"errors"
	"fmt"
	"time"
)

// ErrLockTimeout matches every LockTimeoutError via errors.Is.
var ErrLockTimeout = errors.New("lock timeout")

type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// LockTimeoutError reports that the lock could not be acquired in time.
// Callers may retry; the guard never retries on its own.
type LockTimeoutError struct {
	Mode    Mode
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("could not acquire %s lock within %s", e.Mode, e.Timeout)
}

func (e *LockTimeoutError) Is(target error) bool {
	return target == ErrLockTimeout
}

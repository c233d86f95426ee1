// Package objstore moves media bytes between the client and remote object
// storage. Uploads go through a Target, downloads are resolved to URLs by a
// Locator.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

var ErrUploadFailed = errors.New("upload failed")

// Target accepts whole objects. Implementations must be safe for
// concurrent use so one target can serve a deck's upload pool.
type Target interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}

// Locator resolves a deck-scoped media name to a fetchable URL.
type Locator interface {
	DownloadURL(ctx context.Context, deckID uuid.UUID, name string) (string, error)
}

// UploadError carries the storage response of a rejected upload.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: status %d; body: %s", e.StatusCode, e.Body)
}

func (e *UploadError) Is(target error) bool { return target == ErrUploadFailed }

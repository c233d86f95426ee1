package objstore

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// PublicLocator serves media from a public bucket laid out as
// <BaseURL>/<deck id>/<name>.
type PublicLocator struct {
	BaseURL string
}

func (l PublicLocator) DownloadURL(_ context.Context, deckID uuid.UUID, name string) (string, error) {
	return strings.TrimRight(l.BaseURL, "/") + "/" + deckID.String() + "/" + url.PathEscape(name), nil
}

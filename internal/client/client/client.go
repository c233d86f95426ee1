package client

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/client/objstore"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/google/uuid"
)

// Client is the remote deck service as seen by the sync services.
type Client interface {
	FetchUpdates(ctx context.Context, deckID uuid.UUID, since *time.Time, pageSize int, opts ...FetchOption) iter.Seq2[*models.UpdatePage, error]
	FetchNoteTypes(ctx context.Context, deckID uuid.UUID) ([]models.NoteType, error)
	FetchMediaCatalog(ctx context.Context, deckID uuid.UUID, since *time.Time) iter.Seq2[*models.MediaPage, error]
	MediaUploadTarget(ctx context.Context, deckID uuid.UUID) (*objstore.PresignedPost, error)
	CheckToken() error
}

const (
	defaultUserAgent = "decksync/1"
	maxErrorBody     = 4 << 10
)

type HTTPClient struct {
	base      *url.URL
	token     string
	http      *http.Client
	userAgent string
	log       logging.Logger
	now       func() time.Time
}

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

func WithUserAgent(ua string) Option {
	return func(h *HTTPClient) { h.userAgent = ua }
}

func WithLogger(l logging.Logger) Option {
	return func(h *HTTPClient) { h.log = l }
}

// WithClock replaces time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(h *HTTPClient) { h.now = now }
}

// NewHTTPClient builds a client rooted at baseURL, e.g.
// "https://app.example.com/api".
func NewHTTPClient(baseURL, token string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q: scheme and host required", baseURL)
	}

	c := &HTTPClient{
		base:      u,
		token:     token,
		http:      &http.Client{Timeout: 120 * time.Second},
		userAgent: defaultUserAgent,
		log:       logging.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) endpoint(path string, q url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// resolve turns a "next" link, absolute or relative, into a full URL.
func resolve(current, next string) (string, error) {
	cur, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	n, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%w: bad next link %q", ErrMalformedResponse, next)
	}
	return cur.ResolveReference(n).String(), nil
}

func (c *HTTPClient) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug(ctx, "remote request", "method", req.Method, "url", rawURL,
		"status", resp.StatusCode, "elapsed", time.Since(started))

	body, err := decodedBody(resp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		return &RemoteRequestError{
			Method:     req.Method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       string(b),
		}
	}

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrMalformedResponse, rawURL, err)
	}
	return nil
}

// decodedBody unwraps gzip when the response says so or when the payload
// starts with the gzip magic bytes.
func decodedBody(resp *http.Response) (io.Reader, error) {
	br := bufio.NewReader(resp.Body)
	gz := strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip")
	if !gz {
		magic, err := br.Peek(2)
		gz = err == nil && magic[0] == 0x1f && magic[1] == 0x8b
	}
	if !gz {
		return br, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, err
	}
	return zr, nil
}

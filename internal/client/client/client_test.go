package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deckID = uuid.MustParse("6b7c1a2e-95f4-4f8e-8d43-2a0c6c3b9e11")

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := NewHTTPClient(ts.URL+"/api", "secret", opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func gzipped(t *testing.T, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	require.NoError(t, json.NewEncoder(zw).Encode(v))
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNewHTTPClient_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient("not a url", "t")
	require.Error(t, err)
	_, err = NewHTTPClient("/relative", "t")
	require.Error(t, err)
}

func TestFetchUpdates_FollowsNextAndNormalizes(t *testing.T) {
	id1, id2, id3 := uuid.New(), uuid.New(), uuid.New()
	var gotAuth, gotSince, gotSize string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/decks/"+deckID.String()+"/updates", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("page") == "2" {
			// second page arrives gzipped without a Content-Encoding header
			_, _ = w.Write(gzipped(t, map[string]any{
				"latest_update": "2024-05-02T10:00:00.000000+00:00",
				"notes": []map[string]any{{
					"id":               id3.String(),
					"anki_nid":         nil,
					"mid":              "7",
					"fields":           map[string]string{"Back": "b", "Front": "f"},
					"tags":             nil,
					"last_update_type": "new_note",
				}},
			}))
			return
		}
		gotSince = r.URL.Query().Get("since")
		gotSize = r.URL.Query().Get("size")
		writeJSON(w, map[string]any{
			"latest_update":    "2024-05-01T09:00:00.123456+00:00",
			"protected_fields": map[string][]string{"7": {"Back"}},
			"protected_tags":   []string{"leech"},
			"notes": []map[string]any{
				{
					"note_id":          id1.String(),
					"anki_nid":         100,
					"note_type_id":     7,
					"fields":           []map[string]any{{"name": "Back", "value": "B", "order": 1}, {"name": "Front", "value": "A", "order": 0}},
					"tags":             []string{"x", "y"},
					"guid":             "g1",
					"last_update_type": "updated_content",
				},
				{
					"ankihub_note_uuid": id2.String(),
					"anki_nid":          "200",
					"note_type_id":      7,
					"fields":            `[{"name":"Front","value":"C"}]`,
					"tags":              "one two",
					"last_update_type":  "updated_tags",
				},
			},
			"next": "/api/decks/" + deckID.String() + "/updates?page=2",
		})
	})

	c := newTestClient(t, mux)
	since := time.Date(2024, 4, 30, 8, 0, 0, 0, time.FixedZone("x", 3600))

	var progress []int
	var pages []*models.UpdatePage
	for page, err := range c.FetchUpdates(context.Background(), deckID, &since, 2, WithProgress(func(n int) { progress = append(progress, n) })) {
		require.NoError(t, err)
		pages = append(pages, page)
	}

	assert.Equal(t, "Token secret", gotAuth)
	assert.Equal(t, "2024-04-30T07:00:00.000000+00:00", gotSince)
	assert.Equal(t, "2", gotSize)
	assert.Equal(t, []int{2, 3}, progress)
	require.Len(t, pages, 2)

	p1 := pages[0]
	require.NotNil(t, p1.LatestUpdate)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 123456000, time.UTC), *p1.LatestUpdate)
	assert.Equal(t, map[int64][]string{7: {"Back"}}, p1.ProtectedFields)
	assert.Equal(t, []string{"leech"}, p1.ProtectedTags)
	require.Len(t, p1.Notes, 2)

	n1 := p1.Notes[0]
	assert.Equal(t, id1, n1.ID)
	assert.Equal(t, deckID, n1.DeckID)
	assert.Equal(t, int64(100), n1.CollectionID)
	assert.Equal(t, int64(7), n1.NoteTypeID)
	assert.Equal(t, []models.Field{{Name: "Front", Value: "A"}, {Name: "Back", Value: "B"}}, n1.Fields)
	assert.Equal(t, []string{"x", "y"}, n1.Tags)
	assert.Equal(t, models.UpdateContent, n1.LastUpdateType)

	n2 := p1.Notes[1]
	assert.Equal(t, id2, n2.ID)
	assert.Equal(t, int64(200), n2.CollectionID)
	assert.Equal(t, []models.Field{{Name: "Front", Value: "C"}}, n2.Fields)
	assert.Equal(t, []string{"one", "two"}, n2.Tags)

	n3 := pages[1].Notes[0]
	assert.Equal(t, id3, n3.ID)
	assert.Zero(t, n3.CollectionID)
	assert.Equal(t, int64(7), n3.NoteTypeID)
	assert.Equal(t, []models.Field{{Name: "Back", Value: "b"}, {Name: "Front", Value: "f"}}, n3.Fields)
	assert.Nil(t, n3.Tags)
}

func TestFetchUpdates_GzipContentEncoding(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(gzipped(t, map[string]any{"latest_update": nil, "notes": []any{}}))
	}))

	n := 0
	for page, err := range c.FetchUpdates(context.Background(), deckID, nil, 0) {
		require.NoError(t, err)
		assert.Nil(t, page.LatestUpdate)
		assert.Empty(t, page.Notes)
		n++
	}
	assert.Equal(t, 1, n)
}

func TestFetchUpdates_StopsWhenCallerBreaks(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, map[string]any{"notes": []any{}, "next": r.URL.Path + "?again=1"})
	}))

	for _, err := range c.FetchUpdates(context.Background(), deckID, nil, 0) {
		require.NoError(t, err)
		break
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchUpdates_ErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		is     error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"server error", http.StatusBadGateway, ErrUnavailable},
		{"not found", http.StatusNotFound, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))

			var got error
			calls := 0
			for page, err := range c.FetchUpdates(context.Background(), deckID, nil, 0) {
				calls++
				assert.Nil(t, page)
				got = err
			}
			assert.Equal(t, 1, calls)

			var rre *RemoteRequestError
			require.True(t, errors.As(got, &rre))
			assert.Equal(t, tc.status, rre.StatusCode)
			assert.Equal(t, http.MethodGet, rre.Method)
			assert.Contains(t, rre.Body, "nope")
			if tc.is != nil {
				assert.ErrorIs(t, got, tc.is)
			} else {
				assert.NotErrorIs(t, got, ErrUnauthorized)
				assert.NotErrorIs(t, got, ErrUnavailable)
			}
		})
	}
}

func TestFetchUpdates_TransportFailureIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	c, err := NewHTTPClient(ts.URL, "t")
	require.NoError(t, err)

	for _, err := range c.FetchUpdates(context.Background(), deckID, nil, 0) {
		require.ErrorIs(t, err, ErrUnavailable)
	}
}

func TestFetchUpdates_MalformedNote(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"notes": []map[string]any{{"fields": "[]"}}})
	}))

	for _, err := range c.FetchUpdates(context.Background(), deckID, nil, 0) {
		require.ErrorIs(t, err, ErrMalformedResponse)
	}
}

func TestRawJSONish_Shapes(t *testing.T) {
	var v struct {
		A rawJSONish `json:"a"`
		B rawJSONish `json:"b"`
		C rawJSONish `json:"c"`
		D rawJSONish `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": null, "b": "[1]", "c": [1]}`), &v))
	assert.Equal(t, shapeNone, v.A.shape)
	assert.Equal(t, shapeString, v.B.shape)
	assert.Equal(t, shapeStructured, v.C.shape)
	assert.Equal(t, shapeNone, v.D.shape)

	var fromString, fromStruct []int
	ok, err := v.B.decodeJSON(&fromString)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = v.C.decodeJSON(&fromStruct)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fromStruct, fromString)

	ok, err = v.A.decodeJSON(&fromString)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNormalizeTags_EmptyListClears(t *testing.T) {
	var r rawJSONish
	require.NoError(t, json.Unmarshal([]byte(`[]`), &r))
	tags, err := normalizeTags(r)
	require.NoError(t, err)
	assert.NotNil(t, tags)
	assert.Empty(t, tags)
}

func TestNormalizeFields_UnorderedFieldsGoLast(t *testing.T) {
	var r rawJSONish
	require.NoError(t, json.Unmarshal([]byte(`[
		{"name": "Extra", "value": "e"},
		{"name": "Back", "value": "b", "order": 1},
		{"name": "Note", "value": "n"},
		{"name": "Front", "value": "f", "order": 0}
	]`), &r))

	fields, err := normalizeFields(r)
	require.NoError(t, err)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"Front", "Back", "Extra", "Note"}, names)
}

func TestFetchNoteTypes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/decks/"+deckID.String()+"/note-types/", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id": 7, "name": "Basic", "flds": [{"name": "Back", "ord": 1}, {"name": "Front", "ord": 0}], "tmpls": []}]`))
	}))

	types, err := c.FetchNoteTypes(context.Background(), deckID)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, int64(7), types[0].ID)
	assert.Equal(t, deckID, types[0].DeckID)
	names, err := types[0].FieldNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Front", "Back"}, names)
}

func TestFetchMediaCatalog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/decks/"+deckID.String()+"/media/list/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			writeJSON(w, map[string]any{
				"latest_update": "2024-06-01T00:00:00Z",
				"media": []map[string]any{
					{"name": "a.png", "file_content_hash": "h", "modified": "2024-05-31T12:00:00Z", "referenced_on_accepted_note": true, "exists_on_s3": true},
				},
				"next": "?cursor=2",
			})
			return
		}
		writeJSON(w, map[string]any{
			"latest_update": "2024-06-02T00:00:00Z",
			"media": []map[string]any{
				{"name": "b.mp3", "file_content_hash": nil, "modified": "2024-06-01T12:00:00Z", "download_enabled": false},
			},
		})
	})
	c := newTestClient(t, mux)

	var assets []models.MediaAsset
	var latest *time.Time
	for page, err := range c.FetchMediaCatalog(context.Background(), deckID, nil) {
		require.NoError(t, err)
		assets = append(assets, page.Assets...)
		latest = models.LaterOf(latest, page.LatestUpdate)
	}

	require.Len(t, assets, 2)
	assert.True(t, assets[0].Downloadable())
	assert.Equal(t, "h", assets[0].Hash)
	assert.Equal(t, "", assets[1].Hash)
	assert.False(t, assets[1].DownloadEnabled)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), *latest)
}

func TestMediaUploadTarget(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"url":    "https://bucket.example.com/",
			"fields": map[string]string{"key": "deck/${filename}", "policy": "p"},
		})
	}))

	target, err := c.MediaUploadTarget(context.Background(), deckID)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example.com/", target.URL)
	assert.Equal(t, "deck/${filename}", target.Fields["key"])
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user",
		"exp": exp.Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func TestCheckToken(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := WithClock(func() time.Time { return now })

	valid, err := NewHTTPClient("https://example.com", signedToken(t, now.Add(time.Hour)), clock)
	require.NoError(t, err)
	assert.NoError(t, valid.CheckToken())

	expired, err := NewHTTPClient("https://example.com", signedToken(t, now.Add(-time.Hour)), clock)
	require.NoError(t, err)
	assert.ErrorIs(t, expired.CheckToken(), ErrUnauthorized)

	opaque, err := NewHTTPClient("https://example.com", "0123456789abcdef", clock)
	require.NoError(t, err)
	assert.NoError(t, opaque.CheckToken())

	empty, err := NewHTTPClient("https://example.com", "", clock)
	require.NoError(t, err)
	assert.ErrorIs(t, empty.CheckToken(), ErrUnauthorized)
}

package services

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/client"
	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/client/objstore"
	"github.com/dmitrijs2005/decksync/internal/client/status"
	"github.com/dmitrijs2005/decksync/internal/client/store"
	"github.com/dmitrijs2005/decksync/internal/filex"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/crypto/blake2b"
)

const downloadBlockSize = 64 << 10

var ErrInvalidMediaName = errors.New("invalid media name")

// MediaStore is the part of store.Store the media synchronizer uses.
type MediaStore interface {
	Watermark(ctx context.Context, deckID uuid.UUID, kind store.WatermarkKind) (*time.Time, error)
	SetWatermark(ctx context.Context, deckID uuid.UUID, kind store.WatermarkKind, t time.Time) error
	UpsertMediaCatalog(ctx context.Context, deckID uuid.UUID, assets []models.MediaAsset) error
	DownloadableMediaNames(ctx context.Context, deckID uuid.UUID) (map[string]struct{}, error)
	MediaWithMatchingHash(ctx context.Context, deckID uuid.UUID, nameToHash map[string]string) (map[string]string, error)
	MediaAssets(ctx context.Context, deckID uuid.UUID) ([]models.MediaAsset, error)
	MediaNamesReferenced(ctx context.Context, deckID uuid.UUID) (map[string]struct{}, error)
}

type MediaConfig struct {
	// Dir is the collection's media folder.
	Dir string
	// TempDir holds zip batches while they upload; os.TempDir when empty.
	TempDir          string
	UploadBatchBytes int64
	UploadWorkers    int
	DownloadWorkers  int
}

// PreparedMedia is a local file copied into the media folder under its
// content-hash name.
type PreparedMedia struct {
	Source string
	Name   string
	Path   string
	Hash   string
	Size   int64
}

// DownloadReport sorts requested names by outcome.
type DownloadReport struct {
	Downloaded []string
	Skipped    []string
	Failed     []string
	Bytes      int64
}

// MediaSyncReport summarizes SyncDeckMedia.
type MediaSyncReport struct {
	Catalog int
	Copied  []string
	// Referenced lists catalog entries marked unreferenced that a stored
	// note of the deck does reference.
	Referenced []string
	Download   *DownloadReport
}

// UploadTargetFunc returns the one target used for all batches of a deck.
type UploadTargetFunc func(ctx context.Context, deckID uuid.UUID) (objstore.Target, error)

type MediaService struct {
	remote     client.Client
	records    MediaStore
	locator    objstore.Locator
	targetFor  UploadTargetFunc
	httpClient *http.Client
	cfg        MediaConfig
	bus        *status.Bus
	log        logging.Logger
}

type MediaOption func(*MediaService)

func WithUploadTarget(fn UploadTargetFunc) MediaOption {
	return func(s *MediaService) { s.targetFor = fn }
}

func WithDownloadClient(c *http.Client) MediaOption {
	return func(s *MediaService) { s.httpClient = c }
}

func WithMediaStatusBus(b *status.Bus) MediaOption {
	return func(s *MediaService) { s.bus = b }
}

func WithMediaLogger(l logging.Logger) MediaOption {
	return func(s *MediaService) { s.log = l }
}

// NewMediaService uploads through the service-issued presigned target unless
// WithUploadTarget says otherwise.
func NewMediaService(remote client.Client, records MediaStore, locator objstore.Locator, cfg MediaConfig, opts ...MediaOption) *MediaService {
	if cfg.UploadBatchBytes <= 0 {
		cfg.UploadBatchBytes = 2 << 20
	}
	if cfg.UploadWorkers <= 0 {
		cfg.UploadWorkers = 4
	}
	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = 8
	}
	s := &MediaService{
		remote:     remote,
		records:    records,
		locator:    locator,
		httpClient: http.DefaultClient,
		cfg:        cfg,
		log:        logging.Nop(),
	}
	s.targetFor = func(ctx context.Context, deckID uuid.UUID) (objstore.Target, error) {
		return remote.MediaUploadTarget(ctx, deckID)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PrepareUploads copies each file into the media folder as
// <blake2b-256 hex><ext>. A file already present under that name is not
// copied again.
func (s *MediaService) PrepareUploads(ctx context.Context, paths []string) ([]PreparedMedia, error) {
	if _, err := filex.EnsureDir(s.cfg.Dir); err != nil {
		return nil, err
	}

	out := make([]PreparedMedia, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hash, size, err := hashFile(p)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", p, err)
		}
		name := hash + strings.ToLower(filepath.Ext(p))
		dst := filepath.Join(s.cfg.Dir, name)

		exists, err := filex.Exists(dst)
		if err != nil {
			return nil, err
		}
		if !exists {
			if _, err := filex.CopyFile(p, dst); err != nil {
				return nil, fmt.Errorf("copy %s: %w", p, err)
			}
		}
		out = append(out, PreparedMedia{Source: p, Name: name, Path: dst, Hash: hash, Size: size})
	}
	return out, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// batchBySize groups files so each batch stays under limit bytes. A file
// larger than limit travels alone.
func batchBySize(files []PreparedMedia, limit int64) [][]PreparedMedia {
	var (
		batches [][]PreparedMedia
		cur     []PreparedMedia
		size    int64
	)
	for _, f := range files {
		if len(cur) > 0 && size+f.Size > limit {
			batches = append(batches, cur)
			cur, size = nil, 0
		}
		cur = append(cur, f)
		size += f.Size
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// UploadMedia prepares paths and uploads, in zip batches, the files whose
// content hash the deck does not already hold. All batches run even if
// some fail; their errors are joined.
func (s *MediaService) UploadMedia(ctx context.Context, deckID uuid.UUID, paths []string) ([]PreparedMedia, error) {
	prepared, err := s.PrepareUploads(ctx, paths)
	if err != nil {
		return nil, err
	}

	existing, err := s.records.MediaAssets(ctx, deckID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		if a.Hash != "" && a.ExistsOnS3 {
			seen[a.Hash] = true
		}
	}

	var pending []PreparedMedia
	for _, p := range prepared {
		if seen[p.Hash] {
			continue
		}
		seen[p.Hash] = true
		pending = append(pending, p)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	target, err := s.targetFor(ctx, deckID)
	if err != nil {
		return nil, fmt.Errorf("obtain upload target: %w", err)
	}

	batches := batchBySize(pending, s.cfg.UploadBatchBytes)
	s.bus.Publish(status.Event{Deck: deckID, Status: status.UploadingMedia, Total: len(batches)})

	var (
		mu       sync.Mutex
		uploaded []PreparedMedia
		done     int
	)
	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.cfg.UploadWorkers)
	for i, batch := range batches {
		p.Go(func(ctx context.Context) error {
			if err := s.uploadBatch(ctx, deckID, target, i, batch); err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			mu.Lock()
			uploaded = append(uploaded, batch...)
			done++
			s.bus.Publish(status.Event{Deck: deckID, Status: status.UploadingMedia, Current: done, Total: len(batches)})
			mu.Unlock()
			return nil
		})
	}
	uploadErr := p.Wait()

	if len(uploaded) > 0 {
		now := time.Now().UTC()
		assets := make([]models.MediaAsset, len(uploaded))
		for i, u := range uploaded {
			assets[i] = models.MediaAsset{Name: u.Name, Hash: u.Hash, ModifiedAt: now, ExistsOnS3: true, DownloadEnabled: true}
		}
		if err := s.records.UpsertMediaCatalog(ctx, deckID, assets); err != nil {
			uploadErr = errors.Join(uploadErr, err)
		}
	}
	sort.Slice(uploaded, func(i, j int) bool { return uploaded[i].Name < uploaded[j].Name })
	return uploaded, uploadErr
}

func (s *MediaService) uploadBatch(ctx context.Context, deckID uuid.UUID, target objstore.Target, i int, batch []PreparedMedia) error {
	tmp, err := os.CreateTemp(s.cfg.TempDir, "media-*.zip")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	zw := zip.NewWriter(tmp)
	for _, m := range batch {
		if err := addToZip(zw, m); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}

	key := fmt.Sprintf("%s-%d.zip", uuid.NewString(), i)
	if err := target.Put(ctx, key, tmp, size); err != nil {
		return err
	}
	s.log.Debug(ctx, "media batch uploaded", "deck", deckID, "files", len(batch),
		"size", humanize.Bytes(uint64(size)))
	return nil
}

func addToZip(zw *zip.Writer, m PreparedMedia) error {
	f, err := os.Open(m.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: m.Name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func validMediaName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

// DownloadMedia fetches names missing from the media folder. A file that
// is already present is trusted as is. A failed response is logged and
// reported without stopping the rest; transport errors are joined.
func (s *MediaService) DownloadMedia(ctx context.Context, deckID uuid.UUID, names []string) (*DownloadReport, error) {
	if _, err := filex.EnsureDir(s.cfg.Dir); err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		report DownloadReport
	)
	record := func(list *[]string, name string, n int64) {
		mu.Lock()
		*list = append(*list, name)
		report.Bytes += n
		done := len(report.Downloaded) + len(report.Skipped) + len(report.Failed)
		mu.Unlock()
		s.bus.Publish(status.Event{Deck: deckID, Status: status.DownloadingMedia, Current: done, Total: len(names)})
	}

	s.bus.Publish(status.Event{Deck: deckID, Status: status.DownloadingMedia, Total: len(names)})
	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.cfg.DownloadWorkers)
	for _, name := range names {
		p.Go(func(ctx context.Context) error {
			if !validMediaName(name) {
				s.log.Warn(ctx, "refusing media name", "deck", deckID, "name", name)
				record(&report.Failed, name, 0)
				return nil
			}
			dst := filepath.Join(s.cfg.Dir, name)
			exists, err := filex.Exists(dst)
			if err != nil {
				return err
			}
			if exists {
				record(&report.Skipped, name, 0)
				return nil
			}

			n, ok, err := s.download(ctx, deckID, name, dst)
			if err != nil {
				record(&report.Failed, name, 0)
				return fmt.Errorf("download %s: %w", name, err)
			}
			if !ok {
				record(&report.Failed, name, 0)
				return nil
			}
			record(&report.Downloaded, name, n)
			return nil
		})
	}
	err := p.Wait()

	sort.Strings(report.Downloaded)
	sort.Strings(report.Skipped)
	sort.Strings(report.Failed)
	s.log.Info(ctx, "media downloaded", "deck", deckID, "files", len(report.Downloaded),
		"skipped", len(report.Skipped), "failed", len(report.Failed), "size", humanize.Bytes(uint64(report.Bytes)))
	return &report, err
}

func (s *MediaService) download(ctx context.Context, deckID uuid.UUID, name, dst string) (int64, bool, error) {
	url, err := s.locator.DownloadURL(ctx, deckID, name)
	if err != nil {
		return 0, false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Warn(ctx, "media download failed", "deck", deckID, "name", name, "status", resp.StatusCode)
		return 0, false, nil
	}

	n, err := filex.WriteAtomic(dst, resp.Body, make([]byte, downloadBlockSize))
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// SyncDeckMedia refreshes the deck's media catalog and downloads what the
// deck's notes need.
func (s *MediaService) SyncDeckMedia(ctx context.Context, deckID uuid.UUID) (report *MediaSyncReport, err error) {
	defer func() {
		if err != nil {
			s.bus.Publish(status.Event{Deck: deckID, Status: status.Failed, Err: err})
		}
	}()

	since, err := s.records.Watermark(ctx, deckID, store.MediaWatermark)
	if err != nil {
		return nil, err
	}

	var (
		assets []models.MediaAsset
		latest *time.Time
	)
	for page, err := range s.remote.FetchMediaCatalog(ctx, deckID, since) {
		if err != nil {
			return nil, fmt.Errorf("fetch media catalog: %w", err)
		}
		assets = append(assets, page.Assets...)
		latest = models.LaterOf(latest, page.LatestUpdate)
	}
	report = &MediaSyncReport{Catalog: len(assets)}

	if report.Referenced, err = s.markReferenced(ctx, deckID, assets); err != nil {
		return nil, err
	}
	if report.Copied, err = s.copyMatching(ctx, deckID, assets); err != nil {
		return nil, err
	}
	if err := s.records.UpsertMediaCatalog(ctx, deckID, assets); err != nil {
		return nil, err
	}

	wanted, err := s.records.DownloadableMediaNames(ctx, deckID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(wanted))
	for n := range wanted {
		names = append(names, n)
	}
	sort.Strings(names)

	if report.Download, err = s.DownloadMedia(ctx, deckID, names); err != nil {
		return report, err
	}

	if latest != nil && (since == nil || latest.After(*since)) {
		if err := s.records.SetWatermark(ctx, deckID, store.MediaWatermark, *latest); err != nil {
			return report, err
		}
	}
	s.bus.Publish(status.Event{Deck: deckID, Status: status.Done, Detail: "media"})
	return report, nil
}

// markReferenced sets Referenced on the assets whose names appear in the
// deck's stored note fields. The catalog flag can lag behind note edits, so
// it is only ever raised here.
func (s *MediaService) markReferenced(ctx context.Context, deckID uuid.UUID, assets []models.MediaAsset) ([]string, error) {
	if len(assets) == 0 {
		return nil, nil
	}
	inNotes, err := s.records.MediaNamesReferenced(ctx, deckID)
	if err != nil {
		return nil, fmt.Errorf("referenced media: %w", err)
	}

	var marked []string
	for i := range assets {
		if assets[i].Referenced {
			continue
		}
		if _, ok := inNotes[assets[i].Name]; ok {
			assets[i].Referenced = true
			marked = append(marked, assets[i].Name)
		}
	}
	sort.Strings(marked)
	if len(marked) > 0 {
		s.log.Info(ctx, "catalog entries referenced by notes", "deck", deckID, "names", marked)
	}
	return marked, nil
}

// copyMatching satisfies new catalog names from local files that already
// hold the same content under another name.
func (s *MediaService) copyMatching(ctx context.Context, deckID uuid.UUID, assets []models.MediaAsset) ([]string, error) {
	byName := make(map[string]string)
	for _, a := range assets {
		if a.Hash == "" || !validMediaName(a.Name) {
			continue
		}
		exists, err := filex.Exists(filepath.Join(s.cfg.Dir, a.Name))
		if err != nil {
			return nil, err
		}
		if !exists {
			byName[a.Name] = a.Hash
		}
	}
	if len(byName) == 0 {
		return nil, nil
	}

	matches, err := s.records.MediaWithMatchingHash(ctx, deckID, byName)
	if err != nil {
		return nil, err
	}

	var copied []string
	for name, existing := range matches {
		src := filepath.Join(s.cfg.Dir, existing)
		ok, err := filex.Exists(src)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, err := filex.CopyFile(src, filepath.Join(s.cfg.Dir, name)); err != nil {
			return nil, err
		}
		copied = append(copied, name)
	}
	sort.Strings(copied)
	return copied, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/client"
	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/client/status"
	"github.com/dmitrijs2005/decksync/internal/client/store"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/google/uuid"
)

// RecordStore is the part of store.Store the merge engine writes to.
type RecordStore interface {
	Watermark(ctx context.Context, deckID uuid.UUID, kind store.WatermarkKind) (*time.Time, error)
	SetWatermark(ctx context.Context, deckID uuid.UUID, kind store.WatermarkKind, t time.Time) error
	UpsertNotes(ctx context.Context, deckID uuid.UUID, notes []models.Note) (store.UpsertResult, error)
	UpsertNoteTypes(ctx context.Context, deckID uuid.UUID, types []models.NoteType) error
	TransferModificationMarkers(ctx context.Context, notes []models.Note, src store.ModificationSource) error
	RemoveDeck(ctx context.Context, deckID uuid.UUID) error
}

// CollectionStore is the user's local collection.
type CollectionStore interface {
	store.ModificationSource
	EnsureNoteTypes(ctx context.Context, types []models.NoteType) error
	ApplyNotes(ctx context.Context, notes []models.Note, p models.Protection) ([]models.Note, error)
}

// SyncReport summarizes one SyncDeck run.
type SyncReport struct {
	Deck    uuid.UUID
	Pages   int
	Applied []models.Note
	Skipped []models.Note
	// Linked counts notes newly created in the collection.
	Linked int
	// Watermark is the deck's watermark after the run; nil if never synced.
	Watermark *time.Time
}

type SyncService struct {
	remote     client.Client
	records    RecordStore
	collection CollectionStore
	bus        *status.Bus
	log        logging.Logger
	pageSize   int
}

type SyncOption func(*SyncService)

func WithPageSize(n int) SyncOption {
	return func(s *SyncService) { s.pageSize = n }
}

func WithStatusBus(b *status.Bus) SyncOption {
	return func(s *SyncService) { s.bus = b }
}

func WithSyncLogger(l logging.Logger) SyncOption {
	return func(s *SyncService) { s.log = l }
}

func NewSyncService(remote client.Client, records RecordStore, collection CollectionStore, opts ...SyncOption) *SyncService {
	s := &SyncService{
		remote:     remote,
		records:    records,
		collection: collection,
		log:        logging.Nop(),
		pageSize:   2000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SyncService) publish(deckID uuid.UUID, st status.Status, detail string, err error) {
	s.bus.Publish(status.Event{Deck: deckID, Status: st, Detail: detail, Err: err})
}

// InstallDeck registers the deck's note types in both stores and runs a
// full sync.
func (s *SyncService) InstallDeck(ctx context.Context, deckID uuid.UUID) (*SyncReport, error) {
	if err := s.remote.CheckToken(); err != nil {
		return nil, err
	}
	if err := s.refreshNoteTypes(ctx, deckID); err != nil {
		s.publish(deckID, status.Failed, "note types", err)
		return nil, err
	}
	return s.SyncDeck(ctx, deckID)
}

// UninstallDeck forgets the deck. The collection's notes are left alone.
func (s *SyncService) UninstallDeck(ctx context.Context, deckID uuid.UUID) error {
	if err := s.records.RemoveDeck(ctx, deckID); err != nil {
		return err
	}
	s.log.Info(ctx, "deck uninstalled", "deck", deckID)
	return nil
}

func (s *SyncService) refreshNoteTypes(ctx context.Context, deckID uuid.UUID) error {
	types, err := s.remote.FetchNoteTypes(ctx, deckID)
	if err != nil {
		return fmt.Errorf("fetch note types: %w", err)
	}
	if err := s.records.UpsertNoteTypes(ctx, deckID, types); err != nil {
		return err
	}
	if err := s.collection.EnsureNoteTypes(ctx, types); err != nil {
		return fmt.Errorf("register note types in collection: %w", err)
	}
	s.log.Debug(ctx, "note types refreshed", "deck", deckID, "count", len(types))
	return nil
}

// SyncDeck pulls every update newer than the deck's watermark.
func (s *SyncService) SyncDeck(ctx context.Context, deckID uuid.UUID) (report *SyncReport, err error) {
	log := s.log.With("deck", deckID)
	defer func() {
		if err != nil {
			s.publish(deckID, status.Failed, "", err)
			log.Error(ctx, "deck sync failed", "err", err)
		}
	}()

	since, err := s.records.Watermark(ctx, deckID, store.NotesWatermark)
	if err != nil {
		return nil, err
	}
	report = &SyncReport{Deck: deckID, Watermark: since}

	var (
		latest     *time.Time
		protection models.Protection
		typesFresh bool
	)

	s.publish(deckID, status.FetchingUpdates, "", nil)
	for page, err := range s.remote.FetchUpdates(ctx, deckID, since, s.pageSize) {
		if err != nil {
			return nil, fmt.Errorf("fetch updates: %w", err)
		}
		report.Pages++
		latest = models.LaterOf(latest, page.LatestUpdate)
		protection.Add(page)

		s.bus.Publish(status.Event{Deck: deckID, Status: status.ApplyingUpdates, Current: report.Pages})
		res, err := s.records.UpsertNotes(ctx, deckID, page.Notes)
		if errors.Is(err, store.ErrIntegrity) && !typesFresh {
			log.Info(ctx, "unknown note types in page, refreshing", "err", err)
			typesFresh = true
			if err := s.refreshNoteTypes(ctx, deckID); err != nil {
				return nil, err
			}
			res, err = s.records.UpsertNotes(ctx, deckID, page.Notes)
		}
		if err != nil {
			return nil, err
		}
		report.Applied = append(report.Applied, res.Applied...)
		report.Skipped = append(report.Skipped, res.Skipped...)
	}

	if len(report.Applied) > 0 {
		s.publish(deckID, status.UpdatingCollection, "", nil)
		if err := s.applyToCollection(ctx, deckID, report, protection); err != nil {
			return nil, err
		}
	}

	if latest != nil && (since == nil || latest.After(*since)) {
		if err := s.records.SetWatermark(ctx, deckID, store.NotesWatermark, *latest); err != nil {
			return nil, err
		}
		report.Watermark = latest
	}

	for _, n := range report.Skipped {
		log.Warn(ctx, "update skipped, collection note belongs to another note",
			"note", n.ID, "collection_id", n.CollectionID)
	}
	log.Info(ctx, "deck synced", "pages", report.Pages, "applied", len(report.Applied),
		"skipped", len(report.Skipped), "linked", report.Linked)
	s.publish(deckID, status.Done, fmt.Sprintf("%d applied, %d skipped", len(report.Applied), len(report.Skipped)), nil)
	return report, nil
}

// applyToCollection writes accepted notes to the collection, links notes
// the collection created and copies modification counters back.
func (s *SyncService) applyToCollection(ctx context.Context, deckID uuid.UUID, report *SyncReport, p models.Protection) error {
	written, err := s.collection.ApplyNotes(ctx, report.Applied, p)
	if err != nil {
		return fmt.Errorf("apply notes to collection: %w", err)
	}

	wasLinked := make(map[uuid.UUID]bool, len(report.Applied))
	for _, n := range report.Applied {
		wasLinked[n.ID] = n.CollectionID != 0
	}
	var created []models.Note
	for _, n := range written {
		if n.LastUpdateType != models.UpdateDeleted && n.CollectionID != 0 && !wasLinked[n.ID] {
			created = append(created, n)
		}
	}
	if len(created) > 0 {
		res, err := s.records.UpsertNotes(ctx, deckID, created)
		if err != nil {
			return fmt.Errorf("link created notes: %w", err)
		}
		report.Linked = len(res.Applied)
		report.Skipped = append(report.Skipped, res.Skipped...)
	}

	return s.records.TransferModificationMarkers(ctx, written, s.collection)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/decksync/internal/client/services"
	"github.com/dmitrijs2005/decksync/internal/client/store"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

func deckArg(args []string, usage string) (uuid.UUID, error) {
	if len(args) == 0 {
		return uuid.Nil, fmt.Errorf("usage: %s", usage)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid deck id %q: %w", args[0], err)
	}
	return id, nil
}

func (a *App) printSyncReport(r *services.SyncReport) {
	fmt.Fprintf(a.out, "%d page(s), %d applied, %d skipped, %d new in collection\n",
		r.Pages, len(r.Applied), len(r.Skipped), r.Linked)
	for _, n := range r.Skipped {
		fmt.Fprintf(a.out, "  skipped %s: collection note %d belongs to another note\n", n.ID, n.CollectionID)
	}
	if r.Watermark != nil {
		fmt.Fprintf(a.out, "up to date as of %s\n", r.Watermark.Local().Format("2006-01-02 15:04:05"))
	}
}

func (a *App) Install(ctx context.Context, args []string) error {
	deck, err := deckArg(args, "install <deck>")
	if err != nil {
		return err
	}
	r, err := a.syncer.InstallDeck(ctx, deck)
	if err != nil {
		return err
	}
	a.printSyncReport(r)
	return nil
}

func (a *App) Sync(ctx context.Context, args []string) error {
	deck, err := deckArg(args, "sync <deck>")
	if err != nil {
		return err
	}
	r, err := a.syncer.SyncDeck(ctx, deck)
	if err != nil {
		return err
	}
	a.printSyncReport(r)
	return nil
}

func (a *App) Media(ctx context.Context, args []string) error {
	deck, err := deckArg(args, "media <deck>")
	if err != nil {
		return err
	}
	r, err := a.media.SyncDeckMedia(ctx, deck)
	if r != nil {
		fmt.Fprintf(a.out, "catalog: %d asset(s), %d copied locally\n", r.Catalog, len(r.Copied))
		if len(r.Referenced) > 0 {
			fmt.Fprintf(a.out, "referenced by notes: %s\n", strings.Join(r.Referenced, ", "))
		}
		if d := r.Download; d != nil {
			fmt.Fprintf(a.out, "downloaded %d (%s), already present %d, failed %d\n",
				len(d.Downloaded), humanize.Bytes(uint64(d.Bytes)), len(d.Skipped), len(d.Failed))
			for _, name := range d.Failed {
				fmt.Fprintf(a.out, "  failed: %s\n", name)
			}
		}
	}
	return err
}

func (a *App) Upload(ctx context.Context, args []string) error {
	deck, err := deckArg(args, "upload <deck> <file>...")
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.New("usage: upload <deck> <file>...")
	}
	uploaded, err := a.media.UploadMedia(ctx, deck, args[1:])
	var total int64
	for _, u := range uploaded {
		total += u.Size
		fmt.Fprintf(a.out, "  %s -> %s\n", u.Source, u.Name)
	}
	fmt.Fprintf(a.out, "uploaded %d file(s), %s\n", len(uploaded), humanize.Bytes(uint64(total)))
	return err
}

func (a *App) Uninstall(ctx context.Context, args []string) error {
	deck, err := deckArg(args, "uninstall <deck>")
	if err != nil {
		return err
	}
	answer, err := GetSimpleText(a.reader, fmt.Sprintf("Type %s to forget this deck", shortID(deck)), a.out)
	if err != nil {
		return err
	}
	if answer != shortID(deck) {
		fmt.Fprintln(a.out, "cancelled")
		return nil
	}
	if err := a.syncer.UninstallDeck(ctx, deck); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "deck removed; collection notes were kept")
	return nil
}

// Notes lists the deck's notes. Notes edited in the collection since their
// last sync are marked with '*'.
func (a *App) Notes(ctx context.Context, args []string) error {
	deck, err := deckArg(args, "notes <deck>")
	if err != nil {
		return err
	}
	notes, err := a.records.DeckNotes(ctx, deck)
	if err != nil {
		return err
	}

	edited := make(map[int64]bool)
	err = a.coll.WithSyncAttached(ctx, a.records, func(att *store.Attachment) error {
		ids, err := a.coll.LocallyModified(ctx, att)
		for _, id := range ids {
			edited[id] = true
		}
		return err
	})
	if err != nil {
		return err
	}

	for _, n := range notes {
		mark := " "
		if edited[n.CollectionID] {
			mark = "*"
		}
		first := ""
		if len(n.Fields) > 0 {
			first = truncate(n.Fields[0].Value, 40)
		}
		fmt.Fprintf(a.out, "%s %-14d %s  %-40s  %s\n", mark, n.CollectionID, n.ID, first, strings.Join(n.Tags, " "))
	}
	fmt.Fprintf(a.out, "%d note(s)\n", len(notes))
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func (a *App) Status(_ context.Context) error {
	events := a.progress.snapshot()
	if len(events) == 0 {
		fmt.Fprintln(a.out, "nothing synced in this session")
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-20s %s", e.Deck, e.Status, humanize.Time(e.At))
		if e.Err != nil {
			line += "  " + e.Err.Error()
		}
		fmt.Fprintln(a.out, line)
	}
	fmt.Fprintf(a.out, "sync database: %s\n", a.records.State())
	return nil
}

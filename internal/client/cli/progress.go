package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/status"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// progress renders status events and remembers the last one per deck.
type progress struct {
	out io.Writer
	tty bool

	mu        sync.Mutex
	last      map[uuid.UUID]status.Event
	bar       *progressbar.ProgressBar
	barStatus status.Status
}

func newProgress(out io.Writer, tty bool) *progress {
	return &progress{out: out, tty: tty, last: make(map[uuid.UUID]status.Event)}
}

func (p *progress) run(ctx context.Context, events <-chan status.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			p.handle(e)
		case <-ctx.Done():
			return
		}
	}
}

func (p *progress) handle(e status.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, seen := p.last[e.Deck]
	p.last[e.Deck] = e

	if e.Status == status.UploadingMedia || e.Status == status.DownloadingMedia {
		if e.Total > 0 && p.tty {
			p.updateBar(e)
			return
		}
	} else if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}

	switch {
	case e.Status == status.Failed:
		fmt.Fprintf(p.out, "%s: failed: %v\n", shortID(e.Deck), e.Err)
	case e.Status == status.Done:
		fmt.Fprintf(p.out, "%s: done %s\n", shortID(e.Deck), e.Detail)
	case !seen || prev.Status != e.Status:
		fmt.Fprintf(p.out, "%s: %s\n", shortID(e.Deck), e.Status)
	}
}

func (p *progress) updateBar(e status.Event) {
	if p.bar == nil || p.barStatus != e.Status {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		p.bar = progressbar.NewOptions(e.Total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(e.Status.String()),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		p.barStatus = e.Status
	}
	_ = p.bar.Set(e.Current)
	if e.Current >= e.Total {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

// snapshot returns the last event of every deck, ordered by deck id.
func (p *progress) snapshot() []status.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]status.Event, 0, len(p.last))
	for _, e := range p.last {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deck.String() < out[j].Deck.String() })
	return out
}

// latest returns the most recent event across decks.
func (p *progress) latest() (status.Event, bool) {
	var (
		best status.Event
		ok   bool
	)
	for _, e := range p.snapshot() {
		if !ok || e.At.After(best.At) {
			best, ok = e, true
		}
	}
	return best, ok
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

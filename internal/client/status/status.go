// Package status publishes sync progress to interested observers such as
// the CLI's progress display.
package status

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status int

const (
	Idle Status = iota
	FetchingUpdates
	ApplyingUpdates
	UpdatingCollection
	UploadingMedia
	DownloadingMedia
	Done
	Failed
)

var names = [...]string{
	Idle:               "idle",
	FetchingUpdates:    "fetching updates",
	ApplyingUpdates:    "applying updates",
	UpdatingCollection: "updating collection",
	UploadingMedia:     "uploading media",
	DownloadingMedia:   "downloading media",
	Done:               "done",
	Failed:             "failed",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Terminal reports whether no further events follow for the deck's run.
func (s Status) Terminal() bool {
	return s == Done || s == Failed
}

type Event struct {
	Deck   uuid.UUID
	Status Status
	Detail string
	Err    error
	At     time.Time

	// Current and Total carry progress within Status when known.
	Current int
	Total   int
}

// Bus fans events out to subscribers. The zero value is ready to use and a
// nil *Bus discards everything.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel with the given buffer and a cancel func that
// unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

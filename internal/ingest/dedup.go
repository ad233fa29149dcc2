package ingest

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Deduper remembers processed checkpoint keys.
type Deduper interface {
	Seen(key string, now time.Time) bool
	Mark(key string, now time.Time)
}

// Key identifies a checkpoint by source and content, so the same file
// re-reported with identical text is skipped while an edited file is not.
// A source id alone would let only its first version through; keying on
// the content too is safe because ingestion replaces a session's checkpoint
// baseline rather than adding to it, so a re-read edited file cannot
// double count.
func Key(sourceID, text string) string {
	sum := sha256.Sum256([]byte(text))
	digest := hex.EncodeToString(sum[:])
	if sourceID == "" {
		return digest
	}
	return sourceID + "@" + digest
}

// Window is an in-memory Deduper bounded both by age and by entry count.
// The oldest entries are evicted first.
type Window struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	order *list.List
	items map[string]*list.Element
}

type windowEntry struct {
	key string
	at  time.Time
}

// NewWindow returns a window keeping at most maxEntries keys for ttl.
func NewWindow(ttl time.Duration, maxEntries int) *Window {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &Window{
		ttl:   ttl,
		max:   maxEntries,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Seen reports whether key was marked within the window.
func (w *Window) Seen(key string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expire(now)
	_, ok := w.items[key]
	return ok
}

// Mark records key at now.
func (w *Window) Mark(key string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.items[key]; ok {
		w.order.Remove(el)
	}
	w.items[key] = w.order.PushBack(windowEntry{key: key, at: now})
	for w.order.Len() > w.max {
		w.evict(w.order.Front())
	}
	w.expire(now)
}

// Len returns the number of remembered keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}

func (w *Window) expire(now time.Time) {
	if w.ttl <= 0 {
		return
	}
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		if now.Sub(el.Value.(windowEntry).at) <= w.ttl {
			return
		}
		w.evict(el)
	}
}

func (w *Window) evict(el *list.Element) {
	w.order.Remove(el)
	delete(w.items, el.Value.(windowEntry).key)
}

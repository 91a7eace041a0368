package sequencer

import (
	"slices"
	"sync"
	"time"

	"beatseq/debug"

	"github.com/google/uuid"
)

const (
	DefaultMaxHistorySize = 50
	DefaultDebounce       = 300 * time.Millisecond
)

// Version is the public metadata of a history entry.
type Version struct {
	ID          string    `json:"id" yaml:"id"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	IsAutoSave  bool      `json:"isAutoSave" yaml:"isAutoSave"`
	// Pending is set while the entry can still absorb edits. Pending entries
	// cannot be jumped to.
	Pending bool `json:"pending" yaml:"pending"`
}

type historyEntry struct {
	Version
	project *Project // private deep copy, never handed out
}

// History is a bounded linear undo stack of project snapshots.
//
// Commits arriving within the debounce window of the previous commit replace
// the pending tail entry instead of appending. The pending slot has a single
// deadline that every coalesced commit pushes forward; once it passes, the
// entry is final. Finalization happens lazily on the next call that looks at
// the stack, so no timer goroutine is needed.
type History struct {
	mu       sync.Mutex
	entries  []*historyEntry
	current  int // -1 when empty
	pending  bool
	deadline time.Time

	maxSize  int
	debounce time.Duration
	clock    Clock
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithMaxSize bounds the number of retained entries (minimum 2).
func WithMaxSize(n int) HistoryOption {
	return func(h *History) { h.maxSize = max(n, 2) }
}

// WithDebounce sets the coalescing window. Zero disables coalescing.
func WithDebounce(d time.Duration) HistoryOption {
	return func(h *History) { h.debounce = max(d, 0) }
}

// WithClock replaces the system clock (tests).
func WithClock(c Clock) HistoryOption {
	return func(h *History) { h.clock = c }
}

// NewHistory creates an empty history.
func NewHistory(opts ...HistoryOption) *History {
	h := &History{
		current:  -1,
		maxSize:  DefaultMaxHistorySize,
		debounce: DefaultDebounce,
		clock:    RealClock(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Reset drops all entries and records p as the single baseline entry.
func (h *History) Reset(p *Project, label string) Version {
	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.entries)
	h.entries = h.entries[:0]
	h.current = -1
	h.pending = false
	e := h.newEntry(p, label, "", true)
	h.entries = append(h.entries, e)
	h.current = 0
	return e.Version
}

// Commit records an edited project. If a pending entry exists and its
// deadline has not passed, the snapshot replaces it and the deadline restarts.
// Otherwise any entries after the current one are discarded and a new pending
// entry is appended.
func (h *History) Commit(p *Project, label string, isAutoSave bool) Version {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	h.settle(now)

	if h.pending {
		e := h.entries[h.current]
		e.project = p.Copy()
		e.Name = label
		e.IsAutoSave = e.IsAutoSave && isAutoSave
		e.Timestamp = now
		h.deadline = now.Add(h.debounce)
		debug.LogEvery(20, "history", "coalesced into %s", e.ID)
		return e.Version
	}

	e := h.newEntry(p, label, "", isAutoSave)
	h.push(e)
	if h.debounce > 0 {
		e.Pending = true
		h.pending = true
		h.deadline = now.Add(h.debounce)
	}
	return e.Version
}

// SaveVersion appends a named checkpoint. It never coalesces and never
// becomes pending; a pending entry before it is finalized first.
func (h *History) SaveVersion(p *Project, name, description string) Version {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.finalize()
	e := h.newEntry(p, name, description, false)
	h.push(e)
	debug.Log("history", "saved version %q (%s)", name, e.ID)
	return e.Version
}

// Undo steps back one entry and returns a copy of its project. At the oldest
// entry it returns nil, false.
func (h *History) Undo() (*Project, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.finalize()
	if h.current <= 0 {
		return nil, false
	}
	h.current--
	return h.entries[h.current].project.Copy(), true
}

// Redo steps forward one entry. At the newest entry it returns nil, false.
func (h *History) Redo() (*Project, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.finalize()
	if h.current >= len(h.entries)-1 {
		return nil, false
	}
	h.current++
	return h.entries[h.current].project.Copy(), true
}

// JumpTo makes the entry identified by ref current and returns a copy of its
// project. ref is matched against version IDs first, then names (newest
// match wins). Pending entries are not addressable.
func (h *History) JumpTo(ref string) (*Project, Version, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.settle(h.clock.Now())
	idx := h.find(ref)
	if idx < 0 {
		return nil, Version{}, notFound(ErrVersionNotFound, "no saved version named "+ref)
	}
	h.finalize()
	h.current = idx
	e := h.entries[idx]
	return e.project.Copy(), e.Version, nil
}

func (h *History) find(ref string) int {
	for i, e := range h.entries {
		if !e.Pending && e.ID == ref {
			return i
		}
	}
	for i := len(h.entries) - 1; i >= 0; i-- {
		if e := h.entries[i]; !e.Pending && e.Name == ref {
			return i
		}
	}
	return -1
}

// Flush finalizes the pending entry now.
func (h *History) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finalize()
}

// Versions returns metadata for every entry, oldest first, and the index of
// the current entry.
func (h *History) Versions() ([]Version, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.settle(h.clock.Now())
	out := make([]Version, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Version
	}
	return out, h.current
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current >= 0 && h.current < len(h.entries)-1
}

// Len returns the number of entries, pending included.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Current returns the index of the current entry, or -1.
func (h *History) Current() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *History) newEntry(p *Project, name, description string, auto bool) *historyEntry {
	return &historyEntry{
		Version: Version{
			ID:          uuid.NewString(),
			Timestamp:   h.clock.Now(),
			Name:        name,
			Description: description,
			IsAutoSave:  auto,
		},
		project: p.Copy(),
	}
}

// push truncates the redo branch, appends e as current and enforces the
// size bound.
func (h *History) push(e *historyEntry) {
	if h.current < len(h.entries)-1 {
		dropped := len(h.entries) - 1 - h.current
		clear(h.entries[h.current+1:])
		h.entries = h.entries[:h.current+1]
		debug.Log("history", "truncated %d redo entries", dropped)
	}
	h.entries = append(h.entries, e)
	h.current = len(h.entries) - 1
	for len(h.entries) > h.maxSize {
		h.evict()
	}
}

// evict removes one entry. Named saves survive while an older auto-save
// other than the current entry exists; otherwise the oldest non-current
// entry goes.
func (h *History) evict() {
	victim := -1
	for i, e := range h.entries {
		if i != h.current && e.IsAutoSave {
			victim = i
			break
		}
	}
	if victim < 0 {
		victim = 0
		if h.current == 0 {
			victim = 1
		}
	}
	e := h.entries[victim]
	h.entries = slices.Delete(h.entries, victim, victim+1)
	if victim < h.current {
		h.current--
	}
	debug.Info("history", "capacity %d reached, evicted %q (%s)", h.maxSize, e.Name, e.ID)
}

func (h *History) settle(now time.Time) {
	if h.pending && !now.Before(h.deadline) {
		h.finalize()
	}
}

func (h *History) finalize() {
	if !h.pending {
		return
	}
	h.entries[len(h.entries)-1].Pending = false
	h.pending = false
}

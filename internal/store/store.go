// Package store holds the in-memory record of every submitted form image and
// its processing state.
//
// The Store is the only shared mutable resource in the pipeline. Every
// mutation runs under a single mutex so a record's fields are never observed
// half-written, and so an update that races a removal resolves
// deterministically: once Remove has returned, later updates for that id are
// silent no-ops.
//
// Records live only for the process lifetime. Each record exclusively owns a
// Preview, which is released when the record is removed.
package store

import (
	"sync"
	"time"

	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/rs/zerolog/log"
)

// Status is the processing state of a record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Record is one submitted image.
type Record struct {
	ID         string       `json:"id"`
	BatchID    string       `json:"batchId"`
	SourceName string       `json:"filename"`
	MIMEType   string       `json:"mimeType"`
	Size       int64        `json:"size"`
	Status     Status       `json:"status"`
	Result     *form.Fields `json:"data,omitempty"`
	Error      string       `json:"error,omitempty"`

	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CapturedAt  *time.Time `json:"capturedAt,omitempty"`

	Preview Preview `json:"-"`
}

// ChangeKind identifies the mutation that produced a Change.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
)

// Change describes one applied mutation. Previous is the zero Record for
// additions.
type Change struct {
	Kind     ChangeKind
	Record   Record
	Previous Record
	Version  uint64
}

// Observer is notified after a mutation has been applied. Observers run on
// the mutating goroutine, outside the store lock, so they may read the store.
type Observer func(Change)

// Option configures a Store.
type Option func(*Store)

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observers = append(s.observers, o)
	}
}

// Store is an insertion-ordered collection of records keyed by id.
type Store struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*Record
	version uint64

	obsMu     sync.RWMutex
	observers []Observer
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{records: make(map[string]*Record)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Observe registers an observer. It returns a function that unregisters it.
func (s *Store) Observe(o Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
	idx := len(s.observers) - 1
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		if idx < len(s.observers) {
			s.observers[idx] = nil
		}
	}
}

func (s *Store) notify(changes ...Change) {
	s.obsMu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		if o != nil {
			observers = append(observers, o)
		}
	}
	s.obsMu.RUnlock()

	for _, c := range changes {
		for _, o := range observers {
			o(c)
		}
	}
}

// Add appends records in the given order. Records whose id is already
// present are skipped; ids are never reused.
func (s *Store) Add(records ...Record) {
	s.mu.Lock()
	changes := make([]Change, 0, len(records))
	for i := range records {
		r := records[i]
		if r.ID == "" {
			log.Warn().Str("filename", r.SourceName).Msg("Refusing to add record without id")
			continue
		}
		if _, exists := s.records[r.ID]; exists {
			log.Warn().Str("id", r.ID).Msg("Refusing to add duplicate record id")
			continue
		}
		if r.Status == "" {
			r.Status = StatusPending
		}
		s.version++
		s.records[r.ID] = &r
		s.order = append(s.order, r.ID)
		changes = append(changes, Change{Kind: ChangeAdded, Record: r, Version: s.version})
	}
	s.mu.Unlock()

	s.notify(changes...)
}

// Update applies patch to the record with the given id. It returns false if
// the id is unknown, which is expected when a record was removed while its
// extraction was still in flight.
func (s *Store) Update(id string, patch Patch) bool {
	s.mu.Lock()
	r, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	prev := *r
	if !patch(r) {
		s.mu.Unlock()
		return true
	}
	s.version++
	c := Change{Kind: ChangeUpdated, Record: *r, Previous: prev, Version: s.version}
	s.mu.Unlock()

	s.notify(c)
	return true
}

// Remove deletes the record and releases its preview. It returns false if
// the id is unknown.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	r, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.records, id)
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.version++
	removed := *r
	c := Change{Kind: ChangeRemoved, Record: removed, Previous: removed, Version: s.version}
	s.mu.Unlock()

	if removed.Preview != nil {
		if err := removed.Preview.Release(); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to release preview")
		}
	}

	log.Debug().
		Str("id", id).
		Str("filename", removed.SourceName).
		Str("status", string(removed.Status)).
		Msg("Record removed")

	s.notify(c)
	return true
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Snapshot returns a point-in-time copy of all records in insertion order.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

// SnapshotVersion returns a snapshot together with the version it reflects.
func (s *Store) SnapshotVersion() ([]Record, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out, s.version
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Version is incremented on every applied mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Counts returns the number of records per status.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Status]int, 4)
	for _, r := range s.records {
		counts[r.Status]++
	}
	return counts
}

// Clear removes every record, releasing all previews.
func (s *Store) Clear() int {
	ids := make([]string, 0)
	for _, r := range s.Snapshot() {
		ids = append(ids, r.ID)
	}
	n := 0
	for _, id := range ids {
		if s.Remove(id) {
			n++
		}
	}
	return n
}

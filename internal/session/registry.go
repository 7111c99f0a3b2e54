package session

import (
	"sort"
	"sync"
)

// Registry is the process-wide mapping from session id to Record. It is
// the sole authority on identity-to-record mapping: no two concurrent
// callers ever observe two different records for the same id.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
	}
}

// Get returns the record for id, creating one in StateDisconnected on
// first reference. It never fails and is safe for concurrent use.
func (reg *Registry) Get(id string) *Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if rec, ok := reg.records[id]; ok {
		return rec
	}
	rec := newRecord(id)
	reg.records[id] = rec
	return rec
}

// Lookup returns the record for id without creating one.
func (reg *Registry) Lookup(id string) (*Record, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.records[id]
	return rec, ok
}

// Remove detaches the record for id. The caller must have already torn
// down its transport. Removing an unknown id is a no-op.
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.records, id)
}

// List returns summaries of all known records, ordered by session id.
func (reg *Registry) List() []Summary {
	reg.mu.Lock()
	records := make([]*Record, 0, len(reg.records))
	for _, rec := range reg.records {
		records = append(records, rec)
	}
	reg.mu.Unlock()

	summaries := make([]Summary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rec.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID < summaries[j].ID
	})
	return summaries
}

// Len returns the number of known records.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.records)
}

package cell

import "sync"

// Table is the style interning table (spec C2): Style -> StyleID with a
// reverse index for StyleID -> Style. IDs are monotonic and never reused.
// Concurrent-readable, single-writer via an internal RWMutex.
type Table struct {
	mu      sync.RWMutex
	byStyle map[Style]StyleID
	byID    []Style
}

// NewTable creates a Table with StyleID(0) pre-seeded to Default.
func NewTable() *Table {
	t := &Table{
		byStyle: make(map[Style]StyleID),
		byID:    []Style{Default},
	}
	t.byStyle[Default] = 0
	return t
}

// EnsureID returns the stable id for style, allocating a new one at the
// end of the table if it has not been seen before.
func (t *Table) EnsureID(style Style) StyleID {
	t.mu.RLock()
	if id, ok := t.byStyle[style]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check under the write lock; another writer may have inserted it.
	if id, ok := t.byStyle[style]; ok {
		return id
	}
	id := StyleID(len(t.byID))
	t.byID = append(t.byID, style)
	t.byStyle[style] = id
	return id
}

// Get returns the Style for id. Returns Default and false if id is out
// of range.
func (t *Table) Get(id StyleID) (Style, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.byID) {
		return Default, false
	}
	return t.byID[id], true
}

// Set replaces the style stored at id and updates the reverse index,
// used when a remote Style publication (a CacheUpdate.Style frame)
// must be applied at a fixed id. StyleID(0) can never be replaced.
func (t *Table) Set(id StyleID, style Style) {
	if id == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for int(id) >= len(t.byID) {
		t.byID = append(t.byID, Default)
	}
	old := t.byID[id]
	if old != style {
		delete(t.byStyle, old)
	}
	t.byID[id] = style
	t.byStyle[style] = id
}

// Len returns the number of interned styles, including StyleID(0).
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

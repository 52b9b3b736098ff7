package publish

import (
	"sync"

	"github.com/beachcabana/beach/internal/replication"
)

// deltaRing is a bounded, seq-ordered retention buffer for recently
// written cells. On overflow the oldest entries are simply dropped;
// the scheduler is responsible for noticing a viewer has fallen
// behind the retained window and demoting it (spec §4.8's "On
// overflow, the viewer is demoted").
type deltaRing struct {
	mu       sync.Mutex
	entries  []replication.SyncUpdate
	capacity int
	dropped  bool
}

func newDeltaRing(capacity int) *deltaRing {
	if capacity < 1 {
		capacity = 1
	}
	return &deltaRing{capacity: capacity}
}

func (r *deltaRing) push(u replication.SyncUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, u)
	if len(r.entries) > r.capacity {
		overflow := len(r.entries) - r.capacity
		r.entries = r.entries[overflow:]
		r.dropped = true
	}
}

// since returns entries with Seq > since, oldest first, bounded by
// budget, and whether more remain beyond the returned slice.
func (r *deltaRing) since(since uint64, budget int) ([]replication.SyncUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []replication.SyncUpdate
	hasMore := false
	for _, u := range r.entries {
		if u.Seq <= since {
			continue
		}
		if len(out) >= budget {
			hasMore = true
			break
		}
		out = append(out, u)
	}
	return out, hasMore
}

func (r *deltaRing) truncate(watermark uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := 0
	for i < len(r.entries) && r.entries[i].Seq <= watermark {
		i++
	}
	r.entries = r.entries[i:]
}

// overflowed reports whether entries have ever been dropped, i.e.
// whether some un-acked viewer may need a RequestResync. Callers clear
// it after handling a demotion.
func (r *deltaRing) overflowed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *deltaRing) clearOverflow() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = false
}

package craq

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/artillery-go/artillery/internal/domain"
)

// spinLimit is how many times a lock attempt yields the scheduler
// before falling back to a normal blocking lock. This is the "short
// spin-adapter" the design notes call for in place of the source's
// busy-wait try-lock loop (ERwLock): short enough that a contended
// insert/lookup costs a few scheduler yields, never a true spin.
const spinLimit = 32

// objectStore is the per-node versioned object map plus its two atomic
// version pointers (spec.md §3 "Node version pointers"). Both pointers
// start at NoVersion (-1) so the first write/clean-raise aligns
// correctly.
type objectStore struct {
	mu      sync.RWMutex
	objects map[int64]domain.Object

	latestVersion      int64
	latestCleanVersion int64
}

func newObjectStore() *objectStore {
	return &objectStore{
		objects:            make(map[int64]domain.Object),
		latestVersion:      domain.NoVersion,
		latestCleanVersion: domain.NoVersion,
	}
}

func (s *objectStore) LatestVersion() int64      { return atomic.LoadInt64(&s.latestVersion) }
func (s *objectStore) LatestCleanVersion() int64 { return atomic.LoadInt64(&s.latestCleanVersion) }

// bumpVersion atomically advances latest_version by 1 and returns the
// new version (the "fetch_add then +1" dance in the source, expressed
// directly as an atomic increment).
func (s *objectStore) bumpVersion() int64 {
	return atomic.AddInt64(&s.latestVersion, 1)
}

// raiseVersionTo CASes latest_version up to at least v, for the
// non-head write_versioned path where v may already be below what this
// node has seen.
func (s *objectStore) raiseVersionTo(v int64) {
	for {
		cur := atomic.LoadInt64(&s.latestVersion)
		if v <= cur {
			return
		}
		if atomic.CompareAndSwapInt64(&s.latestVersion, cur, v) {
			return
		}
	}
}

// raiseCleanVersionTo CASes latest_clean_version up to at least v,
// preserving the "monotonically non-decreasing" invariant, and reports
// whether it actually advanced.
func (s *objectStore) raiseCleanVersionTo(v int64) bool {
	for {
		cur := atomic.LoadInt64(&s.latestCleanVersion)
		if v <= cur {
			return false
		}
		if atomic.CompareAndSwapInt64(&s.latestCleanVersion, cur, v) {
			return true
		}
	}
}

func (s *objectStore) put(version int64, obj domain.Object) {
	s.spinLock()
	defer s.mu.Unlock()
	s.objects[version] = obj
}

func (s *objectStore) get(version int64) (domain.Object, bool) {
	s.spinRLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[version]
	return obj, ok
}

// gc drops every version below the clean watermark (spec.md §3: GC'd
// once latest_clean_version advances past them).
func (s *objectStore) gc(cleanVersion int64) {
	s.spinLock()
	defer s.mu.Unlock()
	for v := range s.objects {
		if v < cleanVersion {
			delete(s.objects, v)
		}
	}
}

func (s *objectStore) spinLock() {
	for i := 0; i < spinLimit; i++ {
		if s.mu.TryLock() {
			return
		}
		runtime.Gosched()
	}
	s.mu.Lock()
}

func (s *objectStore) spinRLock() {
	for i := 0; i < spinLimit; i++ {
		if s.mu.TryRLock() {
			return
		}
		runtime.Gosched()
	}
	s.mu.RLock()
}

package collect

import (
	"sync"
	"sync/atomic"

	"covmeter/internal/analyze"
	"covmeter/internal/numbits"
)

// lineSet is a growable bitmap of executed lines. Setting a bit is one
// atomic OR under a shared read-lock; the write-lock is taken only to grow
// the backing array, which doubles, so growth is rare and insertion stays
// amortized constant with no exclusive lock on the steady-state path.
type lineSet struct {
	mu    sync.RWMutex
	words []atomic.Uint64
}

func (s *lineSet) add(line int) {
	if line < 0 {
		return
	}
	idx := line / 64
	bit := uint64(1) << (line % 64)

	s.mu.RLock()
	if idx < len(s.words) {
		s.words[idx].Or(bit)
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	s.mu.Lock()
	if idx >= len(s.words) {
		size := 2 * len(s.words)
		if size < idx+1 {
			size = idx + 1
		}
		if size < 16 {
			size = 16
		}
		words := make([]atomic.Uint64, size)
		for i := range s.words {
			words[i].Store(s.words[i].Load())
		}
		s.words = words
	}
	s.words[idx].Or(bit)
	s.mu.Unlock()
}

func (s *lineSet) snapshot() numbits.NumBits {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var lines []int
	for i := range s.words {
		w := s.words[i].Load()
		for bit := 0; bit < 64; bit++ {
			if w&(1<<bit) != 0 {
				lines = append(lines, i*64+bit)
			}
		}
	}
	return numbits.FromNums(lines)
}

const arcShards = 64

// arcSet is a sharded set of executed arcs. Arc positions are sparse, so a
// hash set fits better than a bitmap; sharding keeps contention between the
// monitored program's threads low.
type arcSet struct {
	shards [arcShards]arcShard
}

type arcShard struct {
	mu sync.Mutex
	m  map[analyze.Arc]struct{}
}

func arcHash(a analyze.Arc) uint64 {
	h := uint64(uint32(a.From)) * 0x9e3779b1
	h ^= uint64(uint32(a.To)) * 0x85ebca77
	return h
}

func (s *arcSet) add(a analyze.Arc) {
	sh := &s.shards[arcHash(a)%arcShards]
	sh.mu.Lock()
	if sh.m == nil {
		sh.m = make(map[analyze.Arc]struct{})
	}
	sh.m[a] = struct{}{}
	sh.mu.Unlock()
}

func (s *arcSet) snapshot() []analyze.Arc {
	var arcs []analyze.Arc
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for a := range sh.m {
			arcs = append(arcs, a)
		}
		sh.mu.Unlock()
	}
	return arcs
}

// record accumulates one (unit, context) pair's executed positions during a
// run. It is written on the hot event path and snapshotted at flush/stop.
type record struct {
	lines lineSet
	arcs  arcSet
}

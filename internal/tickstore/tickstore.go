// Package tickstore is the append-only per-product tick store (spec
// §4.1, component T). Ticks must arrive in strictly increasing global
// seq order (across all products); the store assigns each product a
// small compacted id on first observation (per §9's dense-array design
// note) and exposes binary-search range queries over each product's
// tick slice without materializing copies.
//
// Store is concurrency-safe (RWMutex protected), mirroring the
// teacher's market.Book: a mutex-guarded mirror fed by an append-only
// event stream, with read-only derived queries.
package tickstore

import (
	"fmt"
	"sort"
	"sync"

	"txoptionfilter/pkg/types"
)

// ErrOutOfOrder is returned by Append when a tick's seq does not
// strictly increase relative to the last tick observed globally
// (spec §7, "Input shape" error kind — fatal, the pipeline refuses to
// start on malformed input).
var ErrOutOfOrder = fmt.Errorf("tick out of seq order")

// Store holds one append-only tick slice per product, plus the global
// sorted seq stream used by TicksUpTo.
type Store struct {
	mu sync.RWMutex

	ids      map[types.ProductKey]int
	keys     []types.ProductKey  // id -> key, in first-observation order
	products [][]types.Tick      // id -> that product's ticks, seq-ordered
	all      []types.Tick        // global append order == global seq order
	lastSeq  uint64
	haveSeq  bool
}

// New creates an empty tick store.
func New() *Store {
	return &Store{ids: make(map[types.ProductKey]int)}
}

// Append adds one tick. Ticks must arrive in strictly increasing
// global seq order; a tick with seq <= the last appended seq is
// rejected with ErrOutOfOrder.
func (s *Store) Append(t types.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.haveSeq && t.Seq <= s.lastSeq {
		return fmt.Errorf("append seq=%d after seq=%d: %w", t.Seq, s.lastSeq, ErrOutOfOrder)
	}

	id, ok := s.ids[t.Product]
	if !ok {
		id = len(s.keys)
		s.ids[t.Product] = id
		s.keys = append(s.keys, t.Product)
		s.products = append(s.products, nil)
	}
	s.products[id] = append(s.products[id], t)
	s.all = append(s.all, t)
	s.lastSeq = t.Seq
	s.haveSeq = true
	return nil
}

// Products returns all product keys observed so far, in the order
// they were first seen.
func (s *Store) Products() []types.ProductKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ProductKey, len(s.keys))
	copy(out, s.keys)
	return out
}

// ProductTicks returns the (read-only) seq-ordered tick slice for one
// product, or nil if the product has never been observed. Callers
// must not mutate the returned slice.
func (s *Store) ProductTicks(key types.ProductKey) []types.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[key]
	if !ok {
		return nil
	}
	return s.products[id]
}

// TicksUpTo returns the (read-only) prefix of the global tick stream
// with seq <= seqCap, located via binary search on the globally sorted
// seq array rather than materializing a filtered copy (spec §4.1).
func (s *Store) TicksUpTo(seqCap uint64) []types.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := sort.Search(len(s.all), func(i int) bool { return s.all[i].Seq > seqCap })
	return s.all[:idx]
}

// LastIndexAtOrBefore returns the index within ticks (assumed sorted
// ascending by Seq) of the last tick with Seq <= seqCap, or -1 if none
// exists. It is the shared binary-search primitive the reconstructor
// uses to compute A(p,k) and B(p,k).
func LastIndexAtOrBefore(ticks []types.Tick, seqCap uint64) int {
	idx := sort.Search(len(ticks), func(i int) bool { return ticks[i].Seq > seqCap }) - 1
	return idx
}

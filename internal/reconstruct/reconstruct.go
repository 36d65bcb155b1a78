// Package reconstruct implements the order-book reconstruction engine
// (spec §4.3, component R): for each snapshot and product, it produces
// the latest-valid quote and the min-spread quote over the snapshot's
// interval, carrying sticky per-product state across snapshots.
package reconstruct

import (
	"math"
	"sync"

	"txoptionfilter/internal/tickstore"
	"txoptionfilter/internal/validity"
	"txoptionfilter/pkg/types"
)

// Result is the per-(product, snapshot) output of the reconstructor.
type Result struct {
	HasTick bool // whether p has any tick with seq <= seq_cap[k]

	LastRaw   types.OptQuote // the tick at B(p,k); Present iff HasTick
	LastValid types.OptQuote // sticky latest-valid quote after this snapshot

	MinPick   types.OptQuote // the min-spread pick; Present if one was found
	MinSpread float64        // MinPick's spread, or +Inf if MinPick is absent
}

// Reconstructor holds per-product sticky state (last_valid) that
// persists across snapshots — never cleared by an invalid tick, and
// never reset by the market-open sentinel (only ema_prev/q_hat_prev
// reset there, in the filter state machine).
type Reconstructor struct {
	mu        sync.Mutex // the engine may call Reconstruct concurrently for distinct products
	lastValid map[types.ProductKey]types.OptQuote
}

// New creates an empty reconstructor.
func New() *Reconstructor {
	return &Reconstructor{lastValid: make(map[types.ProductKey]types.OptQuote)}
}

// Reconstruct computes snapshot k's record for one product, given that
// product's full seq-ordered tick slice. seqCap and prevSeqCap are the
// current and previous snapshot's caps (§3's boot value for k=0).
func (r *Reconstructor) Reconstruct(product types.ProductKey, ticks []types.Tick, seqCap, prevSeqCap uint64) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	bIdx := tickstore.LastIndexAtOrBefore(ticks, seqCap)
	if bIdx == -1 {
		return Result{HasTick: false, LastValid: r.lastValid[product], MinSpread: math.Inf(1)}
	}

	priorValid := r.lastValid[product] // captured before this snapshot's update

	latest := ticks[bIdx]
	lastRaw := types.OptQuote{Present: true, Bid: latest.Bid, Ask: latest.Ask}

	newValid := priorValid
	for i := bIdx; i >= 0; i-- {
		if t := ticks[i]; validity.Check(t.Bid, t.Ask) {
			newValid = types.OptQuote{Present: true, Bid: t.Bid, Ask: t.Ask}
			break
		}
	}
	r.lastValid[product] = newValid

	aIdx := tickstore.LastIndexAtOrBefore(ticks, prevSeqCap)
	startIdx := aIdx
	if startIdx < 0 {
		startIdx = 0
	}

	var (
		bestQuote  types.OptQuote
		bestSpread float64
		bestSeq    uint64
		found      bool
	)

	for i := startIdx; i <= bIdx; i++ {
		t := ticks[i]
		if !validity.Check(t.Bid, t.Ask) {
			continue
		}
		q := types.OptQuote{Present: true, Bid: t.Bid, Ask: t.Ask}
		spread, finite := q.Spread()
		if !finite {
			continue
		}
		if !found || isBetterCandidate(spread, t.Seq, bestSpread, bestSeq) {
			bestQuote, bestSpread, bestSeq, found = q, spread, t.Seq, true
		}
	}

	if !found {
		if spread, finite := priorValid.Spread(); finite {
			bestQuote, bestSpread, found = priorValid, spread, true
		}
	}

	if found {
		if lvSpread, lvFinite := newValid.Spread(); lvFinite && math.Abs(lvSpread-bestSpread) <= 1e-9 {
			bestQuote, bestSpread = newValid, lvSpread
		}
	}

	res := Result{
		HasTick:   true,
		LastRaw:   lastRaw,
		LastValid: newValid,
		MinSpread: math.Inf(1),
	}
	if found {
		res.MinPick = bestQuote
		res.MinSpread = bestSpread
	}
	return res
}

// isBetterCandidate reports whether (spread, seq) should replace the
// current best (bestSpread, bestSeq): strictly smaller spread wins;
// within 1e-9 of equal, the larger seq wins (spec §4.3's tie-break).
func isBetterCandidate(spread float64, seq uint64, bestSpread float64, bestSeq uint64) bool {
	if spread < bestSpread-1e-9 {
		return true
	}
	if math.Abs(spread-bestSpread) <= 1e-9 {
		return seq > bestSeq
	}
	return false
}

// Package filter implements the EMA / outlier / replacement state
// machine (spec §4.5, component F): per product, it tracks the
// previous filtered quote and EMA, classifies the reconstructor's two
// candidates against a spread estimator, and deterministically picks
// the final filtered quote.
package filter

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"txoptionfilter/internal/config"
	"txoptionfilter/pkg/types"
)

// state is the persistent per-product memory carried across
// snapshots: the previous EMA and the previous filtered quote.
type state struct {
	emaPresent bool
	ema        float64

	qHatPresent bool
	qHatBid     float64
	qHatAsk     float64
}

// Machine runs the filter state machine for every product in a day,
// keyed by product. Constants come from config.ConstantsConfig so a
// test can exercise a different α/γ/λ without touching production
// values. mu guards states: the engine may call Step concurrently for
// distinct products sharing one Machine (one per side) when
// cfg.Engine.ParallelProducts is enabled.
type Machine struct {
	alpha, gamma0, gamma1, gamma2, lambda float64

	mu     sync.Mutex
	states map[types.ProductKey]*state
}

// New builds a Machine from the pipeline's tunable constants.
func New(c config.ConstantsConfig) *Machine {
	return &Machine{
		alpha:  c.Alpha,
		gamma0: c.Gamma0,
		gamma1: c.Gamma1,
		gamma2: c.Gamma2,
		lambda: c.Lambda,
		states: make(map[types.ProductKey]*state),
	}
}

// stateFor returns the persistent state for product, creating it on
// first sight.
func (m *Machine) stateFor(product types.ProductKey) *state {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[product]
	if !ok {
		st = &state{}
		m.states[product] = st
	}
	return st
}

// Step runs one snapshot's worth of the state machine for one
// product. qLast and qMin are the reconstructor's latest-valid and
// min-spread picks (already validity-filtered — Present implies
// valid). isOpenReset marks the snapshot at the market-open sentinel,
// at which ema_prev and q_hat_prev are treated as absent (§3, §4.5.1).
func (m *Machine) Step(product types.ProductKey, qLast, qMin types.OptQuote, isOpenReset bool) types.FilterResult {
	st := m.stateFor(product)

	qHatPrev := types.OptQuote{Present: st.qHatPresent, Bid: st.qHatBid, Ask: st.qHatAsk}
	emaPrev, emaPrevPresent := st.ema, st.emaPresent
	if isOpenReset {
		qHatPrev = types.OptQuote{}
		emaPrevPresent = false
	}
	mHat, mHatPresent := qHatPrev.Mid()

	emaK, emaKPresent := updateEMA(m.alpha, emaPrev, emaPrevPresent, qMin)

	gammaLast := m.gammaOf(qLast, mHat, mHatPresent, emaPrevPresent)
	gammaMin := m.gammaOf(qMin, mHat, mHatPresent, emaPrevPresent)

	classLast := m.classify(qLast, emaK, emaPrevPresent, gammaLast, mHat, mHatPresent)
	classMin := m.classify(qMin, emaK, emaPrevPresent, gammaMin, mHat, mHatPresent)

	var (
		chosen        types.OptQuote
		source        types.SourceTag
		reportedGamma float64
	)
	switch {
	case qLast.Present && !classLast.outlier:
		chosen, source, reportedGamma = qLast, types.SourceLastValid, gammaLast
	case qMin.Present && !classMin.outlier:
		chosen, source, reportedGamma = qMin, types.SourceMinValid, gammaMin
	default:
		chosen, source = qHatPrev, types.SourceReplacement
		if qMin.Present {
			reportedGamma = gammaMin
		} else {
			reportedGamma = gammaLast
		}
	}

	st.ema, st.emaPresent = emaK, emaKPresent
	st.qHatPresent, st.qHatBid, st.qHatAsk = chosen.Present, chosen.Bid, chosen.Ask

	minSpread, minSpreadFinite := qMin.Spread()
	if !minSpreadFinite {
		minSpread = math.Inf(1)
	}

	return types.FilterResult{
		LastBid: qLast.Bid, LastAsk: qLast.Ask, LastPresent: qLast.Present,
		MinBid: qMin.Bid, MinAsk: qMin.Ask, MinPresent: qMin.Present,
		MinSpread: minSpread,
		QHatBid:   chosen.Bid,
		QHatAsk:   chosen.Ask,
		QHatPresent:    chosen.Present,
		EMA:            emaK,
		EMAPresent:     emaKPresent,
		Gamma:          reportedGamma,
		LastOutlierTag: classLast.tag,
		MinOutlierTag:  classMin.tag,
		Source:         source,
	}
}

// updateEMA implements §4.5.1's four-way EMA recurrence.
func updateEMA(alpha, emaPrev float64, emaPrevPresent bool, qMin types.OptQuote) (float64, bool) {
	sK, sKPresent := qMin.Spread()
	switch {
	case !emaPrevPresent && !sKPresent:
		return 0, false
	case !emaPrevPresent && sKPresent:
		return sK, true
	case emaPrevPresent && !sKPresent:
		return emaPrev, true
	default:
		return alpha*emaPrev + (1-alpha)*sK, true
	}
}

// gammaOf implements §4.5.2's γ selection for one candidate quote.
// emaPrevPresent carries the same "no track record yet for this
// product" signal E6 uses (§9 Open Question 4): a brand-new product's
// first snapshot and the snapshot right after an open reset both force
// mHatPresent false here too, and both get gamma2, not gamma0.
func (m *Machine) gammaOf(q types.OptQuote, mHat float64, mHatPresent, emaPrevPresent bool) float64 {
	if !q.Present || q.Bid == 0 {
		return m.gamma0
	}
	if !mHatPresent {
		if !emaPrevPresent {
			return m.gamma2
		}
		return m.gamma0
	}
	mid, _ := q.Mid()
	if mid <= mHat+1e-9 {
		return m.gamma1
	}
	return m.gamma2
}

type classification struct {
	tag     string
	outlier bool
}

// classify implements §4.5.3's outlier classification. Matched
// conditions are collected as a list of condition numbers and rendered
// directly as the comma-joined tag string; no bitset representation of
// the tag is kept. E6 fires when
// no EMA track record exists yet going into this snapshot (the first
// snapshot for a product, or the snapshot right after an open reset),
// even though emaK may already have bootstrapped to s_k this round.
func (m *Machine) classify(q types.OptQuote, emaK float64, emaPrevPresent bool, gamma, mHat float64, mHatPresent bool) classification {
	if !q.Present {
		return classification{tag: "-"}
	}
	if !emaPrevPresent {
		return classification{tag: "6"}
	}
	if !mHatPresent {
		return classification{tag: "5"}
	}

	s := q.Ask - q.Bid
	var matched []int
	if s <= gamma*emaK {
		matched = append(matched, 1)
	}
	if s <= m.lambda {
		matched = append(matched, 2)
	}
	if q.Bid > mHat {
		matched = append(matched, 3)
	}
	if q.Ask < mHat && q.Bid > 0 {
		matched = append(matched, 4)
	}

	if len(matched) == 0 {
		return classification{tag: "V", outlier: true}
	}
	sort.Ints(matched)
	parts := make([]string, len(matched))
	for i, n := range matched {
		parts[i] = strconv.Itoa(n)
	}
	return classification{tag: strings.Join(parts, ",")}
}

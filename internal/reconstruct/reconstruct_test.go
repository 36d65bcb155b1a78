package reconstruct

import (
	"math"
	"testing"

	"txoptionfilter/pkg/types"
)

var product = types.ProductKey{Strike: 28000, Side: types.Call}

func tick(seq uint64, bid, ask float64) types.Tick {
	return types.Tick{Seq: seq, Product: product, Bid: bid, Ask: ask}
}

func TestSingleTickSingleStrike(t *testing.T) {
	t.Parallel()
	r := New()
	ticks := []types.Tick{tick(10, 5, 6)}
	got := r.Reconstruct(product, ticks, 100, 50)

	if !got.HasTick {
		t.Fatal("HasTick = false, want true")
	}
	if !got.LastValid.Present || got.LastValid.Bid != 5 || got.LastValid.Ask != 6 {
		t.Errorf("LastValid = %+v, want (5,6)", got.LastValid)
	}
	if !got.MinPick.Present || got.MinPick.Bid != 5 || got.MinPick.Ask != 6 {
		t.Errorf("MinPick = %+v, want (5,6)", got.MinPick)
	}
	if math.Abs(got.MinSpread-1) > 1e-9 {
		t.Errorf("MinSpread = %v, want 1", got.MinSpread)
	}
}

func TestStickyValidity(t *testing.T) {
	t.Parallel()
	r := New()
	ticks := []types.Tick{
		tick(10, 5, 6),
		tick(20, 0, 0),
		tick(30, 0, 0),
	}
	got := r.Reconstruct(product, ticks, 30, 0)

	if !got.LastValid.Present || got.LastValid.Bid != 5 || got.LastValid.Ask != 6 {
		t.Errorf("LastValid = %+v, want sticky (5,6) from seq=10", got.LastValid)
	}
	if !got.LastRaw.Present || got.LastRaw.Bid != 0 || got.LastRaw.Ask != 0 {
		t.Errorf("LastRaw = %+v, want (0,0) from seq=30", got.LastRaw)
	}
}

func TestMinSpreadTieBreakPrefersLargerSeq(t *testing.T) {
	t.Parallel()
	r := New()
	// spreads: seq=100 -> 0.4, seq=120 -> 0.4, seq=150 -> 0.5.
	// Min spread among these is 0.4, tied between seq=100 and seq=120;
	// larger seq (120) wins. Latest-valid pick at B=150 has spread 0.5,
	// which does not tie the 0.4 minimum, so no override applies.
	ticks := []types.Tick{
		tick(100, 10, 10.4),
		tick(120, 20, 20.4),
		tick(150, 30, 30.5),
	}
	got := r.Reconstruct(product, ticks, 150, 0)

	if !got.MinPick.Present || got.MinPick.Bid != 20 {
		t.Errorf("MinPick = %+v, want the seq=120 tick (bid=20)", got.MinPick)
	}
	if math.Abs(got.MinSpread-0.4) > 1e-9 {
		t.Errorf("MinSpread = %v, want 0.4", got.MinSpread)
	}
}

func TestLatestValidOverridesTieAtBoundary(t *testing.T) {
	t.Parallel()
	r := New()
	// Both candidates tie at spread 0.4; the latest-valid tick (at B,
	// seq=150) must win the tie over the interior seq=120 candidate.
	ticks := []types.Tick{
		tick(100, 10, 10.4),
		tick(120, 20, 20.4),
		tick(150, 30, 30.4),
	}
	got := r.Reconstruct(product, ticks, 150, 0)

	if !got.MinPick.Present || got.MinPick.Bid != 30 {
		t.Errorf("MinPick = %+v, want the seq=150 tick (bid=30) via latest-valid override", got.MinPick)
	}
}

func TestNoTickYetYieldsNoRow(t *testing.T) {
	t.Parallel()
	r := New()
	ticks := []types.Tick{tick(50, 5, 6)}
	got := r.Reconstruct(product, ticks, 10, 0)
	if got.HasTick {
		t.Errorf("HasTick = true, want false when no tick has seq <= seq_cap")
	}
}

func TestFallbackToPreviousValidQuoteWhenIntervalHasNoValidTick(t *testing.T) {
	t.Parallel()
	r := New()
	// Snapshot 1: establishes a valid sticky quote with finite spread.
	// Its last tick (seq=15) is invalid, so the next interval starts there.
	first := []types.Tick{tick(10, 5, 6), tick(15, 0, 0)}
	r.Reconstruct(product, first, 15, 0)

	// Snapshot 2: both ticks in the new interval [15,20] are invalid
	// (zero/zero and crossed); min-spread pick must fall back to the
	// prior valid quote (5,6) captured before this snapshot's update.
	second := []types.Tick{tick(10, 5, 6), tick(15, 0, 0), tick(20, 9, 8)}
	got := r.Reconstruct(product, second, 20, 15)

	if !got.MinPick.Present || got.MinPick.Bid != 5 || got.MinPick.Ask != 6 {
		t.Errorf("MinPick = %+v, want fallback to prior valid (5,6)", got.MinPick)
	}
	// last_valid stays sticky at (5,6) too, since the seq=20 tick is invalid.
	if !got.LastValid.Present || got.LastValid.Bid != 5 {
		t.Errorf("LastValid = %+v, want sticky (5,6)", got.LastValid)
	}
}

func TestDeepOTMValidQuoteExcludedFromMinSpreadPool(t *testing.T) {
	t.Parallel()
	r := New()
	// bid=0, ask=6 is valid (§4.4) but has infinite spread (§4.1) since
	// it fails the bid>0 requirement, so it cannot win min-spread.
	ticks := []types.Tick{tick(10, 0, 6)}
	got := r.Reconstruct(product, ticks, 10, 0)

	if !got.LastValid.Present {
		t.Error("LastValid should be present (deep OTM quote is valid)")
	}
	if got.MinPick.Present {
		t.Errorf("MinPick = %+v, want absent (no finite-spread valid candidate)", got.MinPick)
	}
	if !math.IsInf(got.MinSpread, 1) {
		t.Errorf("MinSpread = %v, want +Inf", got.MinSpread)
	}
}

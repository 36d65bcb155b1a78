// Package schedule holds the snapshot schedule (spec §3, §4.2,
// component S): an ordered list of (time_key, seq_cap, prev_seq_cap)
// triples read from an external source, plus the property checks that
// must hold before the engine will consume it.
package schedule

import "fmt"

// ErrNotMonotone is returned by Validate when seq_cap fails to
// strictly increase across snapshots.
var ErrNotMonotone = fmt.Errorf("schedule seq_cap is not strictly increasing")

// ErrBrokenPrevSeqCap is returned by Validate when prev_seq_cap[k]
// does not equal seq_cap[k-1] for some k >= 1, or when prev_seq_cap[0]
// is missing or not less than seq_cap[0].
var ErrBrokenPrevSeqCap = fmt.Errorf("schedule prev_seq_cap chain is broken")

// Row is one scheduled snapshot point.
type Row struct {
	TimeKey    string
	SeqCap     uint64
	PrevSeqCap uint64
}

// Schedule is the ordered sequence of snapshots for one trading day.
type Schedule struct {
	rows        []Row
	openResetAt int // index of the "090000" row, or -1 if absent
}

// New wraps rows into a Schedule, locating the market-open reset
// snapshot once so the engine never does a per-snapshot string
// compare.
func New(rows []Row, openResetKey string) *Schedule {
	s := &Schedule{rows: rows, openResetAt: -1}
	for i, r := range rows {
		if r.TimeKey == openResetKey {
			s.openResetAt = i
			break
		}
	}
	return s
}

// Len returns the number of scheduled snapshots.
func (s *Schedule) Len() int { return len(s.rows) }

// Row returns the snapshot at index i.
func (s *Schedule) Row(i int) Row { return s.rows[i] }

// Rows returns the full ordered snapshot list. Callers must not
// mutate the returned slice.
func (s *Schedule) Rows() []Row { return s.rows }

// IsOpenReset reports whether snapshot index i is the market-open
// reset point.
func (s *Schedule) IsOpenReset(i int) bool { return i == s.openResetAt }

// Validate checks the invariants from spec §4.2: seq_cap strictly
// increasing, prev_seq_cap[k] == seq_cap[k-1] for k>=1, and
// prev_seq_cap[0] present and less than seq_cap[0].
func (s *Schedule) Validate() error {
	if len(s.rows) == 0 {
		return nil
	}
	first := s.rows[0]
	if first.PrevSeqCap >= first.SeqCap {
		return fmt.Errorf("row 0 (%s): prev_seq_cap=%d must be < seq_cap=%d: %w",
			first.TimeKey, first.PrevSeqCap, first.SeqCap, ErrBrokenPrevSeqCap)
	}
	for k := 1; k < len(s.rows); k++ {
		prev, cur := s.rows[k-1], s.rows[k]
		if cur.SeqCap <= prev.SeqCap {
			return fmt.Errorf("row %d (%s): seq_cap=%d must exceed row %d's seq_cap=%d: %w",
				k, cur.TimeKey, cur.SeqCap, k-1, prev.SeqCap, ErrNotMonotone)
		}
		if cur.PrevSeqCap != prev.SeqCap {
			return fmt.Errorf("row %d (%s): prev_seq_cap=%d must equal row %d's seq_cap=%d: %w",
				k, cur.TimeKey, cur.PrevSeqCap, k-1, prev.SeqCap, ErrBrokenPrevSeqCap)
		}
	}
	return nil
}

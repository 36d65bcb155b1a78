package schedule

import (
	"errors"
	"testing"
)

func TestValidateMonotoneSeqCap(t *testing.T) {
	t.Parallel()
	s := New([]Row{
		{TimeKey: "084500", SeqCap: 10, PrevSeqCap: 0},
		{TimeKey: "084515", SeqCap: 10, PrevSeqCap: 10},
	}, "090000")
	if err := s.Validate(); !errors.Is(err, ErrNotMonotone) {
		t.Errorf("Validate() = %v, want ErrNotMonotone", err)
	}
}

func TestValidateBrokenPrevSeqCapChain(t *testing.T) {
	t.Parallel()
	s := New([]Row{
		{TimeKey: "084500", SeqCap: 10, PrevSeqCap: 0},
		{TimeKey: "084515", SeqCap: 20, PrevSeqCap: 15},
	}, "090000")
	if err := s.Validate(); !errors.Is(err, ErrBrokenPrevSeqCap) {
		t.Errorf("Validate() = %v, want ErrBrokenPrevSeqCap", err)
	}
}

func TestValidateBootPrevSeqCap(t *testing.T) {
	t.Parallel()
	s := New([]Row{
		{TimeKey: "084500", SeqCap: 10, PrevSeqCap: 10},
	}, "090000")
	if err := s.Validate(); !errors.Is(err, ErrBrokenPrevSeqCap) {
		t.Errorf("Validate() = %v, want ErrBrokenPrevSeqCap for prev_seq_cap[0] >= seq_cap[0]", err)
	}
}

func TestValidateWellFormedSchedule(t *testing.T) {
	t.Parallel()
	s := New([]Row{
		{TimeKey: "084500", SeqCap: 10, PrevSeqCap: 0},
		{TimeKey: "085945", SeqCap: 20, PrevSeqCap: 10},
		{TimeKey: "090000", SeqCap: 30, PrevSeqCap: 20},
	}, "090000")
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if !s.IsOpenReset(2) {
		t.Error("IsOpenReset(2) = false, want true for \"090000\" row")
	}
	if s.IsOpenReset(0) || s.IsOpenReset(1) {
		t.Error("IsOpenReset should be false for non-090000 rows")
	}
}

func TestIsOpenResetAbsentWhenScheduleNeverCrossesIt(t *testing.T) {
	t.Parallel()
	s := New([]Row{
		{TimeKey: "084500", SeqCap: 10, PrevSeqCap: 0},
		{TimeKey: "084515", SeqCap: 20, PrevSeqCap: 10},
	}, "090000")
	for i := 0; i < s.Len(); i++ {
		if s.IsOpenReset(i) {
			t.Errorf("IsOpenReset(%d) = true, schedule never crosses 090000", i)
		}
	}
}

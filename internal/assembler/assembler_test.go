package assembler

import (
	"testing"

	"txoptionfilter/pkg/types"
)

func TestMergeBothSidesPresent(t *testing.T) {
	t.Parallel()
	call := &types.FilterResult{QHatBid: 5, QHatAsk: 6, Source: types.SourceLastValid, EMA: 1, Gamma: 2.0, LastOutlierTag: "6", MinOutlierTag: "6"}
	put := &types.FilterResult{QHatBid: 3, QHatAsk: 4, Source: types.SourceMinValid, EMA: 0.5, Gamma: 1.5, LastOutlierTag: "1", MinOutlierTag: "1,2"}

	row := Merge("084515", 28000, call, put, 1.2, 7)

	if row.CallBid != 5 || row.CallAsk != 6 || row.CallSource != types.SourceLastValid {
		t.Errorf("call side = %+v", row)
	}
	if row.PutBid != 3 || row.PutAsk != 4 || row.PutSource != types.SourceMinValid {
		t.Errorf("put side = %+v", row)
	}
	if row.TimeKey != "084515" || row.Strike != 28000 || row.SnapshotSysID != 7 {
		t.Errorf("identity fields = %+v", row)
	}
}

func TestMergeMissingSideDefaults(t *testing.T) {
	t.Parallel()
	call := &types.FilterResult{QHatBid: 5, QHatAsk: 6, Source: types.SourceLastValid, Gamma: 1.2, LastOutlierTag: "6", MinOutlierTag: "6"}

	row := Merge("084515", 28000, call, nil, 1.2, 1)

	if row.PutBid != 0 || row.PutAsk != 0 {
		t.Errorf("PutBid/Ask = %v/%v, want 0/0", row.PutBid, row.PutAsk)
	}
	if row.PutGamma != 1.2 {
		t.Errorf("PutGamma = %v, want gamma0=1.2", row.PutGamma)
	}
	if row.PutLastOutlier != "-" || row.PutMinOutlier != "-" {
		t.Errorf("Put outlier tags = %q/%q, want \"-\"/\"-\"", row.PutLastOutlier, row.PutMinOutlier)
	}
}

func TestMergeBothSidesMissing(t *testing.T) {
	t.Parallel()
	row := Merge("084515", 28000, nil, nil, 1.2, 0)
	if row.CallGamma != 1.2 || row.PutGamma != 1.2 {
		t.Errorf("gammas = %v/%v, want 1.2/1.2", row.CallGamma, row.PutGamma)
	}
	if row.CallLastOutlier != "-" || row.PutLastOutlier != "-" {
		t.Errorf("outlier tags not defaulted to dash: %+v", row)
	}
}

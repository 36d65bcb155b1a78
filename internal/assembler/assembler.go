// Package assembler implements the output assembler (spec §4.6,
// component O): it merges one snapshot's per-side filter results into
// a single (time_key, strike) row, applying the spec's default values
// for a side with no product state.
package assembler

import "txoptionfilter/pkg/types"

// Merge combines the Call and Put filter results for one (snapshot,
// strike) into a SnapshotRow. Either side may be nil, meaning no
// product state was observed for that side this snapshot; per §4.6,
// numeric fields then default to 0, gamma defaults to gamma0, and
// outlier tags default to "-".
func Merge(timeKey string, strike int, call, put *types.FilterResult, gamma0 float64, sysID int) types.SnapshotRow {
	row := types.SnapshotRow{
		TimeKey:       timeKey,
		Strike:        strike,
		CallGamma:     gamma0,
		PutGamma:      gamma0,
		CallLastOutlier: "-",
		CallMinOutlier:  "-",
		PutLastOutlier:  "-",
		PutMinOutlier:   "-",
		SnapshotSysID: sysID,
	}

	if call != nil {
		row.CallBid, row.CallAsk = call.QHatBid, call.QHatAsk
		row.CallSource = call.Source
		row.CallLastBid, row.CallLastAsk = call.LastBid, call.LastAsk
		row.CallLastOutlier = call.LastOutlierTag
		row.CallMinBid, row.CallMinAsk = call.MinBid, call.MinAsk
		row.CallMinOutlier = call.MinOutlierTag
		row.CallEMA = call.EMA
		row.CallGamma = call.Gamma
	}

	if put != nil {
		row.PutBid, row.PutAsk = put.QHatBid, put.QHatAsk
		row.PutSource = put.Source
		row.PutLastBid, row.PutLastAsk = put.LastBid, put.LastAsk
		row.PutLastOutlier = put.LastOutlierTag
		row.PutMinBid, row.PutMinAsk = put.MinBid, put.MinAsk
		row.PutMinOutlier = put.MinOutlierTag
		row.PutEMA = put.EMA
		row.PutGamma = put.Gamma
	}

	return row
}

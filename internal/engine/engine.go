// Package engine is the central orchestrator of the filtering
// pipeline.
//
// It wires together the six components in the order the
// specification fixes:
//
//  1. tickstore holds the day's ticks, grouped by product.
//  2. schedule supplies the ordered snapshot list.
//  3. reconstruct produces the latest-valid and min-spread picks per
//     (product, snapshot).
//  4. validity gates which reconstructed quotes are usable.
//  5. filter runs the EMA / outlier / replacement state machine.
//  6. assembler merges both sides into one emitted row.
//
// Data flow is strictly sequential across snapshots; within one
// snapshot, per-product work may run concurrently when configured.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"txoptionfilter/internal/assembler"
	"txoptionfilter/internal/config"
	"txoptionfilter/internal/filter"
	"txoptionfilter/internal/metrics"
	"txoptionfilter/internal/reconstruct"
	"txoptionfilter/internal/schedule"
	"txoptionfilter/internal/store"
	"txoptionfilter/internal/tickstore"
	"txoptionfilter/pkg/types"
)

// Engine runs the T → R → V → F → O fold over one day's ticks and
// schedule.
type Engine struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Registry

	ticks       *tickstore.Store
	checkpoints *store.Store    // nil when cfg.Store.CheckpointDir is unset
	filterC     *filter.Machine // Call side state, independent of Put
	filterP     *filter.Machine
	recon       *reconstruct.Reconstructor
}

// New wires an Engine from configuration, a logger, and an optional
// metrics registry (nil disables metrics observation). If
// cfg.Store.CheckpointDir is set, Run will resume a day from its
// checkpoint when one exists for the same schedule, and persist one
// after computing it.
func New(cfg config.Config, logger *slog.Logger, reg *metrics.Registry) (*Engine, error) {
	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
		ticks:   tickstore.New(),
		filterC: filter.New(cfg.Constants),
		filterP: filter.New(cfg.Constants),
		recon:   reconstruct.New(),
	}
	if cfg.Store.CheckpointDir != "" {
		cp, err := store.Open(cfg.Store.CheckpointDir)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint store: %w", err)
		}
		e.checkpoints = cp
	}
	return e, nil
}

// Ingest appends one day's ticks to the engine's tick store. Ticks
// must already be sorted by seq; an out-of-order tick is a fatal
// "input shape" error per spec §7.
func (e *Engine) Ingest(ticks []types.Tick) error {
	for _, t := range ticks {
		if err := e.ticks.Append(t); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
	}
	return nil
}

// Run executes the full schedule against the ingested ticks for one
// trading day (identified by dayKey, e.g. "20260731"), returning one
// SnapshotRow per (snapshot, strike) pair observed that day. If a
// checkpoint store is configured and holds a checkpoint for dayKey
// computed under an identical schedule, Run returns it directly
// without replaying any ticks; otherwise it computes the day fresh
// and, on success, saves a new checkpoint. ctx.Err() is checked once
// per snapshot iteration (not per tick, to keep the hot loop
// allocation-free, per SPEC_FULL.md §5): a cancelled context stops a
// large single-threaded replay at the next snapshot boundary.
func (e *Engine) Run(ctx context.Context, dayKey string, sched *schedule.Schedule) ([]types.SnapshotRow, error) {
	if err := sched.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	fingerprint := store.Fingerprint(sched.Rows())
	if e.checkpoints != nil {
		cp, err := e.checkpoints.LoadDay(dayKey, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		if cp != nil {
			e.logger.Info("resumed day from checkpoint", "day_key", dayKey, "rows", len(cp.Rows))
			return cp.Rows, nil
		}
	}

	var rows []types.SnapshotRow
	sysID := 0

	for k := 0; k < sched.Len(); k++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled at snapshot %d: %w", k, err)
		}

		row := sched.Row(k)
		isOpenReset := sched.IsOpenReset(k)

		strikeResults, err := e.stepSnapshot(ctx, row, isOpenReset)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", row.TimeKey, err)
		}
		if len(strikeResults) == 0 {
			e.logger.Debug("missing data: no ticks yet for this snapshot", "time_key", row.TimeKey)
			if e.metrics != nil {
				e.metrics.ObserveMissingSnapshot()
			}
		}
		if e.metrics != nil {
			n := 0
			for _, pair := range strikeResults {
				if pair.call != nil {
					n++
				}
				if pair.put != nil {
					n++
				}
			}
			e.metrics.SetLastSnapshotProducts(n)
		}

		for _, strike := range sortedStrikes(strikeResults) {
			pair := strikeResults[strike]
			sysID++
			r := assembler.Merge(row.TimeKey, strike, pair.call, pair.put, e.cfg.Constants.Gamma0, sysID)
			rows = append(rows, r)
			e.observe(types.Call, pair.call)
			e.observe(types.Put, pair.put)
		}
	}

	if e.checkpoints != nil {
		if err := e.checkpoints.SaveDay(dayKey, fingerprint, rows); err != nil {
			return nil, fmt.Errorf("save checkpoint: %w", err)
		}
	}

	return rows, nil
}

type strikePair struct {
	call, put *types.FilterResult
}

// stepSnapshot runs the reconstructor, validity classifier (folded
// into reconstruct's use of internal/validity), and filter state
// machine for every product observed so far, grouped by strike.
// Products within the snapshot run concurrently when
// e.cfg.Engine.ParallelProducts is set (spec §5).
func (e *Engine) stepSnapshot(ctx context.Context, row schedule.Row, isOpenReset bool) (map[int]strikePair, error) {
	products := e.ticks.Products()
	results := make(map[types.ProductKey]*types.FilterResult, len(products))

	if e.cfg.Engine.ParallelProducts {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.Engine.MaxProductWorkers)
		type keyed struct {
			key types.ProductKey
			res *types.FilterResult
		}
		resCh := make(chan keyed, len(products))
		for _, p := range products {
			p := p
			g.Go(func() error {
				resCh <- keyed{p, e.computeProduct(p, row, isOpenReset)}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		close(resCh)
		for item := range resCh {
			if item.res != nil {
				results[item.key] = item.res
			}
		}
	} else {
		for _, p := range products {
			if res := e.computeProduct(p, row, isOpenReset); res != nil {
				results[p] = res
			}
		}
	}

	byStrike := make(map[int]strikePair)
	for key, res := range results {
		pair := byStrike[key.Strike]
		switch key.Side {
		case types.Call:
			pair.call = res
		case types.Put:
			pair.put = res
		}
		byStrike[key.Strike] = pair
	}
	return byStrike, nil
}

// computeProduct runs R and F for one product at one snapshot. It
// returns nil if the product has no tick yet at this snapshot's
// seq_cap — no row is emitted, independent of whether this snapshot
// is the open-reset snapshot (spec §9's open question).
func (e *Engine) computeProduct(p types.ProductKey, row schedule.Row, isOpenReset bool) *types.FilterResult {
	ticks := e.ticks.ProductTicks(p)
	rec := e.recon.Reconstruct(p, ticks, row.SeqCap, row.PrevSeqCap)
	if !rec.HasTick {
		return nil
	}

	m := e.filterFor(p.Side)
	res := m.Step(p, rec.LastValid, rec.MinPick, isOpenReset)
	return &res
}

func (e *Engine) filterFor(side types.Side) *filter.Machine {
	if side == types.Put {
		return e.filterP
	}
	return e.filterC
}

func (e *Engine) observe(side types.Side, r *types.FilterResult) {
	if e.metrics == nil || r == nil {
		return
	}
	e.metrics.ObserveRow(side, r.Source)
	if r.LastOutlierTag == "V" {
		e.metrics.ObserveOutlier(side, "last")
	}
	if r.MinOutlierTag == "V" {
		e.metrics.ObserveOutlier(side, "min")
	}
}

// sortedStrikes returns the strikes of m in ascending order, so row
// emission order is deterministic for golden-file comparison.
func sortedStrikes(m map[int]strikePair) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

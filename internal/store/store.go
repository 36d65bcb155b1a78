// Package store provides crash-safe checkpoint persistence for a
// day's computed snapshot rows, using JSON files.
//
// Each trading day's rows are stored as a separate file:
// day_<dayKey>.json. Writes use atomic file replacement (write to
// .tmp, then rename) to prevent corruption from partial writes or
// crashes mid-save. Unlike a position snapshot, a day's checkpoint is
// only valid for the schedule it was computed against: LoadDay is
// handed the caller's current schedule fingerprint and refuses a
// checkpoint computed under a different one, forcing a clean
// recompute instead of silently replaying stale rows (spec §12's
// checkpoint/resume supplement).
package store

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"txoptionfilter/internal/schedule"
	"txoptionfilter/pkg/types"
)

// Store persists per-day checkpoints to JSON files in a designated
// directory. All operations are mutex-protected to prevent concurrent
// file corruption.
type Store struct {
	dir string     // directory containing day_*.json files
	mu  sync.Mutex // serializes all file operations
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// Fingerprint hashes a schedule's ordered (time_key, seq_cap,
// prev_seq_cap) triples into a short string a checkpoint can be
// tagged with. Two schedules that produce the same fingerprint fold
// over the same snapshots in the same order.
func Fingerprint(rows []schedule.Row) string {
	h := fnv.New64a()
	for _, r := range rows {
		h.Write([]byte(r.TimeKey))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatUint(r.SeqCap, 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatUint(r.PrevSeqCap, 10)))
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// SaveDay atomically persists one day's computed snapshot rows,
// tagged with the fingerprint of the schedule they were computed
// against.
func (s *Store) SaveDay(dayKey, fingerprint string, rows []types.SnapshotRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	checkpoint := types.CheckpointFile{
		GeneratedAt: time.Now().UTC(),
		Fingerprint: fingerprint,
		Rows:        rows,
	}
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	path := s.dayPath(dayKey)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadDay restores a day's checkpoint from disk, provided it was
// computed under the given schedule fingerprint. Returns nil, nil if
// no checkpoint exists for that day, or if one exists but was
// computed against a different schedule (stale — the caller must
// recompute rather than resume).
func (s *Store) LoadDay(dayKey, fingerprint string) (*types.CheckpointFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.dayPath(dayKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var checkpoint types.CheckpointFile
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	if checkpoint.Fingerprint != fingerprint {
		return nil, nil
	}
	return &checkpoint, nil
}

func (s *Store) dayPath(dayKey string) string {
	return filepath.Join(s.dir, "day_"+dayKey+".json")
}

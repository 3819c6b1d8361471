package content

import (
	"fmt"

	"ovc/shared/types"

	"go.uber.org/zap"
)

// Replay computes the full path state of branch at revision by overlaying
// revisions 0..revision in increasing order. Tombstones stay in the result
// so that a later addition of the same path reads as a resurrection.
// The returned map is owned by the caller.
func (s *Store) Replay(branch, revision int) (map[string]shared.PathEntry, error) {
	if revision < 0 {
		return nil, fmt.Errorf("negative revision %d", revision)
	}

	if cached, ok := s.memo.Get(memoKey(branch, revision)); ok {
		return shared.ClonePaths(cached), nil
	}

	var state map[string]shared.PathEntry
	start := 0
	if revision > 0 {
		if prev, ok := s.memo.Get(memoKey(branch, revision-1)); ok {
			state = shared.ClonePaths(prev)
			start = revision
		}
	}
	if state == nil {
		state = make(map[string]shared.PathEntry)
	}

	for r := start; r <= revision; r++ {
		changes, err := s.LoadRevision(branch, r)
		if err != nil {
			return nil, fmt.Errorf("replaying revision %d/%d: %w", branch, r, err)
		}
		shared.Overlay(state, changes)
	}

	s.logger.Debug("replayed branch",
		zap.Int("branch", branch),
		zap.Int("revision", revision),
		zap.Int("paths", len(state)))

	s.memo.Add(memoKey(branch, revision), shared.ClonePaths(state))
	return state, nil
}

// Live drops tombstones from a replayed state.
func Live(state map[string]shared.PathEntry) map[string]shared.PathEntry {
	out := make(map[string]shared.PathEntry, len(state))
	for path, entry := range state {
		if !entry.IsDeleted() {
			out[path] = entry
		}
	}
	return out
}

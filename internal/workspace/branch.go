package workspace

import (
	"fmt"
	"time"

	"ovc/internal/change"
	"ovc/internal/content"
	"ovc/internal/errors"
	"ovc/internal/validation"
	"ovc/shared/types"

	"go.uber.org/zap"
)

// createBranch writes revision 0 and the commit list of a new branch.
// With fromLast the latest state of parent is copied, blobs included;
// otherwise the live tree is captured. The new branch inherits the
// tracking patterns of parent.
func (r *Repository) createBranch(number int, name string, parent *shared.BranchInfo, fromLast bool) (*shared.BranchInfo, error) {
	info := &shared.BranchInfo{
		Number:          number,
		CreatedAt:       now(),
		Name:            name,
		TrackedPatterns: []string{},
	}
	if parent != nil {
		info.TrackedPatterns = append(info.TrackedPatterns, parent.TrackedPatterns...)
	}

	var revision map[string]shared.PathEntry
	if fromLast && parent != nil {
		latest, err := r.LatestRevision(parent.Number)
		if err != nil {
			return nil, err
		}
		state, err := r.store.Replay(parent.Number, latest)
		if err != nil {
			return nil, err
		}

		revision = content.Live(state)
		for path, entry := range revision {
			if entry.Size > 0 {
				if err := r.safe.CopyBlob(parent.Number, latest, number, 0, entry.NameHash); err != nil {
					r.store.RemoveBranch(number)
					return nil, fmt.Errorf("copying %s: %w", path, err)
				}
			}
		}
	} else {
		opts := change.Options{
			Reference:    map[string]shared.PathEntry{},
			CheckContent: r.State.Strict,
			PersistTo:    &change.Target{Branch: number, Revision: 0},
		}
		if r.State.Tracking() {
			opts.Restrict = true
			opts.RestrictTo = info.TrackedPatterns
		}
		changes, err := r.detector.Detect(opts)
		if err != nil {
			r.store.RemoveBranch(number)
			return nil, err
		}
		revision = changes.Revision()
	}

	if err := r.store.SaveRevision(number, 0, revision); err != nil {
		r.store.RemoveBranch(number)
		return nil, err
	}
	commits := []shared.CommitInfo{{
		Number:    0,
		CreatedAt: info.CreatedAt,
		Message:   "Branched on " + time.UnixMilli(info.CreatedAt).Format("2006-01-02 15:04:05"),
	}}
	if err := r.store.SaveCommits(number, commits); err != nil {
		r.store.RemoveBranch(number)
		return nil, err
	}

	return info, nil
}

// CreateBranch adds a branch. Unless stay is set the new branch becomes
// current; the working tree is not touched either way.
func (r *Repository) CreateBranch(name string, fromLast, stay bool) (*shared.BranchInfo, error) {
	if err := validation.BranchName(name); err != nil {
		return nil, err
	}
	if name != "" {
		if _, exists := r.State.FindByName(name); exists {
			return nil, errors.User("branch %q already exists", name)
		}
	}

	log := r.operation("branch")
	parent := r.State.Current()
	number := r.State.NextNumber()

	info, err := r.createBranch(number, name, parent, fromLast)
	if err != nil {
		return nil, err
	}

	r.State.Branches = append(r.State.Branches, *info)
	if !stay {
		r.State.Branch = number
	}
	if err := r.store.SaveState(r.State); err != nil {
		return nil, err
	}

	log.Info("created branch",
		zap.Int("branch", number),
		zap.String("name", info.Label()),
		zap.Bool("from_last", fromLast),
		zap.Int("current", r.State.Branch))

	created, _ := r.State.Find(number)
	return created, nil
}

// Commit records the live changes of the current branch as a new revision
// and returns its number.
func (r *Repository) Commit(message string) (int, error) {
	log := r.operation("commit")
	current := r.State.Current()

	latest, err := r.LatestRevision(current.Number)
	if err != nil {
		return 0, err
	}
	reference, err := r.store.Replay(current.Number, latest)
	if err != nil {
		return 0, err
	}

	revision := latest + 1
	// leftovers of an interrupted commit would shadow older blobs
	if err := r.store.RemoveRevision(current.Number, revision); err != nil {
		return 0, err
	}

	opts := r.detectOptions(reference, current.Number)
	opts.PersistTo = &change.Target{Branch: current.Number, Revision: revision}
	changes, err := r.detector.Detect(opts)
	if err != nil {
		r.store.RemoveRevision(current.Number, revision)
		return 0, err
	}
	if changes.Empty() {
		r.store.RemoveRevision(current.Number, revision)
		return 0, errors.User("nothing to commit")
	}

	if err := r.store.SaveRevision(current.Number, revision, changes.Revision()); err != nil {
		return 0, err
	}

	commits, err := r.store.LoadCommits(current.Number)
	if err != nil {
		return 0, err
	}
	commits = append(commits, shared.CommitInfo{
		Number:    revision,
		CreatedAt: now(),
		Message:   message,
	})
	if err := r.store.SaveCommits(current.Number, commits); err != nil {
		return 0, err
	}

	current.InSync = false
	if r.State.Picky {
		current.TrackedPatterns = []string{}
	}
	if err := r.store.SaveState(r.State); err != nil {
		return 0, err
	}

	log.Info("committed",
		zap.Int("branch", current.Number),
		zap.Int("revision", revision),
		zap.Int("additions", len(changes.Additions)),
		zap.Int("deletions", len(changes.Deletions)),
		zap.Int("modifications", len(changes.Modifications)))
	return revision, nil
}

// DeleteBranch removes a branch and all its revisions. Deleting the
// current branch makes the next remaining branch current.
func (r *Repository) DeleteBranch(number int, force bool) error {
	if len(r.State.Branches) <= 1 {
		return errors.User("cannot delete the only branch")
	}
	if _, err := r.branch(number); err != nil {
		return err
	}
	if number == r.State.Branch && !force {
		if err := r.requireClean(); err != nil {
			return err
		}
	}

	log := r.operation("delete")

	remaining := make([]shared.BranchInfo, 0, len(r.State.Branches)-1)
	next := -1
	for _, b := range r.State.Branches {
		if b.Number == number {
			continue
		}
		remaining = append(remaining, b)
		if next < 0 && b.Number > number {
			next = b.Number
		}
	}
	if next < 0 {
		next = remaining[len(remaining)-1].Number
	}

	if err := r.store.RemoveBranch(number); err != nil {
		return err
	}
	r.safe.Purge()

	r.State.Branches = remaining
	if r.State.Branch == number {
		r.State.Branch = next
	}
	if err := r.store.SaveState(r.State); err != nil {
		return err
	}

	log.Info("deleted branch", zap.Int("branch", number), zap.Int("current", r.State.Branch))
	return nil
}

// AddPattern adds a tracking pattern to the current branch. A pattern that
// matches no live file is refused unless forced.
func (r *Repository) AddPattern(pattern string, force bool) error {
	if !r.State.Tracking() {
		return errors.User("tracking patterns need track or picky mode")
	}
	if err := validation.Pattern(pattern); err != nil {
		return err
	}

	current := r.State.Current()
	for _, p := range current.TrackedPatterns {
		if p == pattern {
			return errors.User("pattern %q is already tracked", pattern)
		}
	}

	if !force {
		matches, err := r.detector.Detect(change.Options{
			Reference:  map[string]shared.PathEntry{},
			Restrict:   true,
			RestrictTo: []string{pattern},
		})
		if err != nil {
			return err
		}
		if len(matches.Additions) == 0 {
			return errors.Precondition("pattern %q matches no files", pattern)
		}
	}

	current.TrackedPatterns = append(current.TrackedPatterns, pattern)
	if err := r.store.SaveState(r.State); err != nil {
		return err
	}
	r.logger.Info("tracking pattern added", zap.String("pattern", pattern), zap.Int("branch", current.Number))
	return nil
}

// RemovePattern drops a tracking pattern from the current branch.
func (r *Repository) RemovePattern(pattern string) error {
	if !r.State.Tracking() {
		return errors.User("tracking patterns need track or picky mode")
	}

	current := r.State.Current()
	kept := make([]string, 0, len(current.TrackedPatterns))
	for _, p := range current.TrackedPatterns {
		if p != pattern {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(current.TrackedPatterns) {
		return errors.User("pattern %q is not tracked", pattern)
	}

	current.TrackedPatterns = kept
	if err := r.store.SaveState(r.State); err != nil {
		return err
	}
	r.logger.Info("tracking pattern removed", zap.String("pattern", pattern), zap.Int("branch", current.Number))
	return nil
}

// MarkInSync records that the current branch was committed to the
// underlying version control system.
func (r *Repository) MarkInSync() error {
	r.State.Current().InSync = true
	return r.store.SaveState(r.State)
}

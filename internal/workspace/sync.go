package workspace

import (
	"bytes"
	"fmt"
	"os"

	"ovc/internal/errors"
	"ovc/internal/merge"
	"ovc/shared/types"

	"go.uber.org/zap"
)

// Changes compares the live tree with branch at revision. In track and
// picky mode only files matched by the union of the current and target
// branch patterns are compared.
func (r *Repository) Changes(branch, revision int) (shared.ChangeSet, error) {
	if _, err := r.branch(branch); err != nil {
		return shared.ChangeSet{}, err
	}
	reference, err := r.store.Replay(branch, revision)
	if err != nil {
		return shared.ChangeSet{}, err
	}
	return r.detector.Detect(r.detectOptions(reference, r.State.Branch, branch))
}

// Uncommitted compares the live tree with the latest revision of the
// current branch.
func (r *Repository) Uncommitted() (shared.ChangeSet, error) {
	latest, err := r.LatestRevision(r.State.Branch)
	if err != nil {
		return shared.ChangeSet{}, err
	}
	return r.Changes(r.State.Branch, latest)
}

func (r *Repository) requireClean() error {
	changes, err := r.Uncommitted()
	if err != nil {
		return err
	}
	if !changes.Empty() {
		return errors.Precondition("%d uncommitted change(s), commit first or force", changes.Len())
	}
	return nil
}

// target returns the inverted change set that turns the live tree into
// branch at revision.
func (r *Repository) target(branch, revision int) (shared.ChangeSet, error) {
	if _, err := r.branch(branch); err != nil {
		return shared.ChangeSet{}, err
	}
	latest, err := r.LatestRevision(branch)
	if err != nil {
		return shared.ChangeSet{}, err
	}
	if revision < 0 || revision > latest {
		return shared.ChangeSet{}, errors.User("branch %d has no revision %d", branch, revision)
	}

	reference, err := r.store.Replay(branch, revision)
	if err != nil {
		return shared.ChangeSet{}, err
	}
	opts := r.detectOptions(reference, r.State.Branch, branch)
	opts.Invert = true
	return r.detector.Detect(opts)
}

// Switch makes the live tree match branch at revision and makes branch
// current. Uncommitted changes are refused unless forced.
func (r *Repository) Switch(branch, revision int, force bool) error {
	if !force {
		if err := r.requireClean(); err != nil {
			return err
		}
	}

	changes, err := r.target(branch, revision)
	if err != nil {
		return err
	}

	log := r.operation("switch")
	op, err := r.begin("switch", branch, revision)
	if err != nil {
		return err
	}

	for _, path := range shared.SortedPaths(changes.Additions) {
		if err := r.removeFile(path); err != nil {
			return err
		}
	}
	for _, set := range []map[string]shared.PathEntry{changes.Deletions, changes.Modifications} {
		for _, path := range shared.SortedPaths(set) {
			if err := r.safe.Restore(r.abs(path), branch, revision, set[path]); err != nil {
				return fmt.Errorf("restoring %s: %w", path, err)
			}
		}
	}

	r.State.Branch = branch
	if err := r.store.SaveState(r.State); err != nil {
		return err
	}
	if err := r.finish(op); err != nil {
		return err
	}

	log.Info("switched",
		zap.Int("branch", branch),
		zap.Int("revision", revision),
		zap.Int("removed", len(changes.Additions)),
		zap.Int("restored", len(changes.Deletions)+len(changes.Modifications)))
	return nil
}

// UpdateOptions selects how Update merges.
type UpdateOptions struct {
	Op     merge.Op
	Policy merge.Policy
	Force  bool
}

// Update merges branch at revision into the live tree of the current
// branch. Files only live are removed when Op removes, files only in the
// target are restored when Op inserts, and files changed on both sides
// are merged line by line; binary files are taken whole from one side.
// The current branch then tracks the union of both pattern sets.
func (r *Repository) Update(branch, revision int, opts UpdateOptions) error {
	if opts.Op == 0 {
		opts.Op = merge.Both
	}
	if !opts.Force {
		if err := r.requireClean(); err != nil {
			return err
		}
	}

	changes, err := r.target(branch, revision)
	if err != nil {
		return err
	}

	log := r.operation("update")
	op, err := r.begin("update", branch, revision)
	if err != nil {
		return err
	}

	if opts.Op.Removes() {
		for _, path := range shared.SortedPaths(changes.Additions) {
			if err := r.removeFile(path); err != nil {
				return err
			}
		}
	}
	if opts.Op.Inserts() {
		for _, path := range shared.SortedPaths(changes.Deletions) {
			if err := r.safe.Restore(r.abs(path), branch, revision, changes.Deletions[path]); err != nil {
				return fmt.Errorf("restoring %s: %w", path, err)
			}
		}
	}
	for _, path := range shared.SortedPaths(changes.Modifications) {
		if err := r.mergeFile(path, branch, revision, changes.Modifications[path], opts, log); err != nil {
			return err
		}
	}

	current := r.State.Current()
	if target, ok := r.State.Find(branch); ok {
		current.TrackedPatterns = union(current.TrackedPatterns, target.TrackedPatterns)
	}
	current.InSync = false
	if err := r.store.SaveState(r.State); err != nil {
		return err
	}
	if err := r.finish(op); err != nil {
		return err
	}

	log.Info("updated",
		zap.Int("branch", branch),
		zap.Int("revision", revision),
		zap.String("merge_op", opts.Op.String()),
		zap.String("policy", opts.Policy.String()))
	return nil
}

func (r *Repository) mergeFile(path string, branch, revision int, entry shared.PathEntry, opts UpdateOptions, log *zap.Logger) error {
	abs := r.abs(path)
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	live, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var theirs []byte
	if entry.Size > 0 {
		if theirs, err = r.safe.Read(branch, revision, entry.NameHash); err != nil {
			return err
		}
	}

	if r.classifier.IsBinary(path, live) || r.classifier.IsBinary(path, theirs) {
		choice, err := merge.Choose(opts.Policy, r.resolver, merge.Conflict{Path: path, Binary: true}, log)
		if err != nil {
			return err
		}
		if choice == merge.Theirs {
			return r.safe.Restore(abs, branch, revision, entry)
		}
		return nil
	}

	merged, err := merge.Merge(live, theirs, merge.Options{
		Op:       opts.Op,
		Policy:   opts.Policy,
		Resolver: r.resolver,
		Path:     path,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("merging %s: %w", path, err)
	}
	if bytes.Equal(merged, live) {
		return nil
	}
	if err := os.WriteFile(abs, merged, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Debug("merged file", zap.String("path", path))
	return nil
}

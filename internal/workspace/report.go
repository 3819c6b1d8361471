package workspace

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"ovc/internal/change"
	"ovc/internal/diff"
	"ovc/internal/errors"
	"ovc/shared/types"
)

// BranchStatus summarises one branch.
type BranchStatus struct {
	Info      shared.BranchInfo
	Revisions int
	Current   bool
}

// Status describes the repository and its uncommitted changes.
type Status struct {
	Mode     string
	Strict   bool
	Compress bool
	Branch   shared.BranchInfo
	Revision int
	Branches []BranchStatus
	Changes  shared.ChangeSet
}

func (r *Repository) Status() (*Status, error) {
	latest, err := r.LatestRevision(r.State.Branch)
	if err != nil {
		return nil, err
	}
	changes, err := r.Changes(r.State.Branch, latest)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Mode:     r.Mode(),
		Strict:   r.State.Strict,
		Compress: r.State.Compress,
		Branch:   *r.State.Current(),
		Revision: latest,
		Changes:  changes,
	}
	for _, b := range r.State.Branches {
		commits, err := r.store.LoadCommits(b.Number)
		if err != nil {
			return nil, err
		}
		status.Branches = append(status.Branches, BranchStatus{
			Info:      b,
			Revisions: len(commits),
			Current:   b.Number == r.State.Branch,
		})
	}
	return status, nil
}

// LogEntry is one commit of the current branch with its change counts.
type LogEntry struct {
	Commit  shared.CommitInfo
	Changed int // added or modified paths
	Deleted int
}

func (r *Repository) Log() ([]LogEntry, error) {
	commits, err := r.store.LoadCommits(r.State.Branch)
	if err != nil {
		return nil, err
	}

	entries := make([]LogEntry, 0, len(commits))
	for _, c := range commits {
		revision, err := r.store.LoadRevision(r.State.Branch, c.Number)
		if err != nil {
			return nil, err
		}
		entry := LogEntry{Commit: c}
		for _, p := range revision {
			if p.IsDeleted() {
				entry.Deleted++
			} else {
				entry.Changed++
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FileState is the state of a live file relative to the current branch.
type FileState string

const (
	StateUnchanged FileState = "unchanged"
	StateAdded     FileState = "added"
	StateModified  FileState = "modified"
	StateDeleted   FileState = "deleted"
	StateUntracked FileState = "untracked"
	StateIgnored   FileState = "ignored"
)

// ListEntry describes one file of a listed directory.
type ListEntry struct {
	Path     string
	State    FileState
	Patterns []string // tracking patterns matching the file
}

// List reports the files directly inside dir, a path relative to the root.
// Files deleted since the latest revision are included.
func (r *Repository) List(dir string) ([]ListEntry, error) {
	dir = path.Clean(filepath.ToSlash(dir))
	if dir == "." {
		dir = ""
	}

	changes, err := r.Uncommitted()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(r.Root, filepath.FromSlash(dir)))
	if err != nil {
		return nil, errors.User("cannot list %s: %v", dir, err)
	}

	patterns := r.State.Current().TrackedPatterns
	filter := r.detector.Filter()

	var out []ListEntry
	for _, e := range entries {
		if e.IsDir() || dir == "" && e.Name() == MetaDir {
			continue
		}
		rel := path.Join(dir, e.Name())
		item := ListEntry{Path: rel, Patterns: change.Matching(patterns, rel)}

		_, added := changes.Additions[rel]
		_, modified := changes.Modifications[rel]
		switch {
		case filter.Ignored(rel):
			item.State = StateIgnored
		case added:
			item.State = StateAdded
		case modified:
			item.State = StateModified
		case r.State.Tracking() && len(item.Patterns) == 0:
			item.State = StateUntracked
		default:
			item.State = StateUnchanged
		}
		out = append(out, item)
	}

	for rel := range changes.Deletions {
		parent := path.Dir(rel)
		if parent == "." {
			parent = ""
		}
		if parent == dir {
			out = append(out, ListEntry{Path: rel, State: StateDeleted, Patterns: change.Matching(patterns, rel)})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// FileDiff is the difference of one path between a revision and the live
// tree.
type FileDiff struct {
	Path   string
	State  FileState
	Binary bool
	Result *diff.DiffResult // modified text files only
}

// Diff compares the live tree with branch at revision file by file.
func (r *Repository) Diff(branch, revision int) ([]FileDiff, error) {
	changes, err := r.Changes(branch, revision)
	if err != nil {
		return nil, err
	}
	reference, err := r.store.Replay(branch, revision)
	if err != nil {
		return nil, err
	}

	var out []FileDiff
	for _, p := range shared.SortedPaths(changes.Additions) {
		out = append(out, FileDiff{Path: p, State: StateAdded})
	}
	for _, p := range shared.SortedPaths(changes.Deletions) {
		out = append(out, FileDiff{Path: p, State: StateDeleted})
	}

	engine := diff.NewEngine(3)
	for _, p := range shared.SortedPaths(changes.Modifications) {
		var old []byte
		if entry := reference[p]; entry.Size > 0 {
			if old, err = r.safe.Read(branch, revision, entry.NameHash); err != nil {
				return nil, err
			}
		}
		live, err := os.ReadFile(r.abs(p))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}

		fd := FileDiff{Path: p, State: StateModified}
		if r.classifier.IsBinary(p, old) || r.classifier.IsBinary(p, live) {
			fd.Binary = true
		} else if fd.Result, err = engine.Diff(old, live); err != nil {
			return nil, err
		}
		out = append(out, fd)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

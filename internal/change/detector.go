// internal/change/detector.go
package change

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"ovc/internal/logging"
	"ovc/internal/safe"
	"ovc/shared/types"
	"ovc/shared/utils"

	"go.uber.org/zap"
)

// Target names the revision that detected blobs are persisted into.
type Target struct {
	Branch   int
	Revision int
}

// Options controls a single Detect run.
type Options struct {
	// Reference is the path state the live tree is compared against.
	// Tombstoned entries count as absent.
	Reference map[string]shared.PathEntry

	// CheckContent compares content hashes instead of modification times.
	CheckContent bool

	// Invert makes modifications carry the reference values, so callers can
	// restore the live tree to the reference state.
	Invert bool

	// Restrict limits the engine to files matched by RestrictTo. Other
	// files are invisible: never additions, never deletions.
	Restrict   bool
	RestrictTo []string

	// PersistTo stores the blob of every addition and modification.
	PersistTo *Target
}

// Detector computes change sets between a reference path state and the
// working tree below root.
type Detector struct {
	root    string
	metaDir string
	filter  *Filter
	safe    *safe.Safe
	logger  *zap.Logger
}

// NewDetector creates a detector for the tree at root. metaDir is the
// repository metadata directory name, never walked. store may be nil when
// nothing is persisted.
func NewDetector(root, metaDir string, filter *Filter, store *safe.Safe, logger *zap.Logger) *Detector {
	return &Detector{
		root:    root,
		metaDir: metaDir,
		filter:  filter,
		safe:    store,
		logger:  logging.OrNop(logger),
	}
}

func (d *Detector) Root() string {
	return d.root
}

func (d *Detector) Filter() *Filter {
	return d.filter
}

// Visible reports whether rel takes part in detection under opts.
func (d *Detector) Visible(rel string, opts Options) bool {
	if d.filter.Ignored(rel) {
		return false
	}
	return !opts.Restrict || Tracked(opts.RestrictTo, rel)
}

// Detect walks the working tree and classifies every visible file against
// opts.Reference. Unreadable files are logged and skipped.
func (d *Detector) Detect(opts Options) (shared.ChangeSet, error) {
	changes := shared.NewChangeSet()
	if opts.PersistTo != nil && d.safe == nil {
		return changes, fmt.Errorf("persisting requires a blob store")
	}

	seen := make(map[string]bool)
	err := filepath.WalkDir(d.root, func(abs string, entry fs.DirEntry, err error) error {
		if err != nil {
			d.logger.Warn("skipping unreadable path", zap.String("path", abs), zap.Error(err))
			if entry != nil && entry.IsDir() && abs != d.root {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.IsDir() {
			if abs == d.root {
				return nil
			}
			if filepath.Dir(abs) == d.root && entry.Name() == d.metaDir {
				return filepath.SkipDir
			}
			if d.filter.SkipDir(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !entry.Type().IsRegular() || d.filter.SkipFile(entry.Name()) {
			return nil
		}

		rel, err := d.rel(abs)
		if err != nil {
			return err
		}
		if opts.Restrict && !Tracked(opts.RestrictTo, rel) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			d.logger.Warn("skipping file", zap.String("path", rel), zap.Error(err))
			return nil
		}
		seen[rel] = true

		return d.classify(rel, abs, info, opts, &changes)
	})
	if err != nil {
		return changes, fmt.Errorf("walking %s: %w", d.root, err)
	}

	for _, rel := range shared.SortedPaths(opts.Reference) {
		ref := opts.Reference[rel]
		if ref.IsDeleted() || seen[rel] || !d.Visible(rel, opts) {
			continue
		}
		if _, err := os.Lstat(filepath.Join(d.root, filepath.FromSlash(rel))); err == nil {
			// present but skipped by the walk
			continue
		}
		changes.Deletions[rel] = ref
	}

	d.logger.Debug("detected changes",
		zap.Int("additions", len(changes.Additions)),
		zap.Int("deletions", len(changes.Deletions)),
		zap.Int("modifications", len(changes.Modifications)))
	return changes, nil
}

func (d *Detector) classify(rel, abs string, info fs.FileInfo, opts Options, changes *shared.ChangeSet) error {
	ref, known := opts.Reference[rel]
	if !known || ref.IsDeleted() {
		entry, ok, err := d.capture(rel, abs, info, opts)
		if ok {
			changes.Additions[rel] = entry
		}
		return err
	}

	modified := info.Size() != ref.Size
	if !modified {
		if opts.CheckContent {
			if info.Size() > 0 {
				hash, err := utils.HashFile(abs)
				if err != nil {
					d.logger.Warn("skipping file", zap.String("path", rel), zap.Error(err))
					return nil
				}
				modified = hash != ref.ContentHash
			}
		} else {
			modified = info.ModTime().UnixMilli() != ref.MTime
		}
	}
	if !modified {
		return nil
	}

	if opts.Invert {
		changes.Modifications[rel] = ref
		return nil
	}
	entry, ok, err := d.capture(rel, abs, info, opts)
	if ok {
		changes.Modifications[rel] = entry
	}
	return err
}

// capture builds the live entry for rel, storing its blob when persisting.
// ok is false when the file had to be skipped. Entries captured without
// persisting or strict mode carry no content hash and must not be saved.
func (d *Detector) capture(rel, abs string, info fs.FileInfo, opts Options) (shared.PathEntry, bool, error) {
	nameHash := utils.HashPath(rel)
	var hash string

	switch {
	case info.Size() == 0:
	case opts.PersistTo != nil && !opts.Invert:
		stored, err := d.safe.Store(opts.PersistTo.Branch, opts.PersistTo.Revision, nameHash, abs)
		if err != nil {
			return shared.PathEntry{}, false, fmt.Errorf("storing %s: %w", rel, err)
		}
		hash = stored
	case opts.CheckContent:
		computed, err := utils.HashFile(abs)
		if err != nil {
			d.logger.Warn("skipping file", zap.String("path", rel), zap.Error(err))
			return shared.PathEntry{}, false, nil
		}
		hash = computed
	}

	return shared.Present(nameHash, info.Size(), info.ModTime().UnixMilli(), hash), true, nil
}

func (d *Detector) rel(abs string) (string, error) {
	rel, err := filepath.Rel(d.root, abs)
	if err != nil {
		return "", fmt.Errorf("getting relative path: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// internal/workspace/repository.go
package workspace

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ovc/internal/change"
	"ovc/internal/config"
	"ovc/internal/content"
	"ovc/internal/errors"
	"ovc/internal/logging"
	"ovc/internal/merge"
	"ovc/internal/safe"
	"ovc/internal/storage"
	"ovc/internal/validation"
	"ovc/shared/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MetaDir is the metadata directory below the working tree root.
	MetaDir = ".ovc"

	formatVersion = "1"
)

// Options configures a Repository session.
type Options struct {
	Root     string
	Config   *config.Config
	Index    *storage.Index // journal for switch and update, optional
	Resolver merge.Resolver // answers the ask policy
	Logger   *zap.Logger
}

// Repository is an offline repository session over one working tree.
type Repository struct {
	Root  string
	State *shared.RepoState

	config     *config.Config
	store      *content.Store
	safe       *safe.Safe
	detector   *change.Detector
	index      *storage.Index
	classifier merge.Classifier
	resolver   merge.Resolver
	logger     *zap.Logger
}

// FindRoot searches for the working tree root by looking for the metadata
// directory in startDir and its parents.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, MetaDir, "repo.json")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.User("not inside an offline repository")
}

func newRepository(opts Options, state *shared.RepoState) (*Repository, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	logger := logging.OrNop(opts.Logger)
	metaRoot := filepath.Join(opts.Root, MetaDir)

	store, err := content.NewStore(metaRoot, logger)
	if err != nil {
		return nil, err
	}

	blobs, err := safe.New(safe.Options{
		Root:     metaRoot,
		Compress: state.Compress,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	cfg := opts.Config
	filter := &change.Filter{
		Dirs:           cfg.Ignore.Dirs,
		DirsWhitelist:  cfg.Ignore.DirsWhitelist,
		Files:          cfg.Ignore.Files,
		FilesWhitelist: cfg.Ignore.FilesWhitelist,
	}

	return &Repository{
		Root:       opts.Root,
		State:      state,
		config:     cfg,
		store:      store,
		safe:       blobs,
		detector:   change.NewDetector(opts.Root, MetaDir, filter, blobs, logger),
		index:      opts.Index,
		classifier: merge.Classifier{TextGlobs: cfg.TextGlobs, BinaryGlobs: cfg.BinaryGlobs},
		resolver:   opts.Resolver,
		logger:     logger,
	}, nil
}

// Offline turns the working tree into an offline repository whose first
// branch captures the live tree. The mode flags are taken from the config.
func Offline(opts Options, name string) (*Repository, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if name == "" {
		name = opts.Config.DefaultBranch
	}
	if err := validation.BranchName(name); err != nil {
		return nil, err
	}
	if opts.Config.Track && opts.Config.Picky {
		return nil, errors.User("track and picky modes are mutually exclusive")
	}

	metaRoot := filepath.Join(opts.Root, MetaDir)
	if _, err := os.Stat(filepath.Join(metaRoot, "repo.json")); err == nil {
		return nil, errors.User("%s is already offline", opts.Root)
	}

	state := &shared.RepoState{
		Version:  formatVersion,
		Track:    opts.Config.Track,
		Picky:    opts.Config.Picky,
		Strict:   opts.Config.Strict,
		Compress: opts.Config.Compress,
	}

	r, err := newRepository(opts, state)
	if err != nil {
		return nil, err
	}

	log := r.operation("offline")
	info, err := r.createBranch(0, name, nil, false)
	if err != nil {
		os.RemoveAll(metaRoot)
		return nil, err
	}
	info.InSync = true
	state.Branches = []shared.BranchInfo{*info}

	if err := r.store.SaveState(state); err != nil {
		os.RemoveAll(metaRoot)
		return nil, err
	}

	log.Info("repository offline", zap.String("root", opts.Root), zap.String("branch", info.Label()))
	return r, nil
}

// Open loads the offline repository at opts.Root.
func Open(opts Options) (*Repository, error) {
	store, err := content.NewStore(filepath.Join(opts.Root, MetaDir), opts.Logger)
	if err != nil {
		return nil, err
	}
	state, err := store.LoadState()
	if err != nil {
		return nil, err
	}
	if state.Track && state.Picky {
		return nil, errors.Integrity(nil, "repository is in both track and picky mode")
	}
	if state.Current() == nil {
		return nil, errors.Integrity(nil, "current branch %d does not exist", state.Branch)
	}

	r, err := newRepository(opts, state)
	if err != nil {
		return nil, err
	}

	if r.index != nil {
		pending, err := r.index.Pending()
		if err != nil {
			return nil, err
		}
		for _, op := range pending {
			r.logger.Warn("an earlier operation did not finish, the working tree may be mixed",
				zap.String("op", op.Name),
				zap.String("op_id", op.ID),
				zap.Int("branch", op.Branch),
				zap.Int("revision", op.Revision),
				zap.Time("started_at", op.StartedAt))
		}
		if len(pending) > 0 {
			if err := r.index.Clear(); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

// Discard removes the metadata directory, ending offline mode. The index
// must be closed first.
func (r *Repository) Discard() error {
	if err := os.RemoveAll(filepath.Join(r.Root, MetaDir)); err != nil {
		return fmt.Errorf("removing metadata: %w", err)
	}
	return nil
}

// Mode names the tracking mode.
func (r *Repository) Mode() string {
	switch {
	case r.State.Track:
		return "track"
	case r.State.Picky:
		return "picky"
	default:
		return "simple"
	}
}

func (r *Repository) Detector() *change.Detector {
	return r.detector
}

// LatestRevision returns the number of the newest revision of branch.
func (r *Repository) LatestRevision(branch int) (int, error) {
	commits, err := r.store.LoadCommits(branch)
	if err != nil {
		return 0, err
	}
	if len(commits) == 0 {
		return 0, errors.Integrity(nil, "branch %d has no commits", branch)
	}
	return len(commits) - 1, nil
}

func (r *Repository) branch(number int) (*shared.BranchInfo, error) {
	info, ok := r.State.Find(number)
	if !ok {
		return nil, errors.User("unknown branch %d", number)
	}
	return info, nil
}

// detectOptions returns detection options against reference, restricted
// to the union of the tracking patterns of branches in track/picky mode.
func (r *Repository) detectOptions(reference map[string]shared.PathEntry, branches ...int) change.Options {
	opts := change.Options{
		Reference:    reference,
		CheckContent: r.State.Strict,
	}
	if r.State.Tracking() {
		opts.Restrict = true
		for _, number := range branches {
			if info, ok := r.State.Find(number); ok {
				opts.RestrictTo = union(opts.RestrictTo, info.TrackedPatterns)
			}
		}
	}
	return opts
}

// operation returns a logger tagged with a fresh operation id.
func (r *Repository) operation(name string) *zap.Logger {
	return (&logging.Logger{Logger: r.logger}).WithOperation(name, uuid.New().String())
}

func (r *Repository) begin(name string, branch, revision int) (*storage.Operation, error) {
	if r.index == nil {
		return nil, nil
	}
	return r.index.Begin(name, branch, revision)
}

func (r *Repository) finish(op *storage.Operation) error {
	if r.index == nil {
		return nil
	}
	return r.index.Finish(op)
}

func (r *Repository) abs(rel string) string {
	return filepath.Join(r.Root, filepath.FromSlash(rel))
}

// removeFile deletes a live file and any parent directories it leaves
// empty, up to the root.
func (r *Repository) removeFile(rel string) error {
	path := r.abs(rel)
	if err := os.Remove(path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", rel, err)
	}
	for dir := filepath.Dir(path); dir != r.Root && len(dir) > len(r.Root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

func union(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, p := range b {
		found := false
		for _, q := range out {
			if p == q {
				found = true
				break
			}
		}
		if !found {
			out = append(out, p)
		}
	}
	return out
}

func now() int64 {
	return time.Now().UnixMilli()
}

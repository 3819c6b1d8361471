// internal/parcel/parcel.go
package parcel

import (
	"context"
	"fmt"
	"path/filepath"

	"ovc/internal/change"
	"ovc/internal/config"
	"ovc/internal/errors"
	"ovc/internal/merge"
	"ovc/internal/storage"
	"ovc/internal/workspace"
	"ovc/shared/types"

	"go.uber.org/zap"
)

// Parcel is an open offline repository together with its lock: the CLI
// entry points all go through it.
type Parcel struct {
	Root   string
	Config *config.Config
	Index  *storage.Index
	Repo   *workspace.Repository
	Logger *zap.Logger
}

// Options configures a parcel session.
type Options struct {
	Config   *config.Config
	Resolver merge.Resolver
	Logger   *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Config == nil {
		o.Config = config.Default()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func indexPath(root string) string {
	return filepath.Join(root, workspace.MetaDir, "index")
}

// Offline puts the working tree at path into offline mode.
func Offline(path, name string, opts Options) (*Parcel, error) {
	opts = opts.withDefaults()

	// Convert path to absolute
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for root %s: %w", path, err)
	}
	if _, err := workspace.FindRoot(root); err == nil {
		return nil, errors.User("%s is already inside an offline repository", root)
	}

	index, err := storage.OpenIndex(indexPath(root), false)
	if err != nil {
		return nil, err
	}

	repo, err := workspace.Offline(workspace.Options{
		Root:     root,
		Config:   opts.Config,
		Index:    index,
		Resolver: opts.Resolver,
		Logger:   opts.Logger,
	}, name)
	if err != nil {
		index.Close()
		return nil, err
	}

	return &Parcel{Root: root, Config: opts.Config, Index: index, Repo: repo, Logger: opts.Logger}, nil
}

// Open finds the offline repository containing path and locks it.
func Open(path string, opts Options) (*Parcel, error) {
	opts = opts.withDefaults()

	root, err := workspace.FindRoot(path)
	if err != nil {
		return nil, err
	}

	index, err := storage.OpenIndex(indexPath(root), false)
	if err != nil {
		return nil, err
	}

	repo, err := workspace.Open(workspace.Options{
		Root:     root,
		Config:   opts.Config,
		Index:    index,
		Resolver: opts.Resolver,
		Logger:   opts.Logger,
	})
	if err != nil {
		index.Close()
		return nil, err
	}

	return &Parcel{Root: root, Config: opts.Config, Index: index, Repo: repo, Logger: opts.Logger}, nil
}

// Close releases the repository lock.
func (p *Parcel) Close() error {
	if p.Index == nil {
		return nil
	}
	err := p.Index.Close()
	p.Index = nil
	return err
}

// Online leaves offline mode by deleting all offline history. Uncommitted
// changes are refused unless forced.
func (p *Parcel) Online(force bool) error {
	if !force {
		changes, err := p.Repo.Uncommitted()
		if err != nil {
			return err
		}
		if !changes.Empty() {
			return errors.Precondition("%d uncommitted change(s) would be lost, commit first or force", changes.Len())
		}
	}
	if err := p.Close(); err != nil {
		return err
	}
	if err := p.Repo.Discard(); err != nil {
		return err
	}
	p.Logger.Info("repository online", zap.String("root", p.Root))
	return nil
}

func (p *Parcel) resolve(spec string) (int, int, error) {
	s, err := ParseSpec(spec)
	if err != nil {
		return 0, 0, err
	}
	return p.Repo.Resolve(s.Branch, s.Revision)
}

func (p *Parcel) Branch(name string, fromLast, stay bool) (*shared.BranchInfo, error) {
	return p.Repo.CreateBranch(name, fromLast, stay)
}

// Changes compares the live tree with the revision named by spec.
func (p *Parcel) Changes(spec string) (shared.ChangeSet, error) {
	branch, revision, err := p.resolve(spec)
	if err != nil {
		return shared.ChangeSet{}, err
	}
	return p.Repo.Changes(branch, revision)
}

func (p *Parcel) Diff(spec string) ([]workspace.FileDiff, error) {
	branch, revision, err := p.resolve(spec)
	if err != nil {
		return nil, err
	}
	return p.Repo.Diff(branch, revision)
}

func (p *Parcel) Commit(message string) (int, error) {
	return p.Repo.Commit(message)
}

func (p *Parcel) Status() (*workspace.Status, error) {
	return p.Repo.Status()
}

func (p *Parcel) Switch(spec string, force bool) error {
	branch, revision, err := p.resolve(spec)
	if err != nil {
		return err
	}
	return p.Repo.Switch(branch, revision, force)
}

// Update merges the revision named by spec into the live tree. op and
// policy are parsed with merge.ParseOp and merge.ParsePolicy.
func (p *Parcel) Update(spec, op, policy string, force bool) error {
	mergeOp, err := merge.ParseOp(op)
	if err != nil {
		return err
	}
	mergePolicy, err := merge.ParsePolicy(policy)
	if err != nil {
		return err
	}
	branch, revision, err := p.resolve(spec)
	if err != nil {
		return err
	}
	return p.Repo.Update(branch, revision, workspace.UpdateOptions{
		Op:     mergeOp,
		Policy: mergePolicy,
		Force:  force,
	})
}

// Delete removes the branch named by spec, which must not name a revision.
func (p *Parcel) Delete(spec string, force bool) error {
	s, err := ParseSpec(spec)
	if err != nil {
		return err
	}
	if s.Branch == "" || s.Revision != nil {
		return errors.User("delete takes a branch, not %q", spec)
	}
	branch, _, err := p.Repo.Resolve(s.Branch, nil)
	if err != nil {
		return err
	}
	return p.Repo.DeleteBranch(branch, force)
}

func (p *Parcel) Add(pattern string, force bool) error {
	return p.Repo.AddPattern(pattern, force)
}

func (p *Parcel) Remove(pattern string) error {
	return p.Repo.RemovePattern(pattern)
}

func (p *Parcel) List(dir string) ([]workspace.ListEntry, error) {
	return p.Repo.List(dir)
}

func (p *Parcel) Log() ([]workspace.LogEntry, error) {
	return p.Repo.Log()
}

// SyncCommit marks the current branch as committed to the underlying
// version control system.
func (p *Parcel) SyncCommit() error {
	return p.Repo.MarkInSync()
}

// Watch re-detects the uncommitted changes after every burst of file
// activity and hands them to report until ctx is done.
func (p *Parcel) Watch(ctx context.Context, report func(shared.ChangeSet)) error {
	w, err := change.NewWatcher(p.Root, workspace.MetaDir, p.Repo.Detector().Filter(), p.Logger)
	if err != nil {
		return err
	}
	defer w.Close()

	err = w.Run(ctx, func() {
		changes, err := p.Repo.Uncommitted()
		if err != nil {
			p.Logger.Warn("detecting changes", zap.Error(err))
			return
		}
		report(changes)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

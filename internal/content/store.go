// internal/content/store.go
package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"ovc/internal/errors"
	"ovc/internal/logging"
	"ovc/internal/safe"
	"ovc/shared/types"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	repoFile     = "repo.json"
	commitsFile  = "commits.json"
	revisionFile = "paths.json"
)

// Store reads and writes the JSON metadata of the repository: the flag
// file, each branch's commit list and each revision's path changes.
type Store struct {
	layout safe.Layout
	memo   *lru.Cache[string, map[string]shared.PathEntry]
	logger *zap.Logger
}

func NewStore(metaRoot string, logger *zap.Logger) (*Store, error) {
	memo, err := lru.New[string, map[string]shared.PathEntry](64)
	if err != nil {
		return nil, fmt.Errorf("creating replay cache: %w", err)
	}

	return &Store{
		layout: safe.Layout{Root: metaRoot},
		memo:   memo,
		logger: logging.OrNop(logger),
	}, nil
}

func (s *Store) Root() string {
	return s.layout.Root
}

// Exists reports whether the metadata root holds a repository.
func (s *Store) Exists() bool {
	_, err := os.Stat(filepath.Join(s.layout.Root, repoFile))
	return err == nil
}

func (s *Store) LoadState() (*shared.RepoState, error) {
	var state shared.RepoState
	if err := s.readJSON(filepath.Join(s.layout.Root, repoFile), &state); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.User("no offline repository found in %s", filepath.Dir(s.layout.Root))
		}
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveState(state *shared.RepoState) error {
	if err := os.MkdirAll(s.layout.Root, 0755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	return s.writeJSON(filepath.Join(s.layout.Root, repoFile), state)
}

func (s *Store) LoadCommits(branch int) ([]shared.CommitInfo, error) {
	var commits []shared.CommitInfo
	path := filepath.Join(s.layout.BranchDir(branch), commitsFile)
	if err := s.readJSON(path, &commits); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Integrity(err, "branch %d has no commit list", branch)
		}
		return nil, err
	}
	for i, c := range commits {
		if c.Number != i {
			return nil, errors.Integrity(nil, "branch %d commit list is not contiguous at %d", branch, i)
		}
	}
	return commits, nil
}

func (s *Store) SaveCommits(branch int, commits []shared.CommitInfo) error {
	if err := os.MkdirAll(s.layout.BranchDir(branch), 0755); err != nil {
		return fmt.Errorf("creating branch directory: %w", err)
	}
	return s.writeJSON(filepath.Join(s.layout.BranchDir(branch), commitsFile), commits)
}

// LoadRevision returns the change map persisted for one revision.
func (s *Store) LoadRevision(branch, revision int) (map[string]shared.PathEntry, error) {
	paths := make(map[string]shared.PathEntry)
	path := filepath.Join(s.layout.RevisionDir(branch, revision), revisionFile)
	if err := s.readJSON(path, &paths); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Integrity(err, "revision %d/%d has no path file", branch, revision)
		}
		return nil, err
	}
	return paths, nil
}

// SaveRevision persists the change map of one revision.
func (s *Store) SaveRevision(branch, revision int, paths map[string]shared.PathEntry) error {
	dir := s.layout.RevisionDir(branch, revision)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating revision directory: %w", err)
	}
	s.memo.Remove(memoKey(branch, revision))
	return s.writeJSON(filepath.Join(dir, revisionFile), paths)
}

// RemoveBranch deletes the whole storage subtree of branch.
func (s *Store) RemoveBranch(branch int) error {
	s.memo.Purge()
	if err := os.RemoveAll(s.layout.BranchDir(branch)); err != nil {
		return fmt.Errorf("removing branch %d: %w", branch, err)
	}
	return nil
}

// RemoveRevision drops a revision directory that was never committed.
func (s *Store) RemoveRevision(branch, revision int) error {
	s.memo.Remove(memoKey(branch, revision))
	return os.RemoveAll(s.layout.RevisionDir(branch, revision))
}

func (s *Store) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Integrity(err, "corrupt metadata file %s", path)
	}
	return nil
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return atomicWrite(path, data, 0644)
}

// atomicWrite writes data next to path and renames it into place.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func memoKey(branch, revision int) string {
	return strconv.Itoa(branch) + "/" + strconv.Itoa(revision)
}

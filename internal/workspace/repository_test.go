package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"ovc/internal/config"
	"ovc/internal/errors"
	"ovc/internal/merge"
	"ovc/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Strict = true
	return cfg
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func read(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func exists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

func setupRepo(t *testing.T, cfg *config.Config, files map[string]string) *Repository {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		write(t, root, rel, content)
	}
	r, err := Offline(Options{Root: root, Config: cfg}, "")
	require.NoError(t, err)
	return r
}

// snapshot lists every path below dir with its size.
func snapshot(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		out = append(out, fmt.Sprintf("%s %s %d", rel, info.Mode(), info.Size()))
		return nil
	}))
	sort.Strings(out)
	return out
}

func TestOffline(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"a.txt": "A", "dir/b.txt": "bb", ".git/HEAD": "x"})

	assert.Equal(t, 0, r.State.Branch)
	require.Len(t, r.State.Branches, 1)
	assert.Equal(t, "trunk", r.State.Branches[0].Name)
	assert.True(t, r.State.Branches[0].InSync)
	assert.Equal(t, "simple", r.Mode())

	state, err := r.store.Replay(0, 0)
	require.NoError(t, err)
	assert.Len(t, state, 2)
	assert.Contains(t, state, "dir/b.txt")

	commits, err := r.store.LoadCommits(0)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Contains(t, commits[0].Message, "Branched on")

	_, err = Offline(Options{Root: r.Root, Config: testConfig()}, "")
	assert.True(t, errors.IsUser(err))

	reopened, err := Open(Options{Root: r.Root, Config: testConfig()})
	require.NoError(t, err)
	assert.Equal(t, r.State, reopened.State)

	root, err := FindRoot(filepath.Join(r.Root, "dir"))
	require.NoError(t, err)
	assert.Equal(t, r.Root, root)
}

func TestOfflineRejectsBadName(t *testing.T) {
	_, err := Offline(Options{Root: t.TempDir(), Config: testConfig()}, "12")
	assert.True(t, errors.IsUser(err))
}

func TestCommit(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"f.txt": "A"})

	t.Run("nothing to commit", func(t *testing.T) {
		_, err := r.Commit("empty")
		assert.True(t, errors.IsUser(err))
		assert.NoDirExists(t, r.safe.Layout().RevisionDir(0, 1))
	})

	t.Run("restore reads each revision", func(t *testing.T) {
		write(t, r.Root, "f.txt", "B")
		rev, err := r.Commit("change f")
		require.NoError(t, err)
		assert.Equal(t, 1, rev)

		r0, err := r.store.Replay(0, 0)
		require.NoError(t, err)
		r1, err := r.store.Replay(0, 1)
		require.NoError(t, err)

		dest := filepath.Join(t.TempDir(), "out")
		require.NoError(t, r.safe.Restore(dest, 0, 0, r0["f.txt"]))
		assert.Equal(t, "A", read(t, filepath.Dir(dest), "out"))
		require.NoError(t, r.safe.Restore(dest, 0, 1, r1["f.txt"]))
		assert.Equal(t, "B", read(t, filepath.Dir(dest), "out"))

		assert.False(t, r.State.Current().InSync)
	})

	t.Run("log lists commits", func(t *testing.T) {
		entries, err := r.Log()
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "change f", entries[1].Commit.Message)
		assert.Equal(t, 1, entries[1].Changed)
	})
}

func TestTombstoneAndResurrection(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"keep.txt": "k", "f.txt": "old"})

	require.NoError(t, os.Remove(filepath.Join(r.Root, "f.txt")))
	_, err := r.Commit("delete f")
	require.NoError(t, err)

	state, err := r.store.Replay(0, 1)
	require.NoError(t, err)
	require.Contains(t, state, "f.txt")
	assert.True(t, state["f.txt"].IsDeleted())

	write(t, r.Root, "f.txt", "brand new")
	_, err = r.Commit("re-add f")
	require.NoError(t, err)

	state, err = r.store.Replay(0, 2)
	require.NoError(t, err)
	assert.False(t, state["f.txt"].IsDeleted())
	assert.Equal(t, int64(len("brand new")), state["f.txt"].Size)
}

func TestCreateBranchFromLast(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"a.txt": "alpha", "sub/b.txt": "beta", "empty": ""})

	info, err := r.CreateBranch("feature", true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Number)
	assert.Equal(t, 1, r.State.Branch)

	changes, err := r.Uncommitted()
	require.NoError(t, err)
	assert.True(t, changes.Empty())

	state, err := r.store.Replay(1, 0)
	require.NoError(t, err)
	content, err := r.safe.Read(1, 0, state["sub/b.txt"].NameHash)
	require.NoError(t, err)
	assert.Equal(t, "beta", string(content))

	_, err = r.CreateBranch("feature", false, true)
	assert.True(t, errors.IsUser(err))

	stay, err := r.CreateBranch("", false, true)
	require.NoError(t, err)
	assert.Equal(t, 2, stay.Number)
	assert.Equal(t, 1, r.State.Branch)
}

func TestDeleteOnlyBranch(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"a.txt": "a"})
	before := snapshot(t, r.Root)

	err := r.DeleteBranch(0, true)
	assert.True(t, errors.IsUser(err))
	assert.Equal(t, before, snapshot(t, r.Root))
}

func TestDeleteBranch(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"a.txt": "a"})
	_, err := r.CreateBranch("second", true, false)
	require.NoError(t, err)

	write(t, r.Root, "a.txt", "dirty")
	err = r.DeleteBranch(1, false)
	assert.True(t, errors.IsPrecondition(err))

	require.NoError(t, r.DeleteBranch(1, true))
	assert.Equal(t, 0, r.State.Branch)
	assert.Len(t, r.State.Branches, 1)
	assert.NoDirExists(t, r.safe.Layout().BranchDir(1))

	err = r.DeleteBranch(7, true)
	assert.True(t, errors.IsUser(err))
}

func TestSwitch(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"a.txt": "one", "b.txt": "bee", "dir/c.txt": "sea"})

	_, err := r.CreateBranch("feature", true, false)
	require.NoError(t, err)

	write(t, r.Root, "a.txt", "two two")
	require.NoError(t, os.Remove(filepath.Join(r.Root, "b.txt")))
	write(t, r.Root, "new/d.txt", "dee")
	_, err = r.Commit("feature work")
	require.NoError(t, err)

	require.NoError(t, r.Switch(0, 0, false))
	assert.Equal(t, 0, r.State.Branch)
	assert.Equal(t, "one", read(t, r.Root, "a.txt"))
	assert.Equal(t, "bee", read(t, r.Root, "b.txt"))
	assert.False(t, exists(r.Root, "new/d.txt"))
	assert.False(t, exists(r.Root, "new"))

	changes, err := r.Uncommitted()
	require.NoError(t, err)
	assert.True(t, changes.Empty())

	t.Run("uncommitted changes block switching", func(t *testing.T) {
		write(t, r.Root, "b.txt", "changed")
		err := r.Switch(1, 1, false)
		assert.True(t, errors.IsPrecondition(err))
		assert.Equal(t, 0, r.State.Branch)
	})

	t.Run("force switches anyway", func(t *testing.T) {
		require.NoError(t, r.Switch(1, 1, true))
		assert.Equal(t, "two two", read(t, r.Root, "a.txt"))
		assert.False(t, exists(r.Root, "b.txt"))
		assert.Equal(t, "dee", read(t, r.Root, "new/d.txt"))
	})

	t.Run("unknown revision", func(t *testing.T) {
		err := r.Switch(1, 5, true)
		assert.True(t, errors.IsUser(err))
	})
}

func TestUpdate(t *testing.T) {
	setup := func(t *testing.T) *Repository {
		r := setupRepo(t, testConfig(), map[string]string{"a.txt": "foo\nbar\n", "gone.txt": "bye"})
		_, err := r.CreateBranch("other", true, false)
		require.NoError(t, err)
		write(t, r.Root, "a.txt", "foo\nbaz\n")
		write(t, r.Root, "new.txt", "hello")
		_, err = r.Commit("other work")
		require.NoError(t, err)
		require.NoError(t, r.Switch(0, 0, false))

		// live-only file on the current branch
		write(t, r.Root, "local.txt", "mine")
		_, err = r.Commit("local work")
		require.NoError(t, err)
		return r
	}

	t.Run("both with mine keeps conflicting lines", func(t *testing.T) {
		r := setup(t)
		require.NoError(t, r.Update(1, 1, UpdateOptions{Op: merge.Both, Policy: merge.Mine}))

		assert.Equal(t, "foo\nbar\n", read(t, r.Root, "a.txt"))
		assert.Equal(t, "hello", read(t, r.Root, "new.txt"))
		assert.False(t, exists(r.Root, "local.txt"))
		assert.Equal(t, 0, r.State.Branch)
		assert.False(t, r.State.Current().InSync)
	})

	t.Run("both with theirs takes their lines", func(t *testing.T) {
		r := setup(t)
		require.NoError(t, r.Update(1, 1, UpdateOptions{Policy: merge.Theirs}))
		assert.Equal(t, "foo\nbaz\n", read(t, r.Root, "a.txt"))
	})

	t.Run("insert only keeps live files", func(t *testing.T) {
		r := setup(t)
		require.NoError(t, r.Update(1, 1, UpdateOptions{Op: merge.Insert, Policy: merge.Theirs}))
		assert.True(t, exists(r.Root, "local.txt"))
		assert.True(t, exists(r.Root, "new.txt"))
	})

	t.Run("remove only restores nothing", func(t *testing.T) {
		r := setup(t)
		require.NoError(t, r.Update(1, 1, UpdateOptions{Op: merge.Remove, Policy: merge.Theirs}))
		assert.False(t, exists(r.Root, "local.txt"))
		assert.False(t, exists(r.Root, "new.txt"))
	})

	t.Run("uncommitted changes block updating", func(t *testing.T) {
		r := setup(t)
		write(t, r.Root, "a.txt", "dirty\n")
		err := r.Update(1, 1, UpdateOptions{})
		assert.True(t, errors.IsPrecondition(err))
	})
}

func TestUpdateBinary(t *testing.T) {
	cfg := testConfig()
	r := setupRepo(t, cfg, map[string]string{"img.png": "\x89PNG one"})
	_, err := r.CreateBranch("", true, false)
	require.NoError(t, err)
	write(t, r.Root, "img.png", "\x89PNG two!")
	_, err = r.Commit("")
	require.NoError(t, err)
	require.NoError(t, r.Switch(0, 0, false))

	var asked []merge.Conflict
	r.resolver = merge.ResolverFunc(func(c merge.Conflict) (merge.Policy, error) {
		asked = append(asked, c)
		return merge.Theirs, nil
	})

	require.NoError(t, r.Update(1, 1, UpdateOptions{Policy: merge.Ask}))
	require.Len(t, asked, 1)
	assert.True(t, asked[0].Binary)
	assert.Equal(t, "\x89PNG two!", read(t, r.Root, "img.png"))
}

func TestJournal(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.txt", "a")

	index, err := storage.OpenIndex(filepath.Join(root, MetaDir, "index"), false)
	require.NoError(t, err)
	defer index.Close()

	r, err := Offline(Options{Root: root, Config: testConfig(), Index: index}, "main")
	require.NoError(t, err)
	_, err = r.CreateBranch("", true, false)
	require.NoError(t, err)
	require.NoError(t, r.Switch(0, 0, false))

	pending, err := index.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	changes, err := r.Uncommitted()
	require.NoError(t, err)
	assert.True(t, changes.Empty())
}

func TestOpenClearsInterruptedOperations(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.txt", "a")

	index, err := storage.OpenIndex(filepath.Join(root, MetaDir, "index"), false)
	require.NoError(t, err)
	defer index.Close()

	_, err = Offline(Options{Root: root, Config: testConfig(), Index: index}, "main")
	require.NoError(t, err)

	_, err = index.Begin("switch", 0, 0)
	require.NoError(t, err)

	_, err = Open(Options{Root: root, Config: testConfig(), Index: index})
	require.NoError(t, err)

	pending, err := index.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

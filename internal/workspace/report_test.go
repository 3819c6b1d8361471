package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"ovc/internal/errors"
	"ovc/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackMode(t *testing.T) {
	cfg := testConfig()
	cfg.Track = true
	r := setupRepo(t, cfg, map[string]string{"main.go": "package main", "notes.txt": "n"})
	assert.Equal(t, "track", r.Mode())

	state, err := r.store.Replay(0, 0)
	require.NoError(t, err)
	assert.Empty(t, state)

	err = r.AddPattern("*.rs", false)
	assert.True(t, errors.IsPrecondition(err))
	require.NoError(t, r.AddPattern("*.rs", true))
	require.NoError(t, r.AddPattern("*.go", false))

	err = r.AddPattern("*.go", false)
	assert.True(t, errors.IsUser(err))
	err = r.AddPattern("../x", true)
	assert.True(t, errors.IsUser(err))

	changes, err := r.Uncommitted()
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, shared.SortedPaths(changes.Additions))

	_, err = r.Commit("track go")
	require.NoError(t, err)
	assert.Equal(t, []string{"*.rs", "*.go"}, r.State.Current().TrackedPatterns)

	require.NoError(t, r.RemovePattern("*.rs"))
	err = r.RemovePattern("*.rs")
	assert.True(t, errors.IsUser(err))

	entries, err := r.List("")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, StateUnchanged, entries[0].State)
	assert.Equal(t, []string{"*.go"}, entries[0].Patterns)
	assert.Equal(t, StateUntracked, entries[1].State)
}

func TestPickyMode(t *testing.T) {
	cfg := testConfig()
	cfg.Picky = true
	r := setupRepo(t, cfg, map[string]string{"a.txt": "a"})
	assert.Equal(t, "picky", r.Mode())

	require.NoError(t, r.AddPattern("a.txt", false))
	_, err := r.Commit("pick a")
	require.NoError(t, err)
	assert.Empty(t, r.State.Current().TrackedPatterns)

	_, err = r.Commit("nothing picked")
	assert.True(t, errors.IsUser(err))
}

func TestSimpleModeRejectsPatterns(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"a.txt": "a"})
	assert.True(t, errors.IsUser(r.AddPattern("*.txt", true)))
	assert.True(t, errors.IsUser(r.RemovePattern("*.txt")))
}

func TestResolve(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"a.txt": "a"})
	write(t, r.Root, "a.txt", "ab")
	_, err := r.Commit("one")
	require.NoError(t, err)
	write(t, r.Root, "a.txt", "abc")
	_, err = r.Commit("two")
	require.NoError(t, err)
	_, err = r.CreateBranch("feature", true, true)
	require.NoError(t, err)

	rev := func(n int) *int { return &n }

	tests := []struct {
		name     string
		branch   string
		revision *int
		wantB    int
		wantR    int
		wantErr  bool
	}{
		{"current latest", "", nil, 0, 2, false},
		{"by name", "trunk", nil, 0, 2, false},
		{"by number", "1", nil, 1, 0, false},
		{"by label", "b1", nil, 1, 0, false},
		{"absolute revision", "", rev(1), 0, 1, false},
		{"last revision", "trunk", rev(-1), 0, 2, false},
		{"counted back", "", rev(-3), 0, 0, false},
		{"too far back", "", rev(-4), 0, 0, true},
		{"beyond latest", "", rev(3), 0, 0, true},
		{"unknown branch", "nope", nil, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, rv, err := r.Resolve(tt.branch, tt.revision)
			if tt.wantErr {
				assert.True(t, errors.IsUser(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantB, b)
			assert.Equal(t, tt.wantR, rv)
		})
	}
}

func TestStatusAndDiff(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{
		"a.txt":   "one\ntwo\nthree\n",
		"b.txt":   "bee",
		"img.png": "\x89PNG",
	})

	write(t, r.Root, "a.txt", "one\n2\nthree\n")
	write(t, r.Root, "img.png", "\x89PNG!")
	write(t, r.Root, "c.txt", "sea")
	require.NoError(t, os.Remove(filepath.Join(r.Root, "b.txt")))

	status, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, "simple", status.Mode)
	assert.Equal(t, 0, status.Revision)
	assert.Equal(t, "trunk", status.Branch.Name)
	require.Len(t, status.Branches, 1)
	assert.True(t, status.Branches[0].Current)
	assert.Equal(t, 1, status.Branches[0].Revisions)
	assert.Equal(t, []string{"c.txt"}, shared.SortedPaths(status.Changes.Additions))
	assert.Equal(t, []string{"b.txt"}, shared.SortedPaths(status.Changes.Deletions))
	assert.Equal(t, []string{"a.txt", "img.png"}, shared.SortedPaths(status.Changes.Modifications))

	diffs, err := r.Diff(0, 0)
	require.NoError(t, err)
	require.Len(t, diffs, 4)

	byPath := make(map[string]FileDiff)
	for _, d := range diffs {
		byPath[d.Path] = d
	}
	assert.Equal(t, StateAdded, byPath["c.txt"].State)
	assert.Equal(t, StateDeleted, byPath["b.txt"].State)
	assert.True(t, byPath["img.png"].Binary)

	text := byPath["a.txt"]
	require.NotNil(t, text.Result)
	assert.Equal(t, 1, text.Result.Stats.Additions)
	assert.Equal(t, 1, text.Result.Stats.Deletions)
	assert.Contains(t, text.Result.Format(), "- two\n+ 2\n")

	entries, err := r.List(".")
	require.NoError(t, err)
	states := make(map[string]FileState)
	for _, e := range entries {
		states[e.Path] = e.State
	}
	assert.Equal(t, map[string]FileState{
		"a.txt":   StateModified,
		"b.txt":   StateDeleted,
		"c.txt":   StateAdded,
		"img.png": StateModified,
	}, states)
}

func TestMarkInSync(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"a.txt": "a"})
	write(t, r.Root, "a.txt", "changed")
	_, err := r.Commit("c")
	require.NoError(t, err)
	assert.False(t, r.State.Current().InSync)

	require.NoError(t, r.MarkInSync())
	reopened, err := Open(Options{Root: r.Root, Config: testConfig()})
	require.NoError(t, err)
	assert.True(t, reopened.State.Current().InSync)
}

func TestDiscard(t *testing.T) {
	r := setupRepo(t, testConfig(), map[string]string{"a.txt": "a"})
	require.NoError(t, r.Discard())
	assert.NoDirExists(t, filepath.Join(r.Root, MetaDir))
	assert.FileExists(t, filepath.Join(r.Root, "a.txt"))

	_, err := Open(Options{Root: r.Root})
	assert.True(t, errors.IsUser(err))
}

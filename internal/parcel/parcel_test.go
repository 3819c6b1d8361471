package parcel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ovc/internal/config"
	"ovc/internal/errors"
	"ovc/internal/workspace"
	"ovc/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	cfg := config.Default()
	cfg.Strict = true
	return Options{Config: cfg}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func setupParcel(t *testing.T) *Parcel {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")

	p, err := Offline(root, "", testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestOfflineAndOpen(t *testing.T) {
	p := setupParcel(t)

	_, err := Open(p.Root, testOptions())
	assert.True(t, errors.IsUser(err), "second session must hit the lock")

	require.NoError(t, p.Close())

	sub := filepath.Join(p.Root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	reopened, err := Open(sub, testOptions())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, p.Root, reopened.Root)

	_, err = Offline(sub, "", testOptions())
	assert.True(t, errors.IsUser(err))
}

func TestParcelWorkflow(t *testing.T) {
	p := setupParcel(t)

	writeFile(t, p.Root, "a.txt", "alpha two")
	rev, err := p.Commit("second")
	require.NoError(t, err)
	assert.Equal(t, 1, rev)

	changes, err := p.Changes("trunk/0")
	require.NoError(t, err)
	assert.Contains(t, changes.Modifications, "a.txt")

	diffs, err := p.Diff("/0")
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, workspace.StateModified, diffs[0].State)

	info, err := p.Branch("side", true, true)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Number)

	require.NoError(t, p.Switch("trunk/0", false))
	data, err := os.ReadFile(filepath.Join(p.Root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	require.NoError(t, p.Update("side", "both", "theirs", true))
	data, err = os.ReadFile(filepath.Join(p.Root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha two", string(data))

	assert.True(t, errors.IsUser(p.Update("side", "sideways", "", true)))
	assert.True(t, errors.IsUser(p.Update("side", "", "maybe", true)))

	entries, err := p.Log()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	assert.True(t, errors.IsUser(p.Delete("side/0", true)))
	assert.True(t, errors.IsUser(p.Delete("", true)))
	require.NoError(t, p.Delete("side", true))

	require.NoError(t, p.SyncCommit())
	status, err := p.Status()
	require.NoError(t, err)
	assert.True(t, status.Branch.InSync)
}

func TestOnline(t *testing.T) {
	p := setupParcel(t)

	writeFile(t, p.Root, "b.txt", "uncommitted")
	err := p.Online(false)
	assert.True(t, errors.IsPrecondition(err))
	assert.DirExists(t, filepath.Join(p.Root, workspace.MetaDir))

	require.NoError(t, p.Online(true))
	assert.NoDirExists(t, filepath.Join(p.Root, workspace.MetaDir))
	assert.FileExists(t, filepath.Join(p.Root, "b.txt"))
}

func TestWatch(t *testing.T) {
	p := setupParcel(t)

	ctx, cancel := context.WithCancel(context.Background())
	reports := make(chan shared.ChangeSet, 8)
	done := make(chan error, 1)
	go func() {
		done <- p.Watch(ctx, func(cs shared.ChangeSet) {
			select {
			case reports <- cs:
			default:
			}
		})
	}()

	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, p.Root, "watched.txt", "fresh")

	select {
	case cs := <-reports:
		assert.Contains(t, cs.Additions, "watched.txt")
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	assert.NoError(t, <-done)
}

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"ovc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexJournal(t *testing.T) {
	idx, err := OpenIndex("", true)
	require.NoError(t, err)
	defer idx.Close()

	op, err := idx.Begin("switch", 1, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, op.ID)

	pending, err := idx.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "switch", pending[0].Name)
	assert.Equal(t, 2, pending[0].Revision)

	require.NoError(t, idx.Finish(op))
	pending, err = idx.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Error(t, idx.Finish(op))
	assert.NoError(t, idx.Finish(nil))
}

func TestIndexClear(t *testing.T) {
	idx, err := OpenIndex("", true)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Begin("update", 0, 0)
	require.NoError(t, err)
	_, err = idx.Begin("switch", 0, 1)
	require.NoError(t, err)

	require.NoError(t, idx.Clear())
	pending, err := idx.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIndexLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")

	first, err := OpenIndex(path, false)
	require.NoError(t, err)

	_, err = OpenIndex(path, false)
	assert.True(t, errors.IsUser(err))

	require.NoError(t, first.Close())

	second, err := OpenIndex(path, false)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestIndexPendingOrder(t *testing.T) {
	idx, err := OpenIndex("", true)
	require.NoError(t, err)
	defer idx.Close()

	first, err := idx.Begin("commit", 0, 3)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := idx.Begin("update", 1, 0)
	require.NoError(t, err)

	pending, err := idx.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, 1, pending[1].Branch)
}

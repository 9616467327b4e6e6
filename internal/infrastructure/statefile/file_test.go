package statefile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ledger"
)

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	state, err := New(filepath.Join(t.TempDir(), "cache.json")).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := New(filepath.Join(dir, "cache.json"))

	state := ledger.New()
	state.Record("a.pdf", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), domain.PlatformTwitter)
	require.NoError(t, store.Save(context.Background(), state))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state, loaded)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not linger")
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o600))

	_, err := New(path).Load(context.Background())
	assert.True(t, domain.IsRetrieval(err))
}

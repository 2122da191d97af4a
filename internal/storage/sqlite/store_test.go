package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"roulette/internal/storage"
	"roulette/internal/storage/storagetest"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.RouletteStore {
		return openTempStore(t)
	})
}

func TestOpenTwiceKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roulette.db")
	store, err := Open(path)
	require.NoError(t, err)
	_, _, err = store.CreateRoulette(context.Background(), "persisted", false, storagetest.Participants("A", "B"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	view, err := reopened.GetRoulette(context.Background(), "persisted")
	require.NoError(t, err)
	require.Len(t, view.Participants, 2)
}

func TestDeletingRouletteCascades(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	r, _, err := store.CreateRoulette(context.Background(), "cascade", false, storagetest.Participants("A"))
	require.NoError(t, err)

	_, err = store.sqlDB.Exec(`DELETE FROM roulettes WHERE id = ?`, r.ID)
	require.NoError(t, err)

	var n int
	require.NoError(t, store.sqlDB.QueryRow(`SELECT COUNT(*) FROM roulette_participants`).Scan(&n))
	require.Zero(t, n)
}

func TestNilStore(t *testing.T) {
	var store *Store
	_, err := store.GetRoulette(context.Background(), "x")
	require.ErrorIs(t, err, storage.ErrNotConfigured)
	require.NoError(t, store.Close())
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "roulette.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

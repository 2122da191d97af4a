package postgres

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"roulette/internal/storage"
	"roulette/internal/storage/storagetest"
)

// Set ROULETTE_TEST_POSTGRES_DSN to a disposable database to run these.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ROULETTE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROULETTE_TEST_POSTGRES_DSN not set")
	}
	store, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, store.db.Exec(
		`TRUNCATE emoji_roulette_roulette_participant, emoji_roulette_roulette RESTART IDENTITY CASCADE`,
	).Error)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.RouletteStore {
		return openTestStore(t)
	})
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(" ")
	require.Error(t, err)
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestNilStore(t *testing.T) {
	var s *Store
	require.NoError(t, s.Close())
	_, err := s.GetRoulette(t.Context(), "x")
	require.ErrorIs(t, err, storage.ErrNotConfigured)
}

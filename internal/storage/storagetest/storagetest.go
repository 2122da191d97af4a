// Package storagetest holds a conformance suite run against every
// storage.RouletteStore backend.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roulette/internal/models"
	"roulette/internal/storage"
)

// Run exercises store behaviour shared by all backends. open must return a
// fresh, empty store; the suite does not close it.
func Run(t *testing.T, open func(t *testing.T) storage.RouletteStore) {
	t.Run("create and get round trip", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		r, ids, err := store.CreateRoulette(ctx, "hash-1", true, []storage.ParticipantInput{
			{ParticipantName: "A", Emoji: "😊", Position: 0},
			{ParticipantName: "B", Emoji: "🎉", IsHit: true, Position: 1},
		})
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.NotEqual(t, ids[0], ids[1])
		assert.Equal(t, "hash-1", r.Hash)
		assert.True(t, r.AutoSaveEnabled)

		view, err := store.GetRoulette(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, r.ID, view.ID)
		assert.True(t, view.AutoSaveEnabled)
		require.Len(t, view.Participants, 2)
		assert.Equal(t, "A", view.Participants[0].ParticipantName)
		assert.Equal(t, "😊", view.Participants[0].Emoji)
		assert.False(t, view.Participants[0].IsHit)
		assert.Equal(t, "B", view.Participants[1].ParticipantName)
		assert.Equal(t, "🎉", view.Participants[1].Emoji)
		assert.True(t, view.Participants[1].IsHit)
		assert.Equal(t, ids[1], view.Participants[1].ID)
		assert.Equal(t, r.ID, view.Participants[1].RouletteID)
		require.NotNil(t, view.Participants[1].Position)
		assert.Equal(t, 1, *view.Participants[1].Position)
	})

	t.Run("get unknown hash", func(t *testing.T) {
		store := open(t)
		_, err := store.GetRoulette(context.Background(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("update unknown hash", func(t *testing.T) {
		store := open(t)
		_, _, err := store.UpdateRoulette(context.Background(), "missing", nil, nil)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("update upserts and collects removed participants", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		_, ids, err := store.CreateRoulette(ctx, "hash-2", false, []storage.ParticipantInput{
			{ParticipantName: "A", Emoji: "😊", Position: 0},
			{ParticipantName: "B", Emoji: "😊", Position: 1},
			{ParticipantName: "C", Emoji: "😊", Position: 2},
		})
		require.NoError(t, err)

		enabled := true
		r, newIDs, err := store.UpdateRoulette(ctx, "hash-2", &enabled, []storage.ParticipantInput{
			{ID: &ids[2], ParticipantName: "C2", Emoji: "🎉", IsHit: true, Position: 0},
			{ID: &ids[0], ParticipantName: "A", Emoji: "😊", Position: 1},
			{ParticipantName: "D", Emoji: "🔥", Position: 2},
		})
		require.NoError(t, err)
		assert.True(t, r.AutoSaveEnabled)
		require.Len(t, newIDs, 3)
		assert.Equal(t, ids[2], newIDs[0])
		assert.Equal(t, ids[0], newIDs[1])
		assert.NotContains(t, ids, newIDs[2])

		view, err := store.GetRoulette(ctx, "hash-2")
		require.NoError(t, err)
		require.Len(t, view.Participants, 3)
		assert.Equal(t, "C2", view.Participants[0].ParticipantName)
		assert.True(t, view.Participants[0].IsHit)
		assert.Equal(t, "A", view.Participants[1].ParticipantName)
		assert.Equal(t, "D", view.Participants[2].ParticipantName)
		for _, p := range view.Participants {
			assert.NotEqual(t, ids[1], p.ID, "removed participant must be deleted")
		}
	})

	t.Run("update keeps flag when not supplied", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		_, _, err := store.CreateRoulette(ctx, "hash-3", true, nil)
		require.NoError(t, err)

		r, ids, err := store.UpdateRoulette(ctx, "hash-3", nil, nil)
		require.NoError(t, err)
		assert.True(t, r.AutoSaveEnabled)
		assert.Empty(t, ids)

		view, err := store.GetRoulette(ctx, "hash-3")
		require.NoError(t, err)
		assert.True(t, view.AutoSaveEnabled)
		assert.Empty(t, view.Participants)
	})

	t.Run("foreign ids are inserted", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		_, other, err := store.CreateRoulette(ctx, "hash-a", false, []storage.ParticipantInput{
			{ParticipantName: "X", Emoji: "😊"},
		})
		require.NoError(t, err)
		_, _, err = store.CreateRoulette(ctx, "hash-b", false, nil)
		require.NoError(t, err)

		_, ids, err := store.UpdateRoulette(ctx, "hash-b", nil, []storage.ParticipantInput{
			{ID: &other[0], ParticipantName: "Y", Emoji: "😊"},
		})
		require.NoError(t, err)
		assert.NotEqual(t, other[0], ids[0])

		a, err := store.GetRoulette(ctx, "hash-a")
		require.NoError(t, err)
		require.Len(t, a.Participants, 1)
		assert.Equal(t, "X", a.Participants[0].ParticipantName)
	})

	t.Run("canceled context", func(t *testing.T) {
		store := open(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := store.GetRoulette(ctx, "any")
		assert.Error(t, err)
	})
}

// Participants is a helper that builds inputs from names.
func Participants(names ...string) []storage.ParticipantInput {
	out := make([]storage.ParticipantInput, len(names))
	for i, n := range names {
		out[i] = storage.ParticipantInput{ParticipantName: n, Emoji: models.DefaultEmoji, Position: i}
	}
	return out
}

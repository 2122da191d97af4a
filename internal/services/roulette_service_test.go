package services

import (
	"errors"
	"testing"

	"roulette/internal/models"
	"roulette/internal/storage/memory"
)

func saveRequest(hash string, autoSave *bool, names ...string) models.SaveRequest {
	req := models.SaveRequest{Hash: hash, AutoSaveEnabled: autoSave}
	for _, name := range names {
		req.Participants = append(req.Participants, models.SaveParticipant{
			ParticipantName: name,
			Emoji:           models.DefaultEmoji,
		})
	}
	return req
}

func TestRouletteService_Save(t *testing.T) {
	service := NewRouletteService(memory.NewStore())
	ctx := t.Context()

	var created models.SaveResult

	t.Run("Test create assigns hash and ids", func(t *testing.T) {
		req := saveRequest("", nil, "Alice", "Bob", "Carol")
		req.Participants[1].IsHit = true

		result, err := service.Save(ctx, req)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if len(result.Hash) != 2*hashBytes {
			t.Errorf("Expected a %d character hash, but got %q", 2*hashBytes, result.Hash)
		}
		if len(result.ParticipantIDs) != 3 {
			t.Fatalf("Expected 3 participant ids, but got %d", len(result.ParticipantIDs))
		}
		created = result

		view, err := service.Load(ctx, result.Hash)
		if err != nil || view == nil {
			t.Fatalf("Expected the roulette to load, got %v, %v", view, err)
		}
		if view.AutoSaveEnabled {
			t.Error("Expected auto-save to default to false")
		}
		for i, want := range []string{"Alice", "Bob", "Carol"} {
			p := view.Participants[i]
			if p.ParticipantName != want {
				t.Errorf("Expected participant %d to be %s, but got %s", i, want, p.ParticipantName)
			}
			if p.Position == nil || *p.Position != i {
				t.Errorf("Expected participant %d position %d, but got %v", i, i, p.Position)
			}
			if p.ID != result.ParticipantIDs[i] {
				t.Errorf("Expected participant %d id %d, but got %d", i, result.ParticipantIDs[i], p.ID)
			}
		}
		if !view.Participants[1].IsHit {
			t.Error("Expected Bob to be hit")
		}
	})

	t.Run("Test update removes absent participants", func(t *testing.T) {
		if created.Hash == "" {
			t.Skip("create failed")
		}
		enabled := true
		req := saveRequest(created.Hash, &enabled, "Carol", "Dave")
		carolID := created.ParticipantIDs[2]
		req.Participants[0].ID = &carolID

		result, err := service.Save(ctx, req)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if result.Hash != created.Hash || result.ID != created.ID {
			t.Errorf("Expected the same roulette, but got %+v", result)
		}
		if result.ParticipantIDs[0] != carolID {
			t.Errorf("Expected Carol to keep id %d, but got %d", carolID, result.ParticipantIDs[0])
		}

		view, _ := service.Load(ctx, created.Hash)
		if len(view.Participants) != 2 {
			t.Fatalf("Expected 2 participants after update, but got %d", len(view.Participants))
		}
		if view.Participants[0].ParticipantName != "Carol" || view.Participants[1].ParticipantName != "Dave" {
			t.Errorf("Unexpected order: %+v", view.Participants)
		}
		if !view.AutoSaveEnabled {
			t.Error("Expected auto-save to be enabled")
		}
	})

	t.Run("Test update of unknown hash", func(t *testing.T) {
		_, err := service.Save(ctx, saveRequest("does-not-exist", nil, "Alice"))
		if !errors.Is(err, models.ErrRouletteNotFound) {
			t.Fatalf("Expected ErrRouletteNotFound, but got %v", err)
		}
	})

	t.Run("Test validation", func(t *testing.T) {
		cases := map[string]models.SaveParticipant{
			"empty name":  {ParticipantName: "", Emoji: "😊"},
			"empty emoji": {ParticipantName: "Alice", Emoji: ""},
			"long emoji":  {ParticipantName: "Alice", Emoji: "😊😊😊😊😊😊😊😊😊😊😊😊😊😊😊😊😊"},
		}
		for name, p := range cases {
			_, err := service.Save(ctx, models.SaveRequest{Participants: []models.SaveParticipant{p}})
			if !errors.Is(err, models.ErrInvalidParticipant) {
				t.Errorf("%s: expected ErrInvalidParticipant, but got %v", name, err)
			}
		}
	})

	t.Run("Test empty roulette", func(t *testing.T) {
		result, err := service.Save(ctx, models.SaveRequest{})
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		view, _ := service.Load(ctx, result.Hash)
		if view == nil || len(view.Participants) != 0 {
			t.Errorf("Expected an empty roulette, but got %+v", view)
		}
	})
}

func TestRouletteService_Load(t *testing.T) {
	service := NewRouletteService(memory.NewStore())

	view, err := service.Load(t.Context(), "missing")
	if err != nil || view != nil {
		t.Errorf("Expected nil, nil for an unknown hash, but got %v, %v", view, err)
	}
	if _, err := service.Load(t.Context(), ""); !errors.Is(err, models.ErrInvalidHash) {
		t.Errorf("Expected ErrInvalidHash, but got %v", err)
	}
}

func TestRouletteService_HashFailure(t *testing.T) {
	service := NewRouletteService(memory.NewStore())
	service.newHash = func() (string, error) { return "", errors.New("entropy exhausted") }

	if _, err := service.Save(t.Context(), saveRequest("", nil, "Alice")); err == nil {
		t.Fatal("Expected an error when hash generation fails")
	}
}

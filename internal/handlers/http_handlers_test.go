package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"roulette/internal/models"
	"roulette/internal/services"
	"roulette/internal/session"
	"roulette/internal/storage/memory"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service := services.NewRouletteService(memory.NewStore())
	live := services.NewLiveSessions(service, time.Hour,
		session.WithDebounce(0), session.WithIndexFunc(func(int) int { return 0 }))
	t.Cleanup(live.CloseAll)

	router := gin.New()
	NewHTTPHandler(service, live).RegisterRoutes(router)
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestSaveAndGetRoulette(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/roulettes", gin.H{
		"participants": []gin.H{
			{"participantName": "Alice", "emoji": "😊", "isHit": false},
			{"participantName": "Bob", "emoji": "🎉", "isHit": true},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[models.SaveResult](t, w)
	require.NotEmpty(t, result.Hash)
	require.Len(t, result.ParticipantIDs, 2)

	w = do(t, router, http.MethodGet, "/api/roulettes/"+result.Hash, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[models.RouletteView](t, w)
	assert.Equal(t, result.Hash, view.Hash)
	require.Len(t, view.Participants, 2)
	assert.Equal(t, "Bob", view.Participants[1].ParticipantName)
	assert.True(t, view.Participants[1].IsHit)

	t.Run("update drops absent participants", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/api/roulettes", gin.H{
			"hash":            result.Hash,
			"autoSaveEnabled": true,
			"participants": []gin.H{
				{"id": result.ParticipantIDs[1], "participantName": "Bob", "emoji": "🎉", "isHit": true},
			},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		view := decode[models.RouletteView](t, do(t, router, http.MethodGet, "/api/roulettes/"+result.Hash, nil))
		require.Len(t, view.Participants, 1)
		assert.Equal(t, result.ParticipantIDs[1], view.Participants[0].ID)
		assert.True(t, view.AutoSaveEnabled)
	})
}

func TestSaveRouletteErrors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"unknown hash", gin.H{"hash": "nope", "participants": []gin.H{}}, http.StatusNotFound},
		{"missing emoji", gin.H{"participants": []gin.H{{"participantName": "Alice"}}}, http.StatusBadRequest},
		{"empty name", gin.H{"participants": []gin.H{{"participantName": "", "emoji": "😊"}}}, http.StatusBadRequest},
		{"malformed", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/roulettes", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestGetUnknownRoulette(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/api/roulettes/unknown", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())
}

func TestShowRouletteConsumesSuccessOnce(t *testing.T) {
	router := newTestRouter(t)
	result := decode[models.SaveResult](t, do(t, router, http.MethodPost, "/api/roulettes", gin.H{
		"participants": []gin.H{{"participantName": "Alice", "emoji": "😊"}},
	}))

	w := do(t, router, http.MethodGet, "/roulettes/"+result.Hash+"?saved=1", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/roulettes/"+result.Hash, w.Header().Get("Location"))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, flashCookie, cookies[0].Name)

	w = do(t, router, http.MethodGet, "/roulettes/"+result.Hash, nil, cookies[0])
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Roulette    *models.RouletteView `json:"roulette"`
		ShowSuccess bool                 `json:"showSuccess"`
	}](t, w)
	assert.True(t, body.ShowSuccess)
	require.NotNil(t, body.Roulette)
	assert.Equal(t, result.Hash, body.Roulette.Hash)
	cleared := w.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Less(t, cleared[0].MaxAge, 0)

	w = do(t, router, http.MethodGet, "/roulettes/"+result.Hash, nil)
	assert.Contains(t, w.Body.String(), `"showSuccess":false`)
}

func TestLiveSessionFlow(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/live", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[liveResponse](t, w)
	base := "/api/live/" + created.ID

	for _, name := range []string{"Alice", "Bob"} {
		w = do(t, router, http.MethodPost, base+"/participants", gin.H{"name": name})
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode[liveResponse](t, w).Changed)
	}
	w = do(t, router, http.MethodPost, base+"/participants", gin.H{"name": "Alice"})
	assert.False(t, decode[liveResponse](t, w).Changed, "duplicate add")

	resp := decode[liveResponse](t, do(t, router, http.MethodPost, base+"/spin", nil))
	require.True(t, resp.State.IsSpinning)
	resp = decode[liveResponse](t, do(t, router, http.MethodPost, base+"/spin", nil))
	assert.False(t, resp.Changed, "spin while spinning")

	resp = decode[liveResponse](t, do(t, router, http.MethodPost, base+"/confirm", nil))
	require.NotNil(t, resp.State.Winner)
	assert.Equal(t, "Alice", resp.State.Winner.ParticipantName)
	assert.True(t, resp.State.Participants[0].IsHit)

	bob := resp.State.Participants[1].LocalKey
	resp = decode[liveResponse](t, do(t, router, http.MethodPost, base+"/participants/"+bob+"/move", gin.H{"direction": "up"}))
	assert.Equal(t, "Bob", resp.State.Participants[0].ParticipantName)

	resp = decode[liveResponse](t, do(t, router, http.MethodPatch, base+"/participants/"+bob, gin.H{"name": "Robert", "emoji": "🐢"}))
	assert.Equal(t, "Robert", resp.State.Participants[0].ParticipantName)
	assert.Equal(t, "🐢", resp.State.Participants[0].Emoji)

	w = do(t, router, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decode[liveResponse](t, w)
	require.NotEmpty(t, resp.State.Hash)
	assert.Equal(t, "/roulettes/"+resp.State.Hash+"?saved=1", resp.Redirect)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, session.LevelSuccess, resp.Notifications[0].Level)

	stored := decode[models.RouletteView](t, do(t, router, http.MethodGet, "/api/roulettes/"+resp.State.Hash, nil))
	require.Len(t, stored.Participants, 2)
	assert.Equal(t, "Robert", stored.Participants[0].ParticipantName)

	w = do(t, router, http.MethodPut, base+"/autosave", gin.H{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[liveResponse](t, w).State.AutoSaveEnabled)

	w = do(t, router, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLiveSessionOpensStoredRoulette(t *testing.T) {
	router := newTestRouter(t)
	result := decode[models.SaveResult](t, do(t, router, http.MethodPost, "/api/roulettes", gin.H{
		"participants": []gin.H{{"participantName": "Alice", "emoji": "😊"}},
	}))

	w := do(t, router, http.MethodPost, "/api/live", gin.H{"hash": result.Hash})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode[liveResponse](t, w)
	assert.Equal(t, result.Hash, resp.State.Hash)
	require.Len(t, resp.State.Participants, 1)
}

func TestLiveSessionBadRequests(t *testing.T) {
	router := newTestRouter(t)
	created := decode[liveResponse](t, do(t, router, http.MethodPost, "/api/live", nil))
	base := "/api/live/" + created.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown session", http.MethodPost, "/api/live/missing/spin", nil, http.StatusNotFound},
		{"bad direction", http.MethodPost, base + "/participants/k/move", gin.H{"direction": "left"}, http.StatusBadRequest},
		{"autosave without flag", http.MethodPut, base + "/autosave", gin.H{}, http.StatusBadRequest},
		{"empty update", http.MethodPatch, base + "/participants/k", gin.H{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestWebSocketCommands(t *testing.T) {
	router := newTestRouter(t)
	created := decode[liveResponse](t, do(t, router, http.MethodPost, "/api/live", nil))

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live/" + created.ID + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	next := func(typ string) services.Event {
		t.Helper()
		for {
			var ev services.Event
			require.NoError(t, wsjson.Read(ctx, conn, &ev))
			if ev.Type == typ {
				return ev
			}
		}
	}

	first := next("state")
	require.NotNil(t, first.State)
	assert.Empty(t, first.State.Participants)

	require.NoError(t, wsjson.Write(ctx, conn, command{Type: "add", Name: "Zed"}))
	ev := next("state")
	require.Len(t, ev.State.Participants, 1)
	assert.Equal(t, "Zed", ev.State.Participants[0].ParticipantName)

	require.NoError(t, wsjson.Write(ctx, conn, command{Type: "bogus"}))
	ev = next("error")
	assert.Contains(t, ev.Error, "unknown type")

	require.NoError(t, wsjson.Write(ctx, conn, command{Type: "spin"}))
	ev = next("state")
	assert.True(t, ev.State.IsSpinning)
	require.NoError(t, wsjson.Write(ctx, conn, command{Type: "confirm"}))
	ev = next("state")
	require.NotNil(t, ev.State.Winner)
	assert.Equal(t, "Zed", ev.State.Winner.ParticipantName)
}

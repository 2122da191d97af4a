package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"roulette/internal/services"
)

const (
	wsWriteTimeout = 3 * time.Second
	wsReadTimeout  = 5 * time.Minute
)

// ServeWebSocket streams live session events to the client and applies the
// commands it sends. The first message is always the current state.
func (h *HTTPHandler) ServeWebSocket(c *gin.Context) {
	ls := liveSession(c)
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warningf("Websocket accept for live session %s: %v", ls.ID, err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, unsubscribe := ls.Subscribe()
	defer unsubscribe()
	replies := make(chan services.Event, 4)

	go func() {
		defer cancel()
		for {
			var ev services.Event
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "session closed")
					return
				}
				ev = e
			case ev = <-replies:
			}
			wctx, wcancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				return
			}
		}
	}()

	ls.PublishState()

	for {
		var cmd command
		rctx, rcancel := context.WithTimeout(ctx, wsReadTimeout)
		err := wsjson.Read(rctx, conn, &cmd)
		rcancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					logger.Infof("Websocket for live session %s closed: %v", ls.ID, err)
				}
			}
			return
		}

		changed, err := apply(ctx, ls, cmd)
		if changed {
			ls.PublishState()
		}
		if errors.Is(err, errBadCommand) {
			select {
			case replies <- services.Event{Type: "error", Error: err.Error()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// apps/go-server/internal/httpserver/routes_ws.go
//
// GET /game/events upgrades to a WebSocket bound to the caller's session.
//   - Server → client: one {"type":"snapshot"} frame, then a {"type":"change"}
//     frame per property change.
//   - Client → server: command frames, same shape as POST /game/{command}
//     bodies plus the "command" field.
// Only this handler's goroutine writes to the connection.

package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/snake/apps/go-server/internal/auth"
	"github.com/robalobadob/snake/apps/go-server/internal/game"
	"github.com/robalobadob/snake/apps/go-server/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 25 * time.Second
	wsEventBuf   = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin access is governed by the CORS origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsFrame struct {
	Type     string         `json:"type"`
	Snapshot *game.Snapshot `json:"snapshot,omitempty"`
	Property game.Property  `json:"property,omitempty"`
	Value    any            `json:"value"`
	Error    string         `json:"error,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// The upgrade response is the only chance to hand a guest its cookie.
	var owner string
	header := http.Header{}
	if u := auth.CurrentUser(r); u != nil {
		owner = u.ID
	} else if id, ok := auth.AnonID(r); ok {
		owner = id
	} else {
		owner = auth.NewAnonID()
		header.Add("Set-Cookie", auth.AnonCookie(owner, s.cfg.Production).String())
	}

	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		log.Debug().Err(err).Msg("ws upgrade")
		return
	}
	defer conn.Close()

	sess := s.sessions.Get(owner)
	events, cancel := sess.Subscribe(wsEventBuf)
	defer cancel()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return
	}
	if err := writeFrame(conn, wsFrame{Type: "snapshot", Snapshot: &snap}); err != nil {
		return
	}

	replies := make(chan wsFrame, 8)
	go s.readCommands(ctx, stop, conn, sess, replies)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := writeFrame(conn, wsFrame{Type: "change", Property: ev.Property, Value: ev.Value}); err != nil {
				return
			}
		case f := <-replies:
			if err := writeFrame(conn, f); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readCommands applies client frames until the connection fails, then calls
// stop.
func (s *Server) readCommands(ctx context.Context, stop func(), conn *websocket.Conn, sess *session.Session, replies chan<- wsFrame) {
	defer stop()
	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var c command
		if err := conn.ReadJSON(&c); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("ws read")
			}
			return
		}
		if err := dispatch(ctx, sess, c); err != nil {
			select {
			case replies <- wsFrame{Type: "error", Error: err.Error()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f wsFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(f)
}

// apps/go-server/internal/httpserver/routes_game.go
//
// HTTP routes for the classic game.
//   - GET  /game            → current snapshot of the caller's session (an
//     Init snapshot when the caller has none; reads never create a session)
//   - POST /game/{command}  → start | direction | pause | speed | reset | highscore
//   - GET  /scores/me       → caller's stored high score
//
// Commands never fail on bad arguments: an unknown direction or an
// out-of-range speed leaves the game unchanged and the snapshot is returned.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/snake/apps/go-server/internal/game"
	"github.com/robalobadob/snake/apps/go-server/internal/session"
)

var errUnknownCommand = errors.New("unknown command")

// command is the body accepted by POST /game/{command} and by the WebSocket.
type command struct {
	Command   string `json:"command"`
	Direction string `json:"direction,omitempty"`
	Speed     int    `json:"speed,omitempty"`
}

// dispatch applies one command to sess. Daily starts go through /daily/start.
func dispatch(ctx context.Context, sess *session.Session, c command) error {
	switch c.Command {
	case "start":
		return sess.StartClassic(ctx)
	case "direction":
		d, ok := game.ParseDirection(c.Direction)
		if !ok {
			return nil
		}
		return sess.Do(ctx, func(e *game.Engine) { e.ChangeDirection(d) })
	case "pause":
		return sess.Do(ctx, func(e *game.Engine) { e.TogglePause() })
	case "speed":
		return sess.Do(ctx, func(e *game.Engine) { e.SetGameSpeed(c.Speed) })
	case "reset":
		return sess.Do(ctx, func(e *game.Engine) { e.ResetGame() })
	case "highscore":
		return sess.Do(ctx, func(e *game.Engine) { e.SaveHighScore() })
	}
	return errUnknownCommand
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	owner := s.ownerID(w, r)
	sess, ok := s.sessions.Lookup(owner)
	if !ok {
		best, _, err := s.settings.GetInt(r.Context(), owner, game.HighScoreKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		writeJSON(w, game.InitialSnapshot(best))
		return
	}
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	c := command{Command: chi.URLParam(r, "command")}
	if r.ContentLength != 0 {
		var body command
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request")
			return
		}
		c.Direction, c.Speed = body.Direction, body.Speed
	}

	sess := s.sessions.Get(s.ownerID(w, r))
	if err := dispatch(r.Context(), sess, c); err != nil {
		if errors.Is(err, errUnknownCommand) {
			writeError(w, http.StatusBadRequest, "unknown_command")
			return
		}
		sessionError(w, err)
		return
	}
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleMyHighScore(w http.ResponseWriter, r *http.Request) {
	owner := s.ownerID(w, r)
	best, _, err := s.settings.GetInt(r.Context(), owner, game.HighScoreKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, map[string]any{"owner": owner, "highScore": best})
}

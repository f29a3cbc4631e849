// apps/go-server/internal/httpserver/routes_auth.go
//
// Accounts and score history.
//   - POST /auth/signup, /auth/login, /auth/logout; GET /auth/me (gated)
//   - GET  /scores/leaderboard → best score per player
//   - GET  /runs/mine          → caller's recent runs (gated)
//
// Signing in claims the guest identity carried by the anon cookie: its high
// score is merged, its runs and daily results move to the account and its
// live session is closed. Only ids in the "anon:" namespace can be claimed, so
// a forged cookie naming an account id is ignored.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/snake/apps/go-server/internal/auth"
	"github.com/robalobadob/snake/apps/go-server/internal/game"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// mountAuthRoutes registers authentication routes.
func (s *Server) mountAuthRoutes(r chi.Router) {
	r.Post("/auth/signup", s.handleSignup)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.With(s.auth.Require()).Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, auth.CurrentUser(r))
	})
}

// mountScores registers leaderboard and history routes.
func (s *Server) mountScores(r chi.Router) {
	r.Get("/scores/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		rows, err := s.runs.Leaderboard(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		writeJSON(w, rows)
	})

	r.With(s.auth.Require()).Get("/runs/mine", func(w http.ResponseWriter, r *http.Request) {
		me := auth.CurrentUser(r)
		out, err := s.runs.Recent(r.Context(), me.ID, 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		writeJSON(w, out)
	})
}

// handleSignup creates a new user, signs a JWT, sets auth cookie, and claims anon history.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	u, err := s.auth.CreateUser(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "Username taken")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.issueToken(w, u) {
		return
	}
	s.claimAnon(r, u.ID)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, u)
}

// handleLogin authenticates user, sets cookie, and claims anon history.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	u, err := s.auth.Authenticate(r.Context(), body.Username, body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if !s.issueToken(w, u) {
		return
	}
	s.claimAnon(r, u.ID)
	writeJSON(w, u)
}

// handleLogout clears the auth cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.ClearAuthCookie(w)
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) issueToken(w http.ResponseWriter, u *auth.User) bool {
	tok, exp, err := s.auth.SignJWT(u.ID, u.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sign_failed")
		return false
	}
	s.auth.SetAuthCookie(w, tok, exp)
	return true
}

// claimAnon moves the guest identity on r (if any) onto userID.
func (s *Server) claimAnon(r *http.Request, userID string) {
	anon, ok := auth.AnonID(r)
	if !ok || anon == userID {
		return
	}
	s.sessions.Remove(anon)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger := log.With().Str("anon", anon).Str("user", userID).Logger()

	guest, ok, err := s.settings.GetInt(ctx, anon, game.HighScoreKey)
	if err != nil {
		logger.Warn().Err(err).Msg("claim: read guest high score")
	} else if ok {
		mine, _, err := s.settings.GetInt(ctx, userID, game.HighScoreKey)
		if err == nil && guest > mine {
			if err := s.settings.SetInt(ctx, userID, game.HighScoreKey, guest); err != nil {
				logger.Warn().Err(err).Msg("claim: merge high score")
			}
		}
	}

	n, err := s.runs.Reassign(ctx, anon, userID)
	if err != nil {
		logger.Warn().Err(err).Msg("claim: runs")
	}
	if err := s.daily.Reassign(ctx, anon, userID); err != nil {
		logger.Warn().Err(err).Msg("claim: daily results")
	}
	// A game already open for the account would otherwise keep the older best
	// cached until its next save.
	if sess, ok := s.sessions.Lookup(userID); ok {
		if err := sess.Do(ctx, func(e *game.Engine) { e.ReloadHighScore() }); err != nil {
			logger.Debug().Err(err).Msg("claim: reload high score")
		}
	}
	logger.Info().Int64("runs", n).Msg("claimed guest history")
}

// apps/go-server/internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Challenge" mode.
// Exposes two endpoints under /daily:
//   - POST /daily/start       → start today's run in the caller's session
//   - GET  /daily/leaderboard → top 20 results for today (or a given date)
//
// Each player gets one attempt per day: the first /daily/start is recorded in
// daily_starts and later calls do not restart the board, and the scored result
// is unique per (user, date) in daily_results. The food sequence is fixed by a seed derived from date + salt,
// so every player faces the same board.

package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/snake/apps/go-server/internal/daily"
)

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	r.Route("/daily", func(r chi.Router) {
		r.Post("/start", s.handleDailyStart)
		r.Get("/leaderboard", s.handleDailyLeaderboard)
	})
}

// dailyStartRes is returned by /daily/start.
type dailyStartRes struct {
	Date    string `json:"date"`
	Played  bool   `json:"played"`
	Started bool   `json:"started,omitempty"` // today's attempt is already under way
	Seed    uint64 `json:"seed,omitempty"`
}

// handleDailyStart starts today's run unless the caller already has a result
// or an attempt in progress for today.
func (s *Server) handleDailyStart(w http.ResponseWriter, r *http.Request) {
	owner := s.ownerID(w, r)
	now := time.Now().UTC()
	date := daily.DateKey(now)

	played, err := s.daily.AlreadyPlayed(r.Context(), owner, date)
	if err != nil {
		log.Error().Err(err).Str("owner", owner).Msg("daily lookup")
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if played {
		writeJSON(w, dailyStartRes{Date: date, Played: true})
		return
	}

	first, err := s.daily.MarkStarted(r.Context(), owner, date)
	if err != nil {
		log.Error().Err(err).Str("owner", owner).Msg("daily mark started")
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !first {
		writeJSON(w, dailyStartRes{Date: date, Started: true})
		return
	}

	seed := daily.Seed(now, s.cfg.DailySalt)
	if err := s.sessions.Get(owner).StartDaily(r.Context(), seed); err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, dailyStartRes{Date: date, Seed: seed})
}

// dailyLBRes is returned by /daily/leaderboard.
type dailyLBRes struct {
	Date string        `json:"date"`
	Top  []daily.LBRow `json:"top"`
}

// handleDailyLeaderboard returns the leaderboard for the given date (default today).
func (s *Server) handleDailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(time.Now())
	}
	rows, err := s.daily.Leaderboard(r.Context(), date, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, dailyLBRes{Date: date, Top: rows})
}

// apps/go-server/internal/httpserver/server.go
//
// HTTP server wiring for the Snake backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Game endpoints (optional auth): GET /game, POST /game/{command},
//     GET /game/events (WebSocket change stream).
//   - Daily Challenge endpoints (optional auth): mounted under /daily.
//   - Scores: /scores/leaderboard, /scores/me; auth-gated /runs/mine.
//   - Auth endpoints: /auth/*.
//
// Notes:
//   - Each player (user id, or "anon:" cookie id for guests) owns at most one
//     game session; the session serializes commands and ticks. Sessions are
//     created by the first command and evicted after SESSION_IDLE_MIN.
//   - Without a database only the game endpoints are mounted; the high score
//     then lives in the in-memory settings store.

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/snake/apps/go-server/internal/auth"
	"github.com/robalobadob/snake/apps/go-server/internal/config"
	"github.com/robalobadob/snake/apps/go-server/internal/daily"
	"github.com/robalobadob/snake/apps/go-server/internal/game"
	"github.com/robalobadob/snake/apps/go-server/internal/runs"
	"github.com/robalobadob/snake/apps/go-server/internal/session"
	"github.com/robalobadob/snake/apps/go-server/internal/store"
)

// Server bundles router, game sessions and persistence.
type Server struct {
	r        *chi.Mux
	cfg      config.Config
	settings store.Store
	sessions *session.Manager

	stopJanitor context.CancelFunc
	pending     sync.WaitGroup // recordRun calls in flight

	// nil when running without a database
	auth  *auth.Service
	runs  *runs.Store
	daily *daily.Store
}

// New constructs a Server, installs middleware, and registers routes.
// db may be nil.
func New(cfg config.Config, settings store.Store, db *sql.DB) *Server {
	s := &Server{r: chi.NewRouter(), cfg: cfg, settings: settings}
	if db != nil {
		s.auth = auth.NewService(db, cfg)
		s.runs = runs.NewStore(db)
		s.daily = daily.NewStore(db)
	}
	s.sessions = session.NewManager(func(owner string) session.Options {
		return session.Options{
			Settings: store.Bind(context.Background(), settings, owner),
			OnFinish: s.finishRun,
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	s.stopJanitor = cancel
	if cfg.SessionIdleMinutes > 0 {
		go s.sessions.Janitor(ctx, time.Minute, time.Duration(cfg.SessionIdleMinutes)*time.Minute)
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(s.corsFromConfig)

	// --- diagnostics ---
	s.r.With(jsonContentType).Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"service":"snake-go","endpoints":["/health","GET /game","POST /game/{command}","GET /game/events"]}`))
	})
	s.r.With(jsonContentType).Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "sessions": s.sessions.Len()})
	})

	// WebSocket stream: no timeout/JSON middleware on a hijacked connection.
	s.r.With(s.optionalAuth()).Get("/game/events", s.handleEvents)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
		r.Use(jsonContentType)                 // default JSON responses

		// Game endpoints: OPTIONAL AUTH (guests can play)
		r.With(s.optionalAuth()).Get("/game", s.handleSnapshot)
		r.With(s.optionalAuth()).Post("/game/{command}", s.handleCommand)
		r.With(s.optionalAuth()).Get("/scores/me", s.handleMyHighScore)

		if db != nil {
			// Daily Challenge: OPTIONAL AUTH (guests can play; result persisted on game over)
			s.mountDaily(r.With(s.optionalAuth()))
			s.mountScores(r)
			s.mountAuthRoutes(r)
		}
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return s
}

// Handler exposes the router (useful for tests and http.Server).
func (s *Server) Handler() http.Handler { return s.r }

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Close exits every running game and waits until finished runs are stored.
func (s *Server) Close() {
	s.stopJanitor()
	s.sessions.CloseAll()
	s.pending.Wait()
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromConfig enables credentialed CORS for the configured client origin.
func (s *Server) corsFromConfig(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// optionalAuth attaches the signed-in user when accounts are enabled.
func (s *Server) optionalAuth() func(http.Handler) http.Handler {
	if s.auth == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.auth.Optional()
}

// ------------------------------- owners ------------------------------------

// ownerID returns the signed-in user's id, or the guest's anonymous id
// (issuing the cookie when missing).
func (s *Server) ownerID(w http.ResponseWriter, r *http.Request) string {
	if u := auth.CurrentUser(r); u != nil {
		return u.ID
	}
	return auth.EnsureAnonID(w, r, s.cfg.Production)
}

// finishRun is the session OnFinish hook. It runs on the session goroutine,
// so the store writes happen elsewhere; Close waits for them.
func (s *Server) finishRun(res session.Result) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.recordRun(res)
	}()
}

// recordRun persists a finished run (and the daily result for daily runs).
func (s *Server) recordRun(res session.Result) {
	log.Info().Str("owner", res.Owner).Str("mode", res.Mode).Int("score", res.Score).Msg("run finished")
	if s.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := &runs.Run{
		Owner:      res.Owner,
		Mode:       res.Mode,
		Score:      res.Score,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if err := s.runs.Insert(ctx, run); err != nil {
		log.Warn().Err(err).Str("owner", res.Owner).Msg("insert run")
	}

	if res.Mode == game.ModeDaily && s.daily != nil {
		err := s.daily.InsertResult(ctx, daily.Result{
			UserID:    res.Owner,
			Date:      daily.DateKey(res.StartedAt),
			Seed:      res.Seed,
			Score:     res.Score,
			ElapsedMs: int(run.Elapsed().Milliseconds()),
		})
		if err != nil {
			log.Warn().Err(err).Str("owner", res.Owner).Msg("insert daily result")
		}
	}
}

// ------------------------------- helpers -----------------------------------

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// sessionError maps session failures to HTTP responses.
func sessionError(w http.ResponseWriter, err error) {
	log.Warn().Err(err).Msg("session command")
	writeError(w, http.StatusServiceUnavailable, "session_unavailable")
}

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/robalobadob/snake/apps/go-server/internal/config"
	"github.com/robalobadob/snake/apps/go-server/internal/daily"
	"github.com/robalobadob/snake/apps/go-server/internal/database"
	"github.com/robalobadob/snake/apps/go-server/internal/game"
	"github.com/robalobadob/snake/apps/go-server/internal/runs"
	"github.com/robalobadob/snake/apps/go-server/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "test-secret",
		JWTExpiresDays: 1,
		CookieName:     "snake_token",
		ClientOrigin:   "http://localhost:5173",
		DailySalt:      "salt",
	}
}

type fixture struct {
	srv      *Server
	db       *sql.DB
	settings store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenMigrated(filepath.Join(t.TempDir(), "snake.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	settings := store.NewSQLStore(db)
	srv := New(testConfig(), settings, db)
	t.Cleanup(func() {
		srv.Close()
		_ = db.Close()
	})
	return &fixture{srv: srv, db: db, settings: settings}
}

func (f *fixture) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) game.Snapshot {
	t.Helper()
	var snap game.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v (body %q)", err, rec.Body.String())
	}
	return snap
}

func TestHealthAndNotFound(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "not_found") {
		t.Fatalf("404 = %d %q", rec.Code, rec.Body.String())
	}
}

func TestGuestGameCommands(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/game", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /game = %d", rec.Code)
	}
	anon := cookieNamed(rec, "snake_anon")
	if anon == nil {
		t.Fatalf("guest cookie not issued")
	}
	if snap := decodeSnapshot(t, rec); snap.GameState != "init" || len(snap.SnakeBody) != 0 {
		t.Fatalf("initial snapshot = %+v", snap)
	}

	snap := decodeSnapshot(t, f.do(t, http.MethodPost, "/game/start", "", anon))
	if snap.GameState != "running" || len(snap.SnakeBody) != game.InitialSize || snap.Score != 0 {
		t.Fatalf("after start = %+v", snap)
	}

	snap = decodeSnapshot(t, f.do(t, http.MethodPost, "/game/direction", `{"direction":"sideways"}`, anon))
	if snap.Direction != "none" {
		t.Fatalf("bad direction applied: %q", snap.Direction)
	}
	snap = decodeSnapshot(t, f.do(t, http.MethodPost, "/game/speed", `{"speed":999}`, anon))
	if snap.GameSpeed != game.DefaultSpeedMs {
		t.Fatalf("out-of-range speed applied: %d", snap.GameSpeed)
	}
	snap = decodeSnapshot(t, f.do(t, http.MethodPost, "/game/pause", "", anon))
	if !snap.Paused {
		t.Fatalf("pause not toggled")
	}
	snap = decodeSnapshot(t, f.do(t, http.MethodPost, "/game/reset", "", anon))
	if snap.GameState != "init" || len(snap.SnakeBody) != 0 {
		t.Fatalf("after reset = %+v", snap)
	}

	if rec := f.do(t, http.MethodPost, "/game/teleport", "", anon); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown command = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/game/speed", `{not json`, anon); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body = %d", rec.Code)
	}
	if f.srv.sessions.Len() != 1 {
		t.Fatalf("sessions = %d, want 1", f.srv.sessions.Len())
	}
}

func TestFinishedRunIsRecorded(t *testing.T) {
	f := newFixture(t)
	anon := cookieNamed(f.do(t, http.MethodGet, "/game", ""), "snake_anon")

	f.do(t, http.MethodPost, "/game/start", "", anon)
	f.do(t, http.MethodPost, "/game/speed", `{"speed":50}`, anon)
	f.do(t, http.MethodPost, "/game/direction", `{"direction":"up"}`, anon)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var rows []runs.LBRow
		rec := f.do(t, http.MethodGet, "/scores/leaderboard", "")
		_ = json.NewDecoder(rec.Body).Decode(&rows)
		if len(rows) == 1 {
			if rows[0].Runs != 1 || rows[0].Name != "" {
				t.Fatalf("leaderboard = %+v", rows)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never recorded")
		}
		time.Sleep(20 * time.Millisecond)
	}

	snap := decodeSnapshot(t, f.do(t, http.MethodGet, "/game", "", anon))
	if snap.GameState != "over" {
		t.Fatalf("state = %q, want over", snap.GameState)
	}
	mine, err := runs.NewStore(f.db).Recent(context.Background(), anon.Value, 10)
	if err != nil || len(mine) != 1 {
		t.Fatalf("guest runs = %+v, %v", mine, err)
	}

	body := f.do(t, http.MethodGet, "/scores/leaderboard", "").Body.String()
	if strings.Contains(body, "owner") || strings.Contains(body, anon.Value) {
		t.Fatalf("leaderboard leaks owner ids: %s", body)
	}
}

func TestSnapshotDoesNotCreateSession(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 50; i++ {
		rec := f.do(t, http.MethodGet, "/game", "")
		if snap := decodeSnapshot(t, rec); !reflect.DeepEqual(snap, game.InitialSnapshot(0)) {
			t.Fatalf("snapshot = %+v", snap)
		}
	}
	if n := f.srv.sessions.Len(); n != 0 {
		t.Fatalf("sessions = %d after reads, want 0", n)
	}

	anon := cookieNamed(f.do(t, http.MethodGet, "/game", ""), "snake_anon")
	if err := f.settings.SetInt(context.Background(), anon.Value, game.HighScoreKey, 12); err != nil {
		t.Fatalf("seed high score: %v", err)
	}
	if snap := decodeSnapshot(t, f.do(t, http.MethodGet, "/game", "", anon)); snap.HighScore != 12 {
		t.Fatalf("high score without session = %d, want 12", snap.HighScore)
	}
}

func TestCloseWaitsForRunWrites(t *testing.T) {
	f := newFixture(t)
	anon := cookieNamed(f.do(t, http.MethodGet, "/game", ""), "snake_anon")

	f.do(t, http.MethodPost, "/game/start", "", anon)
	f.do(t, http.MethodPost, "/game/speed", `{"speed":50}`, anon)
	f.do(t, http.MethodPost, "/game/direction", `{"direction":"up"}`, anon)

	deadline := time.Now().Add(2 * time.Second)
	for decodeSnapshot(t, f.do(t, http.MethodGet, "/game", "", anon)).GameState != "over" {
		if time.Now().After(deadline) {
			t.Fatalf("run never ended")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// No polling for the write: Close alone must have flushed it.
	f.srv.Close()
	mine, err := runs.NewStore(f.db).Recent(context.Background(), anon.Value, 10)
	if err != nil || len(mine) != 1 {
		t.Fatalf("runs after Close = %+v, %v", mine, err)
	}
}

func TestDailyStartOncePerDay(t *testing.T) {
	f := newFixture(t)
	anon := cookieNamed(f.do(t, http.MethodGet, "/game", ""), "snake_anon")

	var res dailyStartRes
	rec := f.do(t, http.MethodPost, "/daily/start", "", anon)
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Played || res.Seed != daily.Seed(time.Now(), "salt") {
		t.Fatalf("first start = %+v", res)
	}
	if snap := decodeSnapshot(t, f.do(t, http.MethodGet, "/game", "", anon)); snap.GameState != "running" {
		t.Fatalf("daily run not started: %q", snap.GameState)
	}

	err := daily.NewStore(f.db).InsertResult(context.Background(), daily.Result{
		UserID: anon.Value, Date: res.Date, Seed: res.Seed, Score: 4,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	rec = f.do(t, http.MethodPost, "/daily/start", "", anon)
	res = dailyStartRes{}
	_ = json.NewDecoder(rec.Body).Decode(&res)
	if !res.Played {
		t.Fatalf("second start = %+v, want played", res)
	}

	var lb dailyLBRes
	_ = json.NewDecoder(f.do(t, http.MethodGet, "/daily/leaderboard", "").Body).Decode(&lb)
	if len(lb.Top) != 1 || lb.Top[0].Score != 4 {
		t.Fatalf("daily leaderboard = %+v", lb)
	}
}

func TestDailyStartDoesNotRestartAttempt(t *testing.T) {
	f := newFixture(t)
	anon := cookieNamed(f.do(t, http.MethodGet, "/game", ""), "snake_anon")

	var res dailyStartRes
	_ = json.NewDecoder(f.do(t, http.MethodPost, "/daily/start", "", anon).Body).Decode(&res)
	if res.Started || res.Seed == 0 {
		t.Fatalf("first start = %+v", res)
	}
	f.do(t, http.MethodPost, "/game/direction", `{"direction":"down"}`, anon)
	f.do(t, http.MethodPost, "/game/reset", "", anon)

	res = dailyStartRes{}
	_ = json.NewDecoder(f.do(t, http.MethodPost, "/daily/start", "", anon).Body).Decode(&res)
	if !res.Started || res.Played || res.Seed != 0 {
		t.Fatalf("second start = %+v, want started without a seed", res)
	}
	if snap := decodeSnapshot(t, f.do(t, http.MethodGet, "/game", "", anon)); snap.GameState != "init" {
		t.Fatalf("daily run restarted: %q", snap.GameState)
	}
}

func TestSignupClaimsGuestHighScore(t *testing.T) {
	f := newFixture(t)
	anon := cookieNamed(f.do(t, http.MethodGet, "/game", ""), "snake_anon")
	if err := f.settings.SetInt(context.Background(), anon.Value, game.HighScoreKey, 7); err != nil {
		t.Fatalf("seed high score: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/auth/signup", `{"username":"cobra","password":"hunter22!"}`, anon)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup = %d %q", rec.Code, rec.Body.String())
	}
	tok := cookieNamed(rec, "snake_token")
	if tok == nil {
		t.Fatalf("auth cookie not set")
	}
	if _, ok := f.srv.sessions.Lookup(anon.Value); ok {
		t.Fatalf("guest session survived sign-up")
	}

	var me struct {
		Owner     string `json:"owner"`
		HighScore int    `json:"highScore"`
	}
	_ = json.NewDecoder(f.do(t, http.MethodGet, "/scores/me", "", tok).Body).Decode(&me)
	if me.HighScore != 7 || me.Owner == anon.Value {
		t.Fatalf("scores/me = %+v", me)
	}
	if snap := decodeSnapshot(t, f.do(t, http.MethodGet, "/game", "", tok)); snap.HighScore != 7 {
		t.Fatalf("session high score = %d", snap.HighScore)
	}

	if rec := f.do(t, http.MethodGet, "/auth/me", "", tok); rec.Code != http.StatusOK {
		t.Fatalf("auth/me = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/runs/mine", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("runs/mine without token = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/auth/login", `{"username":"cobra","password":"nope-nope"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/auth/signup", `{"username":"COBRA","password":"hunter22!"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup = %d", rec.Code)
	}
}

func TestLoginRaisesLiveSessionHighScore(t *testing.T) {
	f := newFixture(t)
	tok := cookieNamed(f.do(t, http.MethodPost, "/auth/signup", `{"username":"adder","password":"hunter22!"}`), "snake_token")
	if tok == nil {
		t.Fatalf("auth cookie not set")
	}
	if snap := decodeSnapshot(t, f.do(t, http.MethodPost, "/game/start", "", tok)); snap.HighScore != 0 {
		t.Fatalf("account high score = %d", snap.HighScore)
	}

	anon := cookieNamed(f.do(t, http.MethodGet, "/game", ""), "snake_anon")
	if err := f.settings.SetInt(context.Background(), anon.Value, game.HighScoreKey, 10); err != nil {
		t.Fatalf("seed high score: %v", err)
	}
	if rec := f.do(t, http.MethodPost, "/auth/login", `{"username":"adder","password":"hunter22!"}`, anon); rec.Code != http.StatusOK {
		t.Fatalf("login = %d %q", rec.Code, rec.Body.String())
	}

	if snap := decodeSnapshot(t, f.do(t, http.MethodGet, "/game", "", tok)); snap.HighScore != 10 {
		t.Fatalf("live session high score = %d, want 10", snap.HighScore)
	}
	// Saving from the open game must not write the stale best back.
	f.do(t, http.MethodPost, "/game/highscore", "", tok)
	var me struct {
		HighScore int `json:"highScore"`
	}
	_ = json.NewDecoder(f.do(t, http.MethodGet, "/scores/me", "", tok).Body).Decode(&me)
	if me.HighScore != 10 {
		t.Fatalf("stored high score = %d, want 10", me.HighScore)
	}
}

func TestForgedGuestCookieCannotClaimAccount(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/auth/signup", `{"username":"victim","password":"hunter22!"}`)
	var victim struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&victim); err != nil || victim.ID == "" {
		t.Fatalf("signup body: %v", err)
	}
	rs := runs.NewStore(f.db)
	now := time.Now().UTC()
	if err := rs.Insert(context.Background(), &runs.Run{
		Owner: victim.ID, Mode: game.ModeClassic, Score: 9, StartedAt: now.Add(-time.Minute), FinishedAt: now,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	forged := &http.Cookie{Name: "snake_anon", Value: victim.ID}
	if rec := f.do(t, http.MethodPost, "/auth/signup", `{"username":"thief","password":"hunter22!"}`, forged); rec.Code != http.StatusCreated {
		t.Fatalf("thief signup = %d", rec.Code)
	}
	if mine, _ := rs.Recent(context.Background(), victim.ID, 10); len(mine) != 1 {
		t.Fatalf("victim runs = %+v, want untouched", mine)
	}

	fresh := cookieNamed(f.do(t, http.MethodGet, "/game", "", forged), "snake_anon")
	if fresh == nil || fresh.Value == victim.ID || !strings.HasPrefix(fresh.Value, "anon:") {
		t.Fatalf("forged cookie not replaced: %+v", fresh)
	}
}

func TestWithoutDatabase(t *testing.T) {
	srv := New(testConfig(), store.NewMemoryStore(), nil)
	t.Cleanup(srv.Close)
	f := &fixture{srv: srv}

	if rec := f.do(t, http.MethodPost, "/game/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/daily/start", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("daily without db = %d", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/game/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var issued bool
	for _, c := range resp.Cookies() {
		issued = issued || c.Name == "snake_anon"
	}
	if !issued {
		t.Fatalf("guest cookie not sent with upgrade")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first wsFrame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != "snapshot" || first.Snapshot == nil || first.Snapshot.GameState != "init" {
		t.Fatalf("first frame = %+v", first)
	}

	if err := conn.WriteJSON(command{Command: "start"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		var fr wsFrame
		if err := conn.ReadJSON(&fr); err != nil {
			t.Fatalf("read change: %v", err)
		}
		if fr.Type == "change" && fr.Property == game.PropGameState && fr.Value == "running" {
			break
		}
	}

	if err := conn.WriteJSON(command{Command: "fly"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		var fr wsFrame
		if err := conn.ReadJSON(&fr); err != nil {
			t.Fatalf("read error frame: %v", err)
		}
		if fr.Type == "error" {
			break
		}
	}
}

// apps/go-server/internal/game/engine.go
//
// Rules engine for a single Snake run.
// Responsibilities:
//   - Own all mutable game state (body, food, score, speed, pause flag).
//   - Apply UI commands (start, direction, pause, speed, reset, save).
//   - Advance the simulation one step per scheduler tick: eat, move, collide.
//   - Persist the high score through the Settings collaborator.
//   - Notify observers exactly when an observable property changes.
//
// Notes:
//   - The engine is not safe for concurrent use. Callers run every command and
//     every Tick on one logical thread (see internal/session).
//   - Illegal requests (reversal, out-of-range speed, wrong state) are silent
//     no-ops; nothing is returned, logged or raised.
package game

import (
	"time"

	"golang.org/x/exp/rand"
)

// maxFoodAttempts bounds rejection sampling before falling back to a scan.
const maxFoodAttempts = 10000

type observer struct {
	id int
	fn func(Property)
}

// Engine holds the state of one Snake game and applies its rules.
type Engine struct {
	settings Settings
	sched    Scheduler
	rng      Rand

	body      []Position // tail → head
	food      Rect
	state     State
	direction Direction
	score     int
	highScore int
	paused    bool
	speedMs   int

	observers []observer
	nextObsID int
}

// NewEngine constructs an engine in the Init state and loads the stored high
// score. A nil rng falls back to a time-seeded source.
func NewEngine(settings Settings, sched Scheduler, rng Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	e := &Engine{
		settings:  settings,
		sched:     sched,
		rng:       rng,
		state:     StateInit,
		direction: None,
		speedMs:   DefaultSpeedMs,
	}
	if settings != nil {
		e.highScore = settings.LoadInt(HighScoreKey, 0)
	}
	return e
}

// --------------------------------- getters ---------------------------------

func (e *Engine) Score() int           { return e.score }
func (e *Engine) HighScore() int       { return e.highScore }
func (e *Engine) State() State         { return e.state }
func (e *Engine) Food() Rect           { return e.food }
func (e *Engine) Paused() bool         { return e.paused }
func (e *Engine) GameSpeed() int       { return e.speedMs }
func (e *Engine) Direction() Direction { return e.direction }

// Body returns a copy of the snake, tail first.
func (e *Engine) Body() []Position {
	out := make([]Position, len(e.body))
	copy(out, e.body)
	return out
}

// Snapshot copies every observable.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Score:     e.score,
		GameState: e.state.String(),
		SnakeBody: e.Body(),
		Food:      e.food,
		Paused:    e.paused,
		GameSpeed: e.speedMs,
		HighScore: e.highScore,
		Direction: e.direction.String(),
	}
}

// Subscribe registers fn for change notifications and returns a func that
// removes it. fn runs synchronously inside the mutating call.
func (e *Engine) Subscribe(fn func(Property)) (cancel func()) {
	e.nextObsID++
	id := e.nextObsID
	e.observers = append(e.observers, observer{id: id, fn: fn})
	return func() {
		for i, o := range e.observers {
			if o.id == id {
				e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

// SetRand replaces the food placement source. Takes effect on the next
// placement; nil is ignored.
func (e *Engine) SetRand(r Rand) {
	if r != nil {
		e.rng = r
	}
}

// -------------------------------- commands ---------------------------------

// StartGame begins a fresh run: score 0, a three-segment snake, new food,
// and a running tick scheduler.
func (e *Engine) StartGame() {
	if e.state == StateExited {
		return
	}
	e.setScore(0)
	e.direction = None
	e.initBody()
	e.placeFood()
	e.setState(StateRunning)
	e.sched.Start(e.interval())
}

// ChangeDirection sets the heading for the next tick. Ignored unless the game
// is running, and ignored when d would reverse the snake onto itself.
func (e *Engine) ChangeDirection(d Direction) {
	if e.state != StateRunning || d < None || d > Down {
		return
	}
	if e.direction != None && d == e.direction.Opposite() {
		return
	}
	e.direction = d
}

// TogglePause flips the pause flag, stopping or resuming the scheduler.
func (e *Engine) TogglePause() {
	if e.state == StateExited {
		return
	}
	e.paused = !e.paused
	if e.paused {
		e.sched.Stop()
	} else {
		e.sched.Start(e.interval())
	}
	e.notify(PropPaused)
}

// SetGameSpeed changes the tick interval. Values equal to the current speed or
// outside [MinSpeedMs, MaxSpeedMs] are ignored. An active scheduler is
// restarted so the new interval applies immediately.
func (e *Engine) SetGameSpeed(ms int) {
	if ms == e.speedMs || ms < MinSpeedMs || ms > MaxSpeedMs {
		return
	}
	e.speedMs = ms
	if e.sched.Active() {
		e.sched.Start(e.interval())
	}
	e.notify(PropGameSpeed)
}

// ResetGame stops ticking and returns to the Init state with an empty snake.
func (e *Engine) ResetGame() {
	if e.state == StateExited {
		return
	}
	e.sched.Stop()
	e.direction = None
	e.setState(StateInit)
	if len(e.body) > 0 {
		e.body = nil
		e.notify(PropSnakeBody)
	}
}

// SaveHighScore persists the current score if it beats the best known score.
// The stored value is re-read first, so a best written elsewhere (another
// device, an account merge) is never overwritten by a lower one.
func (e *Engine) SaveHighScore() {
	e.ReloadHighScore()
	if e.score <= e.highScore {
		return
	}
	e.highScore = e.score
	if e.settings != nil {
		e.settings.StoreInt(HighScoreKey, e.highScore)
	}
	e.notify(PropHighScore)
}

// ReloadHighScore raises the cached high score to the stored one when the
// store holds a larger value. It never lowers it.
func (e *Engine) ReloadHighScore() {
	if e.settings == nil {
		return
	}
	if stored := e.settings.LoadInt(HighScoreKey, 0); stored > e.highScore {
		e.highScore = stored
		e.notify(PropHighScore)
	}
}

// Exit moves the engine to its terminal state. Used on process shutdown.
func (e *Engine) Exit() {
	if e.state == StateExited {
		return
	}
	e.sched.Stop()
	e.setState(StateExited)
}

// ---------------------------------- tick -----------------------------------

// Tick advances the game by one step. It does nothing unless the game is
// running and not paused.
//
// Order of evaluation:
//  0. With no direction the snake is stationary and nothing is evaluated.
//     Food is never placed under the body, so skipping step 1 here cannot
//     miss a meal: food only reaches a head that moved onto it.
//  1. Food under the current head is eaten (score +1, growth this tick).
//  2. The candidate head is one step ahead.
//  3. A candidate outside the board or on the body ends the run.
//  4. Food under the candidate head is eaten; the tail is dropped unless the
//     snake grows, then the candidate is appended (net growth is one segment).
//  5. Eaten food respawns on a free cell.
func (e *Engine) Tick() {
	if e.state != StateRunning || e.paused || len(e.body) == 0 {
		return
	}
	if e.direction == None {
		return
	}
	head := e.body[len(e.body)-1]

	grow := false
	if e.food.Contains(head) {
		grow = true
		e.setScore(e.score + 1)
	}

	dx, dy := e.direction.Delta()
	next := head.Add(dx, dy)
	if !next.InBounds() || e.occupied(next) {
		e.gameOver()
		return
	}

	if !grow && e.food.Contains(next) {
		grow = true
		e.setScore(e.score + 1)
	}
	if !grow {
		e.body = e.body[1:]
	}
	e.body = append(e.body, next)
	e.notify(PropSnakeBody)

	if grow {
		e.placeFood()
	}
}

// -------------------------------- internals --------------------------------

func (e *Engine) gameOver() {
	e.setState(StateOver)
	e.SaveHighScore()
	e.sched.Stop()
}

// initBody lays the snake out horizontally on row Step, tail at x=Step and
// head at x=InitialSize*Step.
func (e *Engine) initBody() {
	body := make([]Position, 0, InitialSize)
	for i := 0; i < InitialSize; i++ {
		body = append(body, Position{X: Step * (i + 1), Y: Step})
	}
	same := len(body) == len(e.body)
	for i := 0; same && i < len(body); i++ {
		same = body[i] == e.body[i]
	}
	e.body = body
	if !same {
		e.notify(PropSnakeBody)
	}
}

// placeFood samples grid indices 1..foodGridCells until the food square
// covers no body segment.
func (e *Engine) placeFood() {
	for i := 0; i < maxFoodAttempts; i++ {
		x := (e.rng.Intn(foodGridCells) + 1) * Step
		y := (e.rng.Intn(foodGridCells) + 1) * Step
		if f := foodAt(x, y); e.foodFree(f) {
			e.setFood(f)
			return
		}
	}
	// Board nearly full: take the first free cell in scan order.
	for gy := 1; gy <= foodGridCells; gy++ {
		for gx := 1; gx <= foodGridCells; gx++ {
			if f := foodAt(gx*Step, gy*Step); e.foodFree(f) {
				e.setFood(f)
				return
			}
		}
	}
	e.setFood(Rect{})
}

func (e *Engine) foodFree(f Rect) bool {
	for _, p := range e.body {
		if f.Contains(p) {
			return false
		}
	}
	return true
}

func (e *Engine) occupied(p Position) bool {
	for _, b := range e.body {
		if b == p {
			return true
		}
	}
	return false
}

func (e *Engine) interval() time.Duration {
	return time.Duration(e.speedMs) * time.Millisecond
}

func (e *Engine) setScore(v int) {
	if v == e.score {
		return
	}
	e.score = v
	e.notify(PropScore)
}

func (e *Engine) setState(s State) {
	if s == e.state {
		return
	}
	e.state = s
	e.notify(PropGameState)
}

func (e *Engine) setFood(f Rect) {
	if f == e.food {
		return
	}
	e.food = f
	e.notify(PropFood)
}

func (e *Engine) notify(p Property) {
	for _, o := range e.observers {
		o.fn(p)
	}
}

// apps/go-server/internal/game/types.go
//
// Core type definitions for the Snake rules engine.
// Defines:
//   - Position / Rect: grid coordinates and the food square.
//   - Direction: movement heading (with opposite + delta helpers).
//   - State: lifecycle of a run (init → running → over, exit on shutdown).
//   - Property: names of the observable fields, used in change notifications.
//   - Snapshot: immutable copy of every observable for the UI layer.

package game

import "time"

const (
	Step        = 10  // grid step in board units
	InitialSize = 3   // segments in a freshly started snake
	BoardSize   = 400 // play area is [0, BoardSize) on both axes
	FoodSize    = 10  // side of the food square

	MinSpeedMs     = 50
	MaxSpeedMs     = 300
	DefaultSpeedMs = 150

	// Food is sampled on grid indices 1..foodGridCells (index 0 excluded).
	foodGridCells = 39

	HighScoreKey = "highScore"
)

// Run modes. A daily run draws its food from the day's seed.
const (
	ModeClassic = "classic"
	ModeDaily   = "daily"
)

// Position is a grid-aligned point on the board.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add offsets p by (dx, dy).
func (p Position) Add(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// InBounds reports whether p lies inside [0, BoardSize) on both axes.
func (p Position) InBounds() bool {
	return p.X >= 0 && p.X < BoardSize && p.Y >= 0 && p.Y < BoardSize
}

// Rect is an axis-aligned rectangle; used for the food region.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Contains reports whether p lies inside r, edges included
// (x in [X, X+W-1], y in [Y, Y+H-1]).
func (r Rect) Contains(p Position) bool {
	if r.W <= 0 || r.H <= 0 {
		return false
	}
	return p.X >= r.X && p.X <= r.X+r.W-1 && p.Y >= r.Y && p.Y <= r.Y+r.H-1
}

// Center returns the grid point the rect was built around.
func (r Rect) Center() Position {
	return Position{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// foodAt builds the food square centred on (x, y).
func foodAt(x, y int) Rect {
	return Rect{X: x - FoodSize/2, Y: y - FoodSize/2, W: FoodSize, H: FoodSize}
}

// Direction is the snake's heading. None means "not moving yet".
type Direction int

const (
	None Direction = iota
	Left
	Right
	Up
	Down
)

// String returns the lowercase wire name of d.
func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "none"
	}
}

// ParseDirection maps a wire name to a Direction; unknown names map to None
// with ok=false.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "left":
		return Left, true
	case "right":
		return Right, true
	case "up":
		return Up, true
	case "down":
		return Down, true
	case "none":
		return None, true
	}
	return None, false
}

// Opposite returns the reverse heading; None is its own opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case Left:
		return Right
	case Right:
		return Left
	case Up:
		return Down
	case Down:
		return Up
	default:
		return None
	}
}

// Delta returns the one-step offset for d in board units.
// Up decreases Y (screen coordinates).
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Left:
		return -Step, 0
	case Right:
		return Step, 0
	case Up:
		return 0, -Step
	case Down:
		return 0, Step
	default:
		return 0, 0
	}
}

// State is the lifecycle of the engine.
type State int

const (
	StateInit State = iota
	StateRunning
	StateOver
	StateExited
)

// String returns the UI-facing name ("init", "running", "over", "exit").
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateOver:
		return "over"
	case StateExited:
		return "exit"
	default:
		return "init"
	}
}

// Property names one observable field of the engine.
type Property string

const (
	PropScore     Property = "score"
	PropGameState Property = "gameState"
	PropSnakeBody Property = "snakeBody"
	PropFood      Property = "food"
	PropPaused    Property = "paused"
	PropGameSpeed Property = "gameSpeed"
	PropHighScore Property = "highScore"
)

// Properties lists every observable in a stable order.
var Properties = []Property{
	PropScore, PropGameState, PropSnakeBody, PropFood, PropPaused, PropGameSpeed, PropHighScore,
}

// Snapshot is a point-in-time copy of the engine's observable state.
type Snapshot struct {
	Score     int        `json:"score"`
	GameState string     `json:"gameState"`
	SnakeBody []Position `json:"snakeBody"`
	Food      Rect       `json:"food"`
	Paused    bool       `json:"paused"`
	GameSpeed int        `json:"gameSpeed"`
	HighScore int        `json:"highScore"`
	Direction string     `json:"direction"`
}

// InitialSnapshot is what a newly constructed engine with the given stored
// high score reports.
func InitialSnapshot(highScore int) Snapshot {
	return Snapshot{
		GameState: StateInit.String(),
		SnakeBody: []Position{},
		GameSpeed: DefaultSpeedMs,
		HighScore: highScore,
		Direction: None.String(),
	}
}

// Value returns the snapshot field named by p.
func (s Snapshot) Value(p Property) any {
	switch p {
	case PropScore:
		return s.Score
	case PropGameState:
		return s.GameState
	case PropSnakeBody:
		return s.SnakeBody
	case PropFood:
		return s.Food
	case PropPaused:
		return s.Paused
	case PropGameSpeed:
		return s.GameSpeed
	case PropHighScore:
		return s.HighScore
	}
	return nil
}

// Settings is the key-value store the engine persists its high score in.
type Settings interface {
	LoadInt(key string, def int) int
	StoreInt(key string, value int)
}

// Scheduler drives Engine.Tick at a fixed interval. Implementations must
// never invoke Tick concurrently with another engine call.
type Scheduler interface {
	Start(interval time.Duration)
	Stop()
	Active() bool
}

// Rand is the random source used for food placement.
// *rand.Rand from golang.org/x/exp/rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// apps/go-server/internal/session/session.go
//
// Single-threaded host for one game engine.
// Responsibilities:
//   - Run one goroutine per session that owns the engine and its tick timer.
//     Commands (Do) and ticks are serialized through a select loop, so the
//     engine is never entered concurrently and a tick never overlaps a command.
//   - Implement game.Scheduler with a time.Ticker owned by that goroutine.
//   - Fan out property-change events to subscribers (non-blocking; slow
//     subscribers drop events).
//   - Report finished runs (state → over) through the OnFinish hook.
//   - Record the time of the last command so idle sessions can be evicted.

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/rand"

	"github.com/robalobadob/snake/apps/go-server/internal/game"
)

var ErrClosed = errors.New("session closed")

const inboxSize = 64

// Event is one property change, carrying the property's new value.
type Event struct {
	Property game.Property `json:"property"`
	Value    any           `json:"value"`
}

// Result describes a run that reached the "over" state.
type Result struct {
	Owner      string
	Mode       string
	Seed       uint64
	Score      int
	StartedAt  time.Time
	FinishedAt time.Time
}

type Options struct {
	Owner    string
	Settings game.Settings
	Rand     game.Rand // nil → time-seeded source
	// OnFinish runs on the session goroutine; it must not block or call back
	// into the session.
	OnFinish func(r Result)
	Now      func() time.Time // clock for run timestamps and activity; nil → time.Now
}

// Session owns one engine and the goroutine that drives it.
type Session struct {
	owner    string
	engine   *game.Engine
	onFinish func(Result)
	now      func() time.Time

	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	lastActive atomic.Int64 // unix nanos of the last Do

	// Owned by the run goroutine.
	ticker    *time.Ticker
	mode      string
	seed      uint64
	startedAt time.Time

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates a session and starts its goroutine.
func New(opts Options) *Session {
	s := &Session{
		owner:    opts.Owner,
		onFinish: opts.OnFinish,
		now:      opts.Now,
		inbox:    make(chan func(), inboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		mode:     game.ModeClassic,
		subs:     make(map[int]chan Event),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.touch()
	s.engine = game.NewEngine(opts.Settings, s, opts.Rand)
	s.engine.Subscribe(s.onChange)
	go s.run()
	return s
}

// Owner returns the id the session belongs to.
func (s *Session) Owner() string { return s.owner }

func (s *Session) run() {
	defer close(s.done)
	for {
		var tick <-chan time.Time
		if s.ticker != nil {
			tick = s.ticker.C
		}
		select {
		case <-s.quit:
			s.engine.Exit()
			s.Stop()
			return
		case fn := <-s.inbox:
			fn()
		case <-tick:
			s.engine.Tick()
		}
	}
}

// ------------------------------ game.Scheduler -----------------------------
// Called by the engine, hence only from the run goroutine.

var _ game.Scheduler = (*Session)(nil)

func (s *Session) Start(interval time.Duration) {
	if s.ticker == nil {
		s.ticker = time.NewTicker(interval)
		return
	}
	s.ticker.Reset(interval)
	// Drop a tick buffered at the old interval.
	select {
	case <-s.ticker.C:
	default:
	}
}

func (s *Session) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Session) Active() bool { return s.ticker != nil }

// --------------------------------- commands --------------------------------

// Do runs fn against the engine on the session goroutine and waits for it.
func (s *Session) Do(ctx context.Context, fn func(e *game.Engine)) error {
	s.touch()
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn(s.engine)
	}
	select {
	case s.inbox <- job:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the engine's current observable state.
func (s *Session) Snapshot(ctx context.Context) (game.Snapshot, error) {
	var snap game.Snapshot
	err := s.Do(ctx, func(e *game.Engine) { snap = e.Snapshot() })
	return snap, err
}

// StartClassic starts a run with a fresh random food sequence.
func (s *Session) StartClassic(ctx context.Context) error {
	return s.Do(ctx, func(e *game.Engine) {
		s.mode, s.seed = game.ModeClassic, 0
		e.SetRand(rand.New(rand.NewSource(uint64(s.now().UnixNano()))))
		e.StartGame()
	})
}

// StartDaily starts a run whose food sequence is fixed by seed.
func (s *Session) StartDaily(ctx context.Context, seed uint64) error {
	return s.Do(ctx, func(e *game.Engine) {
		s.mode, s.seed = game.ModeDaily, seed
		e.SetRand(rand.New(rand.NewSource(seed)))
		e.StartGame()
	})
}

// Close exits the engine, stops the goroutine and closes every subscriber
// channel. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// ------------------------------- notifications -----------------------------

// Subscribe returns a channel of property changes. buf bounds how many events
// may queue before new ones are dropped. The channel is closed by cancel or
// by Close.
func (s *Session) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	s.subMu.Lock()
	select {
	case <-s.done:
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

// onChange runs on the session goroutine inside the engine call.
func (s *Session) onChange(p game.Property) {
	if p == game.PropGameState {
		switch s.engine.State() {
		case game.StateRunning:
			s.startedAt = s.now()
		case game.StateOver:
			s.finish()
		}
	}

	ev := Event{Property: p, Value: s.engine.Snapshot().Value(p)}
	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.subMu.Unlock()
}

func (s *Session) finish() {
	if s.onFinish == nil {
		return
	}
	r := Result{
		Owner:      s.owner,
		Mode:       s.mode,
		Seed:       s.seed,
		Score:      s.engine.Score(),
		StartedAt:  s.startedAt,
		FinishedAt: s.now(),
	}
	s.onFinish(r)
}

func (s *Session) touch() { s.lastActive.Store(s.now().UnixNano()) }

// LastActive returns when the session last received a command.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Watched reports whether anyone is subscribed to the session's events.
func (s *Session) Watched() bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs) > 0
}

// apps/go-server/internal/runs/runs.go
//
// Finished-run history and the all-time leaderboard.
// A Run is recorded once per game that reaches the "over" state.

package runs

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/snake/apps/go-server/internal/game"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one completed game.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Owner      string    `json:"owner"`
	Mode       string    `json:"mode"`
	Score      int       `json:"score"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Elapsed is the wall-clock length of the run.
func (r Run) Elapsed() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// LBRow is one leaderboard entry: the best score of an owner.
// Owner ids are not published; guests have an empty Name.
type LBRow struct {
	Owner string `json:"-"`
	Name  string `json:"name"`
	Best  int    `json:"best"`
	Runs  int    `json:"runs"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Insert stores r, assigning an ID when r.ID is zero.
func (s *Store) Insert(ctx context.Context, r *Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Mode == "" {
		r.Mode = game.ModeClassic
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO runs (id, owner, mode, score, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Owner, r.Mode, r.Score,
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
	)
	return err
}

// Recent returns the owner's latest runs, newest first.
func (s *Store) Recent(ctx context.Context, owner string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, owner, mode, score, started_at, finished_at
        FROM runs WHERE owner=?
        ORDER BY finished_at DESC
        LIMIT ?`, owner, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var r Run
		var id, started, finished string
		if err := rows.Scan(&id, &r.Owner, &r.Mode, &r.Score, &started, &finished); err != nil {
			return nil, err
		}
		r.ID, _ = uuid.Parse(id)
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Leaderboard returns the best score per owner, highest first. Equal bests
// are ordered by who reached that score first. Registered owners carry their
// username.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT b.owner, COALESCE(u.username, ''), b.best, b.runs
        FROM (SELECT owner, MAX(score) AS best, COUNT(1) AS runs
              FROM runs GROUP BY owner) b
        LEFT JOIN users u ON u.id = b.owner
        ORDER BY b.best DESC,
                 (SELECT MIN(r.finished_at) FROM runs r
                  WHERE r.owner = b.owner AND r.score = b.best) ASC
        LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LBRow, 0, limit)
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.Owner, &r.Name, &r.Best, &r.Runs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reassign moves every run of from to to. Used when a guest signs in.
func (s *Store) Reassign(ctx context.Context, from, to string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET owner=? WHERE owner=?`, to, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

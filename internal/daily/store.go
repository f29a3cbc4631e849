package daily

import (
	"context"
	"database/sql"
)

type Result struct {
	UserID    string `json:"userId"`
	Date      string `json:"date"`
	Seed      uint64 `json:"seed"`
	Score     int    `json:"score"`
	ElapsedMs int    `json:"elapsedMs"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) AlreadyPlayed(ctx context.Context, userID, date string) (bool, error) {
	var cnt int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM daily_results WHERE user_id=? AND date=?",
		userID, date,
	).Scan(&cnt)
	return cnt > 0, err
}

// MarkStarted records that userID began the run for date. It reports false
// when a start was already recorded.
func (s *Store) MarkStarted(ctx context.Context, userID, date string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_starts(user_id, date) VALUES(?,?)`, userID, date)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// InsertResult records a daily result; a second result for the same user and
// date is ignored.
func (s *Store) InsertResult(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_results(user_id, date, seed, score, elapsed_ms)
         VALUES(?,?,?,?,?)`, r.UserID, r.Date, int64(r.Seed), r.Score, r.ElapsedMs,
	)
	return err
}

// LBRow is one daily leaderboard entry. Owner ids are not published; guests
// have an empty Name.
type LBRow struct {
	UserID    string `json:"-"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	ElapsedMs int    `json:"elapsedMs"`
}

// Leaderboard ranks a date's results by score, then by the longest survival.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.user_id, COALESCE(u.username, ''), d.score, d.elapsed_ms
         FROM daily_results d LEFT JOIN users u ON u.id = d.user_id
         WHERE d.date=?
         ORDER BY d.score DESC, d.elapsed_ms DESC, d.created_at ASC
         LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LBRow{}
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.UserID, &r.Name, &r.Score, &r.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reassign moves a guest's daily results and starts to a user. Days the user
// already played keep the user's own rows.
func (s *Store) Reassign(ctx context.Context, from, to string) error {
	for _, table := range []string{"daily_results", "daily_starts"} {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE OR IGNORE `+table+` SET user_id=? WHERE user_id=?`, to, from); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id=?`, from); err != nil {
			return err
		}
	}
	return nil
}

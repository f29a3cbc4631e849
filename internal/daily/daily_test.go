package daily

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalobadob/snake/apps/go-server/internal/database"
)

func TestSeedIsStablePerDay(t *testing.T) {
	morning := time.Date(2026, 10, 15, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 10, 15, 23, 0, 0, 0, time.UTC)
	tomorrow := morning.Add(24 * time.Hour)

	if Seed(morning, "salt") != Seed(evening, "salt") {
		t.Fatalf("seed changed within a day")
	}
	if Seed(morning, "salt") == Seed(tomorrow, "salt") {
		t.Fatalf("seed did not change across days")
	}
	if Seed(morning, "salt") == Seed(morning, "pepper") {
		t.Fatalf("seed ignores salt")
	}
	if DateKey(evening) != "2026-10-15" {
		t.Fatalf("DateKey = %q", DateKey(evening))
	}
}

func TestStoreOneResultPerDay(t *testing.T) {
	db, err := database.OpenMigrated(filepath.Join(t.TempDir(), "snake.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	s := NewStore(db)
	ctx := context.Background()
	date := "2026-10-15"

	played, err := s.AlreadyPlayed(ctx, "u1", date)
	if err != nil || played {
		t.Fatalf("AlreadyPlayed before insert = %v, %v", played, err)
	}

	seed := Seed(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), "salt")
	if err := s.InsertResult(ctx, Result{UserID: "u1", Date: date, Seed: seed, Score: 5, ElapsedMs: 9000}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertResult(ctx, Result{UserID: "u1", Date: date, Seed: seed, Score: 50, ElapsedMs: 1}); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if err := s.InsertResult(ctx, Result{UserID: "u2", Date: date, Seed: seed, Score: 8, ElapsedMs: 4000}); err != nil {
		t.Fatalf("insert u2: %v", err)
	}

	played, err = s.AlreadyPlayed(ctx, "u1", date)
	if err != nil || !played {
		t.Fatalf("AlreadyPlayed after insert = %v, %v", played, err)
	}

	lb, err := s.Leaderboard(ctx, date, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb) != 2 || lb[0].UserID != "u2" || lb[1].Score != 5 {
		t.Fatalf("leaderboard = %+v", lb)
	}
}

func TestReassignKeepsUsersOwnDay(t *testing.T) {
	db, err := database.OpenMigrated(filepath.Join(t.TempDir(), "snake.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	s := NewStore(db)
	ctx := context.Background()

	_ = s.InsertResult(ctx, Result{UserID: "guest", Date: "2026-10-14", Score: 3})
	_ = s.InsertResult(ctx, Result{UserID: "guest", Date: "2026-10-15", Score: 9})
	_ = s.InsertResult(ctx, Result{UserID: "user", Date: "2026-10-15", Score: 4})

	if err := s.Reassign(ctx, "guest", "user"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if played, _ := s.AlreadyPlayed(ctx, "guest", "2026-10-14"); played {
		t.Fatalf("guest result left behind")
	}
	if played, _ := s.AlreadyPlayed(ctx, "user", "2026-10-14"); !played {
		t.Fatalf("guest day not moved")
	}
	lb, _ := s.Leaderboard(ctx, "2026-10-15", 10)
	if len(lb) != 1 || lb[0].UserID != "user" || lb[0].Score != 4 {
		t.Fatalf("leaderboard = %+v", lb)
	}
}

func TestMarkStartedOncePerDay(t *testing.T) {
	db, err := database.OpenMigrated(filepath.Join(t.TempDir(), "snake.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	s := NewStore(db)
	ctx := context.Background()

	first, err := s.MarkStarted(ctx, "u1", "2026-10-15")
	if err != nil || !first {
		t.Fatalf("first start = %v, %v", first, err)
	}
	again, err := s.MarkStarted(ctx, "u1", "2026-10-15")
	if err != nil || again {
		t.Fatalf("second start = %v, %v", again, err)
	}
	if next, _ := s.MarkStarted(ctx, "u1", "2026-10-16"); !next {
		t.Fatalf("next day refused")
	}
}

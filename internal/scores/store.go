// apps/go-server/internal/scores/store.go
//
// SQLite-backed score store. Insert-only from the game's point of view: a
// finished game hands over one ScoreRecord and never touches it again. Top
// serves the high-score table on the menu page.

package scores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/treliann/simon/apps/go-server/internal/game"
)

// ErrZeroScore is returned when a caller tries to persist a scoreless game.
var ErrZeroScore = errors.New("zero score is never persisted")

// DefaultTopLimit matches the size of the high-score table on the menu page.
const DefaultTopLimit = 10

// Store persists finished-game results.
type Store struct{ db *sql.DB }

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Insert writes one score row. The record's timestamp is stored as RFC3339.
func (s *Store) Insert(ctx context.Context, r game.ScoreRecord) error {
	if r.Score <= 0 {
		return ErrZeroScore
	}
	name := r.PlayerName
	if name == "" {
		name = "Anonymous"
	}
	when := r.When
	if when.IsZero() {
		when = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scores(id, player_name, score, difficulty, created_at)
		 VALUES(?,?,?,?,?)`,
		uuid.NewString(), name, r.Score, r.Difficulty.String(), when.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// Row is one high-score table entry.
type Row struct {
	PlayerName string `json:"playerName"`
	Score      int    `json:"score"`
	Difficulty string `json:"difficulty"`
	CreatedAt  string `json:"createdAt"`
}

// Top fetches the best scores, highest first; ties go to the earlier game.
func (s *Store) Top(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_name, score, difficulty, created_at
		 FROM scores
		 ORDER BY score DESC, created_at ASC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Row, 0, limit)
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.PlayerName, &r.Score, &r.Difficulty, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

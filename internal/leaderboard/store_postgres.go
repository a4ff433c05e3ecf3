package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/trivia/internal/domain"
)

var leaderboardColumns = []string{"position", "name", "score", "topic", "played_at", "questions_answered", "game_length"}

// PostgresStore keeps the leaderboard in the leaderboard table. The schema is
// created by the migrate command.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ReadAll(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	const stmt = `
SELECT name, score, topic, played_at, questions_answered, game_length
FROM leaderboard
ORDER BY position;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var e domain.LeaderboardEntry
		err := r.Scan(&e.Name, &e.Score, &e.Topic, &e.PlayedAt, &e.QuestionsAnswered, &e.GameLength)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan: %w", err)
	}

	return entries, nil
}

// ReplaceAll deletes every row and copies the new snapshot in one transaction.
func (s *PostgresStore) ReplaceAll(ctx context.Context, entries []domain.LeaderboardEntry) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM leaderboard;`); err != nil {
		return fmt.Errorf("postgres store: clear: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"leaderboard"}, leaderboardColumns,
		pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
			e := entries[i]
			return []any{i, e.Name, e.Score, e.Topic, e.PlayedAt, e.QuestionsAnswered, e.GameLength}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("postgres store: copy: %w", err)
	}

	return tx.Commit(ctx)
}

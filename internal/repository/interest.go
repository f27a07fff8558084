package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type interestRepository struct {
	db *pgxpool.Pool
}

// NewInterestRepository creates a new interest repository
func NewInterestRepository(db *pgxpool.Pool) InterestRepository {
	return &interestRepository{db: db}
}

func (r *interestRepository) Mark(ctx context.Context, userID, eventID string, at time.Time) (bool, error) {
	query := `
		INSERT INTO interests (user_id, event_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, event_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, userID, eventID, at)
	if err != nil {
		return false, wrap(err, "failed to mark interest")
	}
	return result.RowsAffected() == 1, nil
}

func (r *interestRepository) Unmark(ctx context.Context, userID, eventID string) (bool, error) {
	query := `DELETE FROM interests WHERE user_id = $1 AND event_id = $2`
	result, err := r.db.Exec(ctx, query, userID, eventID)
	if err != nil {
		return false, wrap(err, "failed to unmark interest")
	}
	return result.RowsAffected() > 0, nil
}

func (r *interestRepository) Exists(ctx context.Context, userID, eventID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM interests WHERE user_id = $1 AND event_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, eventID).Scan(&exists); err != nil {
		return false, wrap(err, "failed to check interest")
	}
	return exists, nil
}

func (r *interestRepository) UsersForEvent(ctx context.Context, eventID string) ([]string, error) {
	query := `
		SELECT user_id
		FROM interests
		WHERE event_id = $1
		ORDER BY created_at, user_id
	`
	rows, err := r.db.Query(ctx, query, eventID)
	if err != nil {
		return nil, wrap(err, "failed to list interested users")
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, wrap(err, "failed to scan interested user")
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "error iterating interested users")
	}
	return users, nil
}

func (r *interestRepository) EventsWithInterest(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT event_id FROM interests ORDER BY event_id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, wrap(err, "failed to list events with interest")
	}
	defer rows.Close()

	var events []string
	for rows.Next() {
		var eventID string
		if err := rows.Scan(&eventID); err != nil {
			return nil, wrap(err, "failed to scan event id")
		}
		events = append(events, eventID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "error iterating events with interest")
	}
	return events, nil
}

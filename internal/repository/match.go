package repository

import (
	"context"
	"time"

	"dance-match-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const matchColumns = `id, user_id1, user_id2, event_id, status, match_strength, created_at, last_interaction, is_mutual`

type matchRepository struct {
	db *pgxpool.Pool
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *pgxpool.Pool) MatchRepository {
	return &matchRepository{db: db}
}

func scanMatch(row pgx.Row) (*models.Match, error) {
	var m models.Match
	err := row.Scan(
		&m.ID, &m.UserID1, &m.UserID2, &m.EventID, &m.Status,
		&m.MatchStrength, &m.CreatedAt, &m.LastInteraction, &m.IsMutual,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMatches(rows pgx.Rows) ([]*models.Match, error) {
	defer rows.Close()
	var matches []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CreateIfMutual locks both interest marks before inserting, so a concurrent
// unmark either commits first and the insert is skipped, or waits until the
// match is visible to its demotion.
func (r *matchRepository) CreateIfMutual(ctx context.Context, m *models.Match) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	lockQuery := `
		SELECT user_id
		FROM interests
		WHERE event_id = $1 AND user_id IN ($2, $3)
		FOR SHARE
	`
	rows, err := tx.Query(ctx, lockQuery, m.EventID, m.UserID1, m.UserID2)
	if err != nil {
		return false, wrap(err, "failed to lock interests")
	}
	marks := 0
	for rows.Next() {
		marks++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, wrap(err, "failed to lock interests")
	}
	if marks != 2 {
		return false, nil
	}

	insertQuery := `
		INSERT INTO matches (` + matchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)
		ON CONFLICT DO NOTHING
	`
	result, err := tx.Exec(ctx, insertQuery,
		m.ID, m.UserID1, m.UserID2, m.EventID, m.Status,
		m.MatchStrength, m.CreatedAt, m.LastInteraction,
	)
	if err != nil {
		return false, wrap(err, "failed to create match")
	}
	if err := tx.Commit(ctx); err != nil {
		return false, wrap(err, "failed to commit match")
	}
	return result.RowsAffected() == 1, nil
}

func (r *matchRepository) GetByID(ctx context.Context, id string) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrap(err, "failed to get match")
	}
	return m, nil
}

func (r *matchRepository) RefreshMutual(ctx context.Context, id string, at time.Time) (*models.Match, error) {
	query := `
		UPDATE matches m
		SET is_mutual = EXISTS (SELECT 1 FROM interests i WHERE i.user_id = m.user_id1 AND i.event_id = m.event_id)
		            AND EXISTS (SELECT 1 FROM interests i WHERE i.user_id = m.user_id2 AND i.event_id = m.event_id),
		    last_interaction = $2
		WHERE m.id = $1
		RETURNING ` + matchColumns
	m, err := scanMatch(r.db.QueryRow(ctx, query, id, at))
	if err != nil {
		return nil, wrap(err, "failed to refresh match")
	}
	return m, nil
}

func (r *matchRepository) CompareAndSetStatus(ctx context.Context, id string, from, to models.MatchStatus, at time.Time) (bool, error) {
	query := `
		UPDATE matches
		SET status = $3, last_interaction = $4
		WHERE id = $1 AND status = $2
	`
	result, err := r.db.Exec(ctx, query, id, from, to, at)
	if err != nil {
		return false, wrap(err, "failed to update match status")
	}
	return result.RowsAffected() == 1, nil
}

func (r *matchRepository) ListByUser(ctx context.Context, userID string) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE user_id1 = $1 OR user_id2 = $1
		ORDER BY created_at DESC, id
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, wrap(err, "failed to list matches")
	}
	matches, err := collectMatches(rows)
	if err != nil {
		return nil, wrap(err, "failed to scan matches")
	}
	return matches, nil
}

func (r *matchRepository) ListByEvent(ctx context.Context, eventID string) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE event_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, eventID)
	if err != nil {
		return nil, wrap(err, "failed to list event matches")
	}
	matches, err := collectMatches(rows)
	if err != nil {
		return nil, wrap(err, "failed to scan event matches")
	}
	return matches, nil
}

func (r *matchRepository) ListMutual(ctx context.Context) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE is_mutual AND status NOT IN ('declined', 'expired')
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, wrap(err, "failed to list mutual matches")
	}
	matches, err := collectMatches(rows)
	if err != nil {
		return nil, wrap(err, "failed to scan mutual matches")
	}
	return matches, nil
}

func (r *matchRepository) ExpireStale(ctx context.Context, before time.Time) ([]*models.Match, error) {
	query := `
		UPDATE matches
		SET status = 'expired'
		WHERE status = 'pending' AND NOT is_mutual AND last_interaction < $1
		RETURNING ` + matchColumns
	rows, err := r.db.Query(ctx, query, before)
	if err != nil {
		return nil, wrap(err, "failed to expire matches")
	}
	matches, err := collectMatches(rows)
	if err != nil {
		return nil, wrap(err, "failed to scan expired matches")
	}
	return matches, nil
}

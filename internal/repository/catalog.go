package repository

import (
	"context"

	"dance-match-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Both tables are filled by the profile service and the catalog ingestion
// pipeline; this service only reads them.

type profileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository creates a read-only profile lookup
func NewProfileRepository(db *pgxpool.Pool) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT user_id, display_name, dance_styles, level, city
		FROM profiles
		WHERE user_id = $1
	`
	var p models.Profile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.DisplayName, &p.DanceStyles, &p.Level, &p.City,
	)
	if err != nil {
		return nil, wrap(err, "failed to get profile")
	}
	return &p, nil
}

type eventCatalog struct {
	db *pgxpool.Pool
}

// NewEventCatalog creates a read-only event catalog lookup
func NewEventCatalog(db *pgxpool.Pool) EventCatalog {
	return &eventCatalog{db: db}
}

func (c *eventCatalog) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	query := `
		SELECT id, title, organizer_ids, starts_at
		FROM events
		WHERE id = $1
	`
	var e models.Event
	err := c.db.QueryRow(ctx, query, eventID).Scan(&e.ID, &e.Title, &e.OrganizerIDs, &e.StartsAt)
	if err != nil {
		return nil, wrap(err, "failed to get event")
	}
	return &e, nil
}

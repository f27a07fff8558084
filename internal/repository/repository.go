package repository

import (
	"context"
	"time"

	"dance-match-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InterestRepository persists one-directional interest marks
type InterestRepository interface {
	// Mark stores the mark and reports whether it was newly created
	Mark(ctx context.Context, userID, eventID string, at time.Time) (bool, error)
	// Unmark deletes the mark and reports whether one existed
	Unmark(ctx context.Context, userID, eventID string) (bool, error)
	Exists(ctx context.Context, userID, eventID string) (bool, error)
	UsersForEvent(ctx context.Context, eventID string) ([]string, error)
	// EventsWithInterest lists every event holding at least one mark
	EventsWithInterest(ctx context.Context) ([]string, error)
}

// MatchRepository persists matches keyed by canonical pair and event
type MatchRepository interface {
	// CreateIfMutual inserts the match only when both interest marks exist
	// and no match is stored for the pair and event yet.
	CreateIfMutual(ctx context.Context, match *models.Match) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Match, error)
	// RefreshMutual recomputes is_mutual from the stored marks
	RefreshMutual(ctx context.Context, id string, at time.Time) (*models.Match, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to models.MatchStatus, at time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Match, error)
	ListByEvent(ctx context.Context, eventID string) ([]*models.Match, error)
	// ListMutual lists mutual matches that are neither declined nor expired
	ListMutual(ctx context.Context) ([]*models.Match, error)
	// ExpireStale moves pending non-mutual matches idle since before to expired
	ExpireStale(ctx context.Context, before time.Time) ([]*models.Match, error)
}

// ChatRepository persists chats keyed by canonical pair
type ChatRepository interface {
	CreateIfAbsent(ctx context.Context, chat *models.Chat) (bool, error)
	GetByID(ctx context.Context, chatID string) (*models.Chat, error)
	SetActive(ctx context.Context, chatID string, active bool) error
	ListByUser(ctx context.Context, userID string) ([]*models.Chat, error)
}

// UserRepository persists API users
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// ProfileRepository is a read-only view of the profile service
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// EventCatalog is a read-only view of the event catalog
type EventCatalog interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
}

type Repositories struct {
	Interest InterestRepository
	Match    MatchRepository
	Chat     ChatRepository
	User     UserRepository
	Profile  ProfileRepository
	Event    EventCatalog
}

// NewRepositories creates the PostgreSQL backed repositories
func NewRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		Interest: NewInterestRepository(db),
		Match:    NewMatchRepository(db),
		Chat:     NewChatRepository(db),
		User:     NewUserRepository(db),
		Profile:  NewProfileRepository(db),
		Event:    NewEventCatalog(db),
	}
}

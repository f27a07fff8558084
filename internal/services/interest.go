package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dance-match-backend/internal/models"
	"dance-match-backend/internal/repository"
	apperrors "dance-match-backend/pkg/errors"

	"github.com/rs/zerolog/log"
)

// InterestService is the entry point for interest marks
type InterestService struct {
	interests repository.InterestRepository
	events    repository.EventCatalog
	promoter  *MatchPromoter
	publisher Publisher
	retry     RetryPolicy
	now       func() time.Time
}

// NewInterestService creates a new interest service
func NewInterestService(repos *repository.Repositories, promoter *MatchPromoter, publisher Publisher, retry RetryPolicy) *InterestService {
	return &InterestService{
		interests: repos.Interest,
		events:    repos.Event,
		promoter:  promoter,
		publisher: publisher,
		retry:     retry,
		now:       time.Now,
	}
}

func validateIDs(userID, eventID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required: %w", apperrors.ErrBadRequest)
	}
	if strings.TrimSpace(eventID) == "" {
		return fmt.Errorf("event id is required: %w", apperrors.ErrBadRequest)
	}
	return nil
}

func (s *InterestService) event(ctx context.Context, eventID string) (*models.Event, error) {
	return retry(ctx, s.retry, "get_event", func() (*models.Event, error) {
		return s.events.GetEvent(ctx, eventID)
	})
}

// Mark records the user's interest in the event and promotes any pair it
// completes. Marking twice is a no-op.
func (s *InterestService) Mark(ctx context.Context, userID, eventID string) error {
	if err := validateIDs(userID, eventID); err != nil {
		return err
	}
	event, err := s.event(ctx, eventID)
	if err != nil {
		return err
	}

	created, err := retry(ctx, s.retry, "mark_interest", func() (bool, error) {
		return s.interests.Mark(ctx, userID, eventID, s.now())
	})
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("user_id", userID).Str("event_id", eventID).Msg("Interest marked")
	}
	s.publisher.Publish(ctx, InterestKey(userID, eventID))

	// The mark is durable at this point. Promotion failures are logged; the
	// next mark in the event or the reconciler picks them up.
	if err := s.promoter.OnMark(ctx, event, userID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("event_id", eventID).
			Msg("Match promotion failed")
	}
	return nil
}

// Unmark removes the user's interest. Unmarking a missing mark is not an error.
func (s *InterestService) Unmark(ctx context.Context, userID, eventID string) error {
	if err := validateIDs(userID, eventID); err != nil {
		return err
	}

	removed, err := retry(ctx, s.retry, "unmark_interest", func() (bool, error) {
		return s.interests.Unmark(ctx, userID, eventID)
	})
	if err != nil {
		return err
	}
	if removed {
		log.Info().Str("user_id", userID).Str("event_id", eventID).Msg("Interest unmarked")
		s.publisher.Publish(ctx, InterestKey(userID, eventID))
	}

	// a repeated unmark still demotes what an earlier failed demotion left mutual
	if err := s.promoter.OnUnmark(ctx, userID, eventID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("event_id", eventID).
			Msg("Match demotion failed")
	}
	return nil
}

// IsInterested reports whether the user's mark for the event exists
func (s *InterestService) IsInterested(ctx context.Context, userID, eventID string) (bool, error) {
	if err := validateIDs(userID, eventID); err != nil {
		return false, err
	}
	return retry(ctx, s.retry, "check_interest", func() (bool, error) {
		return s.interests.Exists(ctx, userID, eventID)
	})
}

// InterestedUsers lists the users currently interested in the event
func (s *InterestService) InterestedUsers(ctx context.Context, eventID string) ([]string, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("event id is required: %w", apperrors.ErrBadRequest)
	}
	return retry(ctx, s.retry, "list_interested", func() ([]string, error) {
		return s.interests.UsersForEvent(ctx, eventID)
	})
}

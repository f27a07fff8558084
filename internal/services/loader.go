package services

import (
	"context"
	"fmt"

	"dance-match-backend/internal/models"
	"dance-match-backend/internal/repository"
)

// StateLoader reads hub snapshots straight from the repositories
type StateLoader struct {
	interests repository.InterestRepository
	matches   repository.MatchRepository
	chats     repository.ChatRepository
	retry     RetryPolicy
}

// NewStateLoader creates a loader over the given repositories
func NewStateLoader(repos *repository.Repositories, retry RetryPolicy) *StateLoader {
	return &StateLoader{
		interests: repos.Interest,
		matches:   repos.Match,
		chats:     repos.Chat,
		retry:     retry,
	}
}

func (l *StateLoader) Load(ctx context.Context, key Key) (Snapshot, error) {
	snap := Snapshot{Key: key}
	switch key.Kind {
	case KindInterest:
		interested, err := retry(ctx, l.retry, "load_interest", func() (bool, error) {
			return l.interests.Exists(ctx, key.UserID, key.EventID)
		})
		if err != nil {
			return snap, err
		}
		snap.Interested = &interested
	case KindMatches:
		matches, err := retry(ctx, l.retry, "load_matches", func() ([]*models.Match, error) {
			return l.matches.ListByUser(ctx, key.UserID)
		})
		if err != nil {
			return snap, err
		}
		snap.Matches = matches
	case KindChats:
		chats, err := retry(ctx, l.retry, "load_chats", func() ([]*models.Chat, error) {
			return l.chats.ListByUser(ctx, key.UserID)
		})
		if err != nil {
			return snap, err
		}
		snap.Chats = chats
	default:
		return snap, fmt.Errorf("unknown key kind %q", key.Kind)
	}
	return snap, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dance-match-backend/internal/models"
	"dance-match-backend/internal/repository"
	apperrors "dance-match-backend/pkg/errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ChatProvisioner creates at most one chat per participant pair
type ChatProvisioner struct {
	chats     repository.ChatRepository
	publisher Publisher
	retry     RetryPolicy
	now       func() time.Time
	inflight  singleflight.Group
}

// NewChatProvisioner creates a new chat provisioner
func NewChatProvisioner(chats repository.ChatRepository, publisher Publisher, retry RetryPolicy) *ChatProvisioner {
	return &ChatProvisioner{
		chats:     chats,
		publisher: publisher,
		retry:     retry,
		now:       time.Now,
	}
}

type provisionResult struct {
	chat    *models.Chat
	changed bool
}

// CreateOrGetChat returns the chat of the pair, creating it when absent and
// reactivating it when it was deactivated. Concurrent calls for one pair
// return the same record.
func (p *ChatProvisioner) CreateOrGetChat(ctx context.Context, participants []string, eventID, matchID string) (*models.Chat, error) {
	if len(participants) != 2 {
		return nil, fmt.Errorf("a chat needs exactly two participants: %w", apperrors.ErrBadRequest)
	}
	a, b := strings.TrimSpace(participants[0]), strings.TrimSpace(participants[1])
	if a == "" || b == "" || a == b {
		return nil, fmt.Errorf("a chat needs two distinct participants: %w", apperrors.ErrBadRequest)
	}
	u1, u2 := models.CanonicalPair(a, b)
	chatID := models.ChatIDFor(u1, u2)

	// One caller giving up must not fail the others sharing the flight.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := p.inflight.Do(chatID, func() (interface{}, error) {
		return p.createOrGet(flightCtx, chatID, u1, u2, eventID, matchID)
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("chat_id", chatID).
			Str("match_id", matchID).
			Msg("Chat provisioning failed")
		return nil, fmt.Errorf("%w: %w", apperrors.ErrProvisioningFailed, err)
	}

	res := v.(provisionResult)
	if res.changed {
		p.publisher.Publish(ctx, ChatsKey(u1), ChatsKey(u2))
	}
	chat := *res.chat
	return &chat, nil
}

func (p *ChatProvisioner) createOrGet(ctx context.Context, chatID, u1, u2, eventID, matchID string) (provisionResult, error) {
	return retry(ctx, p.retry, "create_chat", func() (provisionResult, error) {
		chat := &models.Chat{
			ChatID:       chatID,
			Participants: [2]string{u1, u2},
			IsActive:     true,
			EventID:      optional(eventID),
			MatchID:      optional(matchID),
			CreatedAt:    p.now(),
		}
		created, err := p.chats.CreateIfAbsent(ctx, chat)
		if err != nil {
			return provisionResult{}, err
		}
		if created {
			log.Info().
				Str("chat_id", chatID).
				Str("user_id1", u1).
				Str("user_id2", u2).
				Msg("Chat created")
			return provisionResult{chat: chat, changed: true}, nil
		}

		existing, err := p.chats.GetByID(ctx, chatID)
		if err != nil {
			return provisionResult{}, err
		}
		if existing.IsActive {
			return provisionResult{chat: existing}, nil
		}
		if err := p.chats.SetActive(ctx, chatID, true); err != nil {
			return provisionResult{}, err
		}
		existing.IsActive = true
		log.Info().Str("chat_id", chatID).Msg("Chat reactivated")
		return provisionResult{chat: existing, changed: true}, nil
	})
}

// Deactivate marks the chat inactive; chats are never deleted
func (p *ChatProvisioner) Deactivate(ctx context.Context, chatID string) error {
	chat, err := retry(ctx, p.retry, "get_chat", func() (*models.Chat, error) {
		return p.chats.GetByID(ctx, chatID)
	})
	if err != nil {
		return err
	}
	if !chat.IsActive {
		return nil
	}
	if _, err := retry(ctx, p.retry, "deactivate_chat", func() (struct{}, error) {
		return struct{}{}, p.chats.SetActive(ctx, chatID, false)
	}); err != nil {
		return err
	}
	log.Info().Str("chat_id", chatID).Msg("Chat deactivated")
	p.publisher.Publish(ctx, ChatsKey(chat.Participants[0]), ChatsKey(chat.Participants[1]))
	return nil
}

// GetChat returns the chat of a pair
func (p *ChatProvisioner) GetChat(ctx context.Context, a, b string) (*models.Chat, error) {
	return retry(ctx, p.retry, "get_chat", func() (*models.Chat, error) {
		return p.chats.GetByID(ctx, models.ChatIDFor(a, b))
	})
}

// ChatsForUser lists the chats a user participates in
func (p *ChatProvisioner) ChatsForUser(ctx context.Context, userID string) ([]*models.Chat, error) {
	return retry(ctx, p.retry, "list_chats", func() ([]*models.Chat, error) {
		return p.chats.ListByUser(ctx, userID)
	})
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func isNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

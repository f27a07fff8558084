package services

import (
	"context"
	"fmt"

	"dance-match-backend/internal/models"
)

// KeyKind names the state a subscription key refers to
type KeyKind string

const (
	KindInterest KeyKind = "interest"
	KindMatches  KeyKind = "matches"
	KindChats    KeyKind = "chats"
)

// Key identifies one observable piece of state
type Key struct {
	Kind    KeyKind `json:"kind"`
	UserID  string  `json:"user_id"`
	EventID string  `json:"event_id,omitempty"`
}

// InterestKey is the interest state of a user for an event
func InterestKey(userID, eventID string) Key {
	return Key{Kind: KindInterest, UserID: userID, EventID: eventID}
}

// MatchesKey is the match list of a user
func MatchesKey(userID string) Key {
	return Key{Kind: KindMatches, UserID: userID}
}

// ChatsKey is the chat list of a user
func ChatsKey(userID string) Key {
	return Key{Kind: KindChats, UserID: userID}
}

func (k Key) String() string {
	if k.EventID == "" {
		return fmt.Sprintf("%s/%s", k.Kind, k.UserID)
	}
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.UserID, k.EventID)
}

// Snapshot is the state of one key as read from the store
type Snapshot struct {
	Key        Key             `json:"key"`
	Interested *bool           `json:"interested,omitempty"`
	Matches    []*models.Match `json:"matches,omitempty"`
	Chats      []*models.Chat  `json:"chats,omitempty"`
	// Replay marks a snapshot re-sent after the change feed reconnected
	Replay bool `json:"replay,omitempty"`
	// Degraded is set while live updates cannot be guaranteed
	Degraded bool `json:"degraded,omitempty"`
}

// Publisher announces that the state behind keys changed
type Publisher interface {
	Publish(ctx context.Context, keys ...Key)
}

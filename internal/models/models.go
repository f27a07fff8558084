package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the lifecycle state of a match
type MatchStatus string

const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusAccepted MatchStatus = "accepted"
	MatchStatusDeclined MatchStatus = "declined"
	MatchStatusExpired  MatchStatus = "expired"
)

// Valid reports whether s is a known status
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusPending, MatchStatusAccepted, MatchStatusDeclined, MatchStatusExpired:
		return true
	}
	return false
}

// Namespaces for deterministic ids. Changing them orphans every stored record.
var (
	chatNamespace  = uuid.MustParse("1b671a64-40d5-491e-99b0-da01ff1f3341")
	matchNamespace = uuid.MustParse("6f1c7d0e-9a43-4c7b-8d0e-2b7f4f0a9c15")
)

// User represents an authenticated user of the API
type User struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// InterestMark records that a user is interested in an event
type InterestMark struct {
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Match represents a pair of users who were mutually interested in an event
type Match struct {
	ID              string      `json:"id"`
	UserID1         string      `json:"user_id1"`
	UserID2         string      `json:"user_id2"`
	EventID         string      `json:"event_id"`
	Status          MatchStatus `json:"status"`
	MatchStrength   float64     `json:"match_strength"`
	CreatedAt       time.Time   `json:"created_at"`
	LastInteraction time.Time   `json:"last_interaction"`
	IsMutual        bool        `json:"is_mutual"`
}

// Involves reports whether userID is one of the match participants
func (m *Match) Involves(userID string) bool {
	return m.UserID1 == userID || m.UserID2 == userID
}

// OpenForChat reports whether the match may hold an active chat. Declined
// and expired matches stay closed even if both marks come back.
func (m *Match) OpenForChat() bool {
	return m.IsMutual && m.Status != MatchStatusDeclined && m.Status != MatchStatusExpired
}

// Partner returns the other participant of the match
func (m *Match) Partner(userID string) string {
	if m.UserID1 == userID {
		return m.UserID2
	}
	return m.UserID1
}

// Chat is the conversation shared by exactly two participants
type Chat struct {
	ChatID          string     `json:"chat_id"`
	Participants    [2]string  `json:"participants"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	IsActive        bool       `json:"is_active"`
	EventID         *string    `json:"event_id,omitempty"`
	MatchID         *string    `json:"match_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Profile holds the attributes used to score a match
type Profile struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	DanceStyles []string `json:"dance_styles"`
	Level       int      `json:"level"`
	City        string   `json:"city"`
}

// Event is a read-only entry of the event catalog
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	OrganizerIDs []string  `json:"organizer_ids"`
	StartsAt     time.Time `json:"starts_at"`
}

// IsOrganizer reports whether userID organizes the event
func (e *Event) IsOrganizer(userID string) bool {
	for _, id := range e.OrganizerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CanonicalPair orders two user ids lexicographically
func CanonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// PairKey is the order-independent identity of a user pair
func PairKey(a, b string) string {
	a, b = CanonicalPair(a, b)
	return a + "\x00" + b
}

// ChatIDFor derives the id of the single chat a pair may share
func ChatIDFor(a, b string) string {
	return uuid.NewSHA1(chatNamespace, []byte(PairKey(a, b))).String()
}

// MatchIDFor derives the id of the match of a pair for one event
func MatchIDFor(a, b, eventID string) string {
	return uuid.NewSHA1(matchNamespace, []byte(PairKey(a, b)+"\x00"+eventID)).String()
}

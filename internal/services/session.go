package services

import (
	"context"
	"sync"

	apperrors "dance-match-backend/pkg/errors"
)

// InterestToggler is the part of the interest store a session writes to
type InterestToggler interface {
	Mark(ctx context.Context, userID, eventID string) error
	Unmark(ctx context.Context, userID, eventID string) error
}

// SessionState is what a client shows for one user and event
type SessionState struct {
	UserID     string `json:"user_id"`
	EventID    string `json:"event_id"`
	Interested bool   `json:"interested"`
	Loading    bool   `json:"loading"`
	Degraded   bool   `json:"degraded"`
}

// InterestSession mirrors the store's interest state for one user and event.
// Toggle never changes the local state; the new value arrives from the hub.
type InterestSession struct {
	interests InterestToggler
	sub       *Subscription
	onChange  func(SessionState)

	mu    sync.Mutex
	state SessionState
}

// NewInterestSession subscribes to the interest key. onChange, when set, runs
// on the hub's delivery goroutine after every state change.
func NewInterestSession(hub *Hub, interests InterestToggler, userID, eventID string, onChange func(SessionState)) *InterestSession {
	s := &InterestSession{
		interests: interests,
		onChange:  onChange,
		state:     SessionState{UserID: userID, EventID: eventID, Loading: true},
	}
	s.sub = hub.Subscribe(InterestKey(userID, eventID), s.apply)
	return s
}

func (s *InterestSession) apply(snap Snapshot) {
	s.mu.Lock()
	if snap.Interested != nil {
		s.state.Interested = *snap.Interested
		s.state.Loading = false
	}
	s.state.Degraded = snap.Degraded
	state := s.state
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(state)
	}
}

// State returns the last state received from the store
func (s *InterestSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Toggle marks when not interested and unmarks when interested
func (s *InterestSession) Toggle(ctx context.Context) error {
	state := s.State()
	if state.Loading {
		return apperrors.ErrNotReady
	}
	if state.Interested {
		return s.interests.Unmark(ctx, state.UserID, state.EventID)
	}
	return s.interests.Mark(ctx, state.UserID, state.EventID)
}

// Close cancels the underlying subscription
func (s *InterestSession) Close() {
	s.sub.Cancel()
}

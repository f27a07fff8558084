package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dance-match-backend/internal/models"
	apperrors "dance-match-backend/pkg/errors"
)

// MemoryStore keeps every table in process behind a single mutex, which makes
// each operation linearizable. It backs the memory storage driver and tests.
type MemoryStore struct {
	mu        sync.Mutex
	interests map[interestKey]time.Time
	matches   map[string]models.Match
	chats     map[string]models.Chat
	users     map[string]models.User
	profiles  map[string]models.Profile
	events    map[string]models.Event
}

type interestKey struct {
	userID  string
	eventID string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interests: make(map[interestKey]time.Time),
		matches:   make(map[string]models.Match),
		chats:     make(map[string]models.Chat),
		users:     make(map[string]models.User),
		profiles:  make(map[string]models.Profile),
		events:    make(map[string]models.Event),
	}
}

// NewMemoryRepositories wires every repository to one in-memory store
func NewMemoryRepositories(store *MemoryStore) *Repositories {
	return &Repositories{
		Interest: memoryInterests{store},
		Match:    memoryMatches{store},
		Chat:     memoryChats{store},
		User:     memoryUsers{store},
		Profile:  memoryProfiles{store},
		Event:    memoryEvents{store},
	}
}

// PutEvent adds an event to the catalog
func (s *MemoryStore) PutEvent(e models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.OrganizerIDs = append([]string(nil), e.OrganizerIDs...)
	s.events[e.ID] = e
}

// PutProfile adds a profile to the profile lookup
func (s *MemoryStore) PutProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.DanceStyles = append([]string(nil), p.DanceStyles...)
	s.profiles[p.UserID] = p
}

// ChatCount returns the number of stored chats
func (s *MemoryStore) ChatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

func (s *MemoryStore) hasInterest(userID, eventID string) bool {
	_, ok := s.interests[interestKey{userID, eventID}]
	return ok
}

type memoryInterests struct{ s *MemoryStore }

func (r memoryInterests) Mark(ctx context.Context, userID, eventID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := interestKey{userID, eventID}
	if _, ok := r.s.interests[key]; ok {
		return false, nil
	}
	r.s.interests[key] = at
	return true, nil
}

func (r memoryInterests) Unmark(ctx context.Context, userID, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := interestKey{userID, eventID}
	if _, ok := r.s.interests[key]; !ok {
		return false, nil
	}
	delete(r.s.interests, key)
	return true, nil
}

func (r memoryInterests) Exists(ctx context.Context, userID, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.hasInterest(userID, eventID), nil
}

func (r memoryInterests) UsersForEvent(ctx context.Context, eventID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	type entry struct {
		userID string
		at     time.Time
	}
	var entries []entry
	for key, at := range r.s.interests {
		if key.eventID == eventID {
			entries = append(entries, entry{key.userID, at})
		}
	}
	r.s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].at.Equal(entries[j].at) {
			return entries[i].userID < entries[j].userID
		}
		return entries[i].at.Before(entries[j].at)
	})
	users := make([]string, len(entries))
	for i, e := range entries {
		users[i] = e.userID
	}
	return users, nil
}

func (r memoryInterests) EventsWithInterest(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	seen := make(map[string]struct{})
	for key := range r.s.interests {
		seen[key.eventID] = struct{}{}
	}
	r.s.mu.Unlock()

	events := make([]string, 0, len(seen))
	for eventID := range seen {
		events = append(events, eventID)
	}
	sort.Strings(events)
	return events, nil
}

type memoryMatches struct{ s *MemoryStore }

func (r memoryMatches) CreateIfMutual(ctx context.Context, m *models.Match) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.matches[m.ID]; ok {
		return false, nil
	}
	if !r.s.hasInterest(m.UserID1, m.EventID) || !r.s.hasInterest(m.UserID2, m.EventID) {
		return false, nil
	}
	stored := *m
	stored.IsMutual = true
	r.s.matches[m.ID] = stored
	return true, nil
}

func (r memoryMatches) GetByID(ctx context.Context, id string) (*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, apperrors.ErrNotFound)
	}
	return &m, nil
}

func (r memoryMatches) RefreshMutual(ctx context.Context, id string, at time.Time) (*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, apperrors.ErrNotFound)
	}
	m.IsMutual = r.s.hasInterest(m.UserID1, m.EventID) && r.s.hasInterest(m.UserID2, m.EventID)
	m.LastInteraction = at
	r.s.matches[id] = m
	return &m, nil
}

func (r memoryMatches) CompareAndSetStatus(ctx context.Context, id string, from, to models.MatchStatus, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	m.LastInteraction = at
	r.s.matches[id] = m
	return true, nil
}

func (r memoryMatches) list(keep func(*models.Match) bool, newestFirst bool) []*models.Match {
	r.s.mu.Lock()
	var out []*models.Match
	for _, m := range r.s.matches {
		m := m
		if keep(&m) {
			out = append(out, &m)
		}
	}
	r.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r memoryMatches) ListByUser(ctx context.Context, userID string) ([]*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.list(func(m *models.Match) bool { return m.Involves(userID) }, true), nil
}

func (r memoryMatches) ListMutual(ctx context.Context) ([]*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.list(func(m *models.Match) bool {
		return m.OpenForChat()
	}, false), nil
}

func (r memoryMatches) ListByEvent(ctx context.Context, eventID string) ([]*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.list(func(m *models.Match) bool { return m.EventID == eventID }, false), nil
}

func (r memoryMatches) ExpireStale(ctx context.Context, before time.Time) ([]*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	var expired []*models.Match
	for id, m := range r.s.matches {
		if m.Status == models.MatchStatusPending && !m.IsMutual && m.LastInteraction.Before(before) {
			m.Status = models.MatchStatusExpired
			r.s.matches[id] = m
			m := m
			expired = append(expired, &m)
		}
	}
	r.s.mu.Unlock()
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

type memoryChats struct{ s *MemoryStore }

func copyChat(c models.Chat) *models.Chat {
	if c.EventID != nil {
		v := *c.EventID
		c.EventID = &v
	}
	if c.MatchID != nil {
		v := *c.MatchID
		c.MatchID = &v
	}
	if c.LastMessageTime != nil {
		v := *c.LastMessageTime
		c.LastMessageTime = &v
	}
	return &c
}

func (r memoryChats) CreateIfAbsent(ctx context.Context, c *models.Chat) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.chats[c.ChatID]; ok {
		return false, nil
	}
	for _, existing := range r.s.chats {
		if existing.Participants == c.Participants {
			return false, nil
		}
	}
	r.s.chats[c.ChatID] = *copyChat(*c)
	return true, nil
}

func (r memoryChats) GetByID(ctx context.Context, chatID string) (*models.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, apperrors.ErrNotFound)
	}
	return copyChat(c), nil
}

func (r memoryChats) SetActive(ctx context.Context, chatID string, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return fmt.Errorf("chat %s: %w", chatID, apperrors.ErrNotFound)
	}
	c.IsActive = active
	r.s.chats[chatID] = c
	return nil
}

func (r memoryChats) ListByUser(ctx context.Context, userID string) ([]*models.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	var out []*models.Chat
	for _, c := range r.s.chats {
		if c.Participants[0] == userID || c.Participants[1] == userID {
			out = append(out, copyChat(c))
		}
	}
	r.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return fmt.Errorf("user %s: %w", user.ID, apperrors.ErrConflict)
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r memoryUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	return &u, nil
}

type memoryProfiles struct{ s *MemoryStore }

func (r memoryProfiles) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, apperrors.ErrNotFound)
	}
	p.DanceStyles = append([]string(nil), p.DanceStyles...)
	return &p, nil
}

type memoryEvents struct{ s *MemoryStore }

func (r memoryEvents) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, apperrors.ErrNotFound)
	}
	e.OrganizerIDs = append([]string(nil), e.OrganizerIDs...)
	return &e, nil
}

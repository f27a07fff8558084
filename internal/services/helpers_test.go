package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dance-match-backend/internal/models"
	"dance-match-backend/internal/repository"
	apperrors "dance-match-backend/pkg/errors"
)

var testRetry = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
}

type testEnv struct {
	store     *repository.MemoryStore
	repos     *repository.Repositories
	hub       *Hub
	chats     *ChatProvisioner
	promoter  *MatchPromoter
	interests *InterestService
}

type envOptions struct {
	policy PairingPolicy
	// wrapChats replaces the chat repository the provisioner writes to
	wrapChats func(repository.ChatRepository) repository.ChatRepository
	// wrapMatches replaces the match repository every service reads and writes
	wrapMatches func(repository.MatchRepository) repository.MatchRepository
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	store.PutEvent(models.Event{ID: "E1", Title: "Salsa night"})
	store.PutEvent(models.Event{ID: "E2", Title: "Bachata social", OrganizerIDs: []string{"org"}})
	store.PutProfile(models.Profile{UserID: "alice", DanceStyles: []string{"salsa", "bachata"}, Level: 3, City: "Berlin"})
	store.PutProfile(models.Profile{UserID: "bob", DanceStyles: []string{"salsa"}, Level: 4, City: "Berlin"})

	repos := repository.NewMemoryRepositories(store)
	if opts.wrapMatches != nil {
		wrapped := *repos
		wrapped.Match = opts.wrapMatches(repos.Match)
		repos = &wrapped
	}
	hub := NewHub(NewStateLoader(repos, testRetry), LocalFeed{}, 10*time.Millisecond)
	t.Cleanup(hub.Close)

	chatRepo := repos.Chat
	if opts.wrapChats != nil {
		chatRepo = opts.wrapChats(chatRepo)
	}
	chats := NewChatProvisioner(chatRepo, hub, testRetry)
	promoter := NewMatchPromoter(repos, chats, hub, MatchPromoterOptions{
		Policy:   opts.policy,
		Retry:    testRetry,
		MatchTTL: time.Hour,
	})
	return &testEnv{
		store:     store,
		repos:     repos,
		hub:       hub,
		chats:     chats,
		promoter:  promoter,
		interests: NewInterestService(repos, promoter, hub, testRetry),
	}
}

// flakyChats fails the next failures creates with a transient error
type flakyChats struct {
	repository.ChatRepository
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyChats) CreateIfAbsent(ctx context.Context, c *models.Chat) (bool, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return false, fmt.Errorf("failed to create chat: %w", apperrors.ErrTransientStore)
	}
	return f.ChatRepository.CreateIfAbsent(ctx, c)
}

// flakyMatches fails the next createFailures creates and the next
// refreshFailures refreshes with a transient error
type flakyMatches struct {
	repository.MatchRepository
	createFailures  atomic.Int32
	refreshFailures atomic.Int32
}

func (f *flakyMatches) CreateIfMutual(ctx context.Context, m *models.Match) (bool, error) {
	if f.createFailures.Add(-1) >= 0 {
		return false, fmt.Errorf("failed to create match: %w", apperrors.ErrTransientStore)
	}
	return f.MatchRepository.CreateIfMutual(ctx, m)
}

func (f *flakyMatches) RefreshMutual(ctx context.Context, id string, at time.Time) (*models.Match, error) {
	if f.refreshFailures.Add(-1) >= 0 {
		return nil, fmt.Errorf("failed to refresh match: %w", apperrors.ErrTransientStore)
	}
	return f.MatchRepository.RefreshMutual(ctx, id, at)
}

func wrapFlakyMatches(f *flakyMatches) func(repository.MatchRepository) repository.MatchRepository {
	return func(m repository.MatchRepository) repository.MatchRepository {
		f.MatchRepository = m
		return f
	}
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) add(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func interested(s Snapshot) bool {
	return s.Interested != nil && *s.Interested
}

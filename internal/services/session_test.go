package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "dance-match-backend/pkg/errors"
)

// gatedLoader blocks every load until release is closed
type gatedLoader struct {
	Loader
	release chan struct{}
}

func (l *gatedLoader) Load(ctx context.Context, key Key) (Snapshot, error) {
	select {
	case <-l.release:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	return l.Loader.Load(ctx, key)
}

type togglerCalls struct {
	mu      sync.Mutex
	marks   int
	unmarks int
}

func (c *togglerCalls) Mark(context.Context, string, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marks++
	return nil
}

func (c *togglerCalls) Unmark(context.Context, string, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unmarks++
	return nil
}

func TestSessionRejectsToggleWhileLoading(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	loader := &gatedLoader{Loader: NewStateLoader(env.repos, testRetry), release: make(chan struct{})}
	hub := NewHub(loader, nil, 10*time.Millisecond)
	defer hub.Close()

	calls := &togglerCalls{}
	session := NewInterestSession(hub, calls, "alice", "E1", nil)
	defer session.Close()

	if !session.State().Loading {
		t.Fatal("expected session to start loading")
	}
	if err := session.Toggle(context.Background()); !errors.Is(err, apperrors.ErrNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}

	close(loader.release)
	waitFor(t, "loaded state", func() bool { return !session.State().Loading })
	if session.State().Interested {
		t.Fatal("expected not interested")
	}
	if calls.marks != 0 {
		t.Fatal("rejected toggle must not reach the store")
	}
}

func TestSessionToggleDoesNotFlipLocally(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	calls := &togglerCalls{}
	session := NewInterestSession(env.hub, calls, "alice", "E1", nil)
	defer session.Close()
	waitFor(t, "loaded state", func() bool { return !session.State().Loading })

	if err := session.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if calls.marks != 1 {
		t.Fatalf("expected one mark, got %d", calls.marks)
	}
	time.Sleep(20 * time.Millisecond)
	if session.State().Interested {
		t.Fatal("state must only change through the store")
	}
}

func TestSessionFollowsStore(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	var mu sync.Mutex
	var seen []SessionState
	session := NewInterestSession(env.hub, env.interests, "alice", "E1", func(s SessionState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	waitFor(t, "loaded state", func() bool { return !session.State().Loading })

	if err := session.Toggle(ctx); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	waitFor(t, "interested", func() bool { return session.State().Interested })

	if err := session.Toggle(ctx); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	waitFor(t, "not interested", func() bool { return !session.State().Interested })

	session.Close()
	if env.hub.SubscriberCount(InterestKey("alice", "E1")) != 0 {
		t.Fatal("expected close to cancel the subscription")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 3 {
		t.Fatalf("expected at least three state changes, got %d", len(seen))
	}
	if seen[0].Loading {
		t.Fatal("listener must only see loaded states")
	}
}

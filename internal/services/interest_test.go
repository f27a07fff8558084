package services

import (
	"context"
	"errors"
	"testing"

	apperrors "dance-match-backend/pkg/errors"
)

func TestInterestMarkUnmarkMark(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	for _, step := range []func(context.Context, string, string) error{
		env.interests.Mark,
		env.interests.Unmark,
		env.interests.Mark,
	} {
		if err := step(ctx, "alice", "E1"); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	ok, err := env.interests.IsInterested(ctx, "alice", "E1")
	if err != nil {
		t.Fatalf("is interested: %v", err)
	}
	if !ok {
		t.Fatal("expected final state interested")
	}
}

func TestInterestMarkIsIdempotent(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	env.interests.Mark(ctx, "alice", "E1")
	env.interests.Mark(ctx, "alice", "E1")

	users, err := env.interests.InterestedUsers(ctx, "E1")
	if err != nil {
		t.Fatalf("interested users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected one mark, got %v", users)
	}
	if err := env.interests.Unmark(ctx, "bob", "E1"); err != nil {
		t.Fatalf("unmark of a missing mark must be a no-op: %v", err)
	}
}

func TestInterestValidation(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	if err := env.interests.Mark(ctx, "alice", "nope"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for unknown event, got %v", err)
	}
	if err := env.interests.Mark(ctx, "", "E1"); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("expected bad request for empty user, got %v", err)
	}
	if _, err := env.interests.IsInterested(ctx, "alice", " "); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("expected bad request for empty event, got %v", err)
	}
	if _, err := env.interests.InterestedUsers(ctx, ""); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

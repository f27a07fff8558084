package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dance-match-backend/internal/models"
	"dance-match-backend/internal/repository"
	apperrors "dance-match-backend/pkg/errors"
)

func TestMutualInterestCreatesMatchAndChat(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	if err := env.interests.Mark(ctx, "alice", "E1"); err != nil {
		t.Fatalf("mark alice: %v", err)
	}
	matches, _ := env.promoter.MatchesForUser(ctx, "alice")
	if len(matches) != 0 {
		t.Fatalf("expected no match for one sided interest, got %d", len(matches))
	}

	if err := env.interests.Mark(ctx, "bob", "E1"); err != nil {
		t.Fatalf("mark bob: %v", err)
	}
	matches, err := env.promoter.MatchesForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	m := matches[0]
	if m.UserID1 != "alice" || m.UserID2 != "bob" || m.EventID != "E1" {
		t.Fatalf("unexpected match %+v", m)
	}
	if !m.IsMutual || m.Status != models.MatchStatusPending {
		t.Fatalf("expected mutual pending match, got %+v", m)
	}
	if m.ID != models.MatchIDFor("alice", "bob", "E1") {
		t.Fatalf("unexpected match id %s", m.ID)
	}
	if want := Similarity(
		&models.Profile{DanceStyles: []string{"salsa", "bachata"}, Level: 3, City: "Berlin"},
		&models.Profile{DanceStyles: []string{"salsa"}, Level: 4, City: "Berlin"},
	); m.MatchStrength != want {
		t.Fatalf("expected strength %v, got %v", want, m.MatchStrength)
	}

	chat, err := env.chats.GetChat(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("expected chat for the pair: %v", err)
	}
	if !chat.IsActive || chat.MatchID == nil || *chat.MatchID != m.ID {
		t.Fatalf("unexpected chat %+v", chat)
	}
	if env.store.ChatCount() != 1 {
		t.Fatalf("expected one chat, got %d", env.store.ChatCount())
	}
}

func TestUnmarkKeepsMatchButClearsMutual(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	env.interests.Mark(ctx, "alice", "E1")
	env.interests.Mark(ctx, "bob", "E1")
	before, _ := env.promoter.MatchesForUser(ctx, "bob")

	if err := env.interests.Unmark(ctx, "bob", "E1"); err != nil {
		t.Fatalf("unmark: %v", err)
	}
	matches, _ := env.promoter.MatchesForUser(ctx, "alice")
	if len(matches) != 1 {
		t.Fatalf("match must never be deleted, got %d", len(matches))
	}
	if matches[0].IsMutual {
		t.Fatal("expected match to stop being mutual")
	}
	if _, err := env.chats.GetChat(ctx, "alice", "bob"); err != nil {
		t.Fatalf("chat must survive unmark: %v", err)
	}

	if err := env.interests.Mark(ctx, "bob", "E1"); err != nil {
		t.Fatalf("mark again: %v", err)
	}
	matches, _ = env.promoter.MatchesForUser(ctx, "alice")
	if len(matches) != 1 || !matches[0].IsMutual {
		t.Fatalf("expected the same match to be mutual again, got %+v", matches)
	}
	if !matches[0].CreatedAt.Equal(before[0].CreatedAt) {
		t.Fatal("remark must not touch created_at")
	}
	if env.store.ChatCount() != 1 {
		t.Fatalf("expected one chat, got %d", env.store.ChatCount())
	}
}

func TestMarkThenUnmarkBeforePartnerCreatesNothing(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	env.interests.Mark(ctx, "alice", "E1")
	env.interests.Unmark(ctx, "alice", "E1")
	env.interests.Mark(ctx, "bob", "E1")

	matches, _ := env.promoter.MatchesForUser(ctx, "bob")
	if len(matches) != 0 {
		t.Fatalf("expected no match, got %d", len(matches))
	}
	if env.store.ChatCount() != 0 {
		t.Fatal("expected no chat")
	}
}

func TestConcurrentMarksCreateOneMatchAndChat(t *testing.T) {
	for i := 0; i < 20; i++ {
		env := newTestEnv(t, envOptions{})
		ctx := context.Background()

		var wg sync.WaitGroup
		for _, user := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				if err := env.interests.Mark(ctx, user, "E1"); err != nil {
					t.Errorf("mark %s: %v", user, err)
				}
			}(user)
		}
		wg.Wait()

		matches, _ := env.promoter.MatchesForUser(ctx, "alice")
		if len(matches) != 1 || !matches[0].IsMutual {
			t.Fatalf("run %d: expected one mutual match, got %+v", i, matches)
		}
		if env.store.ChatCount() != 1 {
			t.Fatalf("run %d: expected one chat, got %d", i, env.store.ChatCount())
		}
	}
}

func TestOrganizerPolicyPairsAttendeesWithOrganizers(t *testing.T) {
	env := newTestEnv(t, envOptions{policy: OrganizerPolicy{}})
	ctx := context.Background()
	env.interests.Mark(ctx, "alice", "E2")
	env.interests.Mark(ctx, "bob", "E2")

	matches, _ := env.promoter.MatchesForUser(ctx, "alice")
	if len(matches) != 0 {
		t.Fatalf("attendees must not pair with each other, got %+v", matches)
	}

	env.interests.Mark(ctx, "org", "E2")
	matches, _ = env.promoter.MatchesForUser(ctx, "org")
	if len(matches) != 2 {
		t.Fatalf("expected organizer to match both attendees, got %d", len(matches))
	}
	if env.store.ChatCount() != 2 {
		t.Fatalf("expected two chats, got %d", env.store.ChatCount())
	}
}

func TestRespondAcceptAndDecline(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	env.interests.Mark(ctx, "alice", "E1")
	env.interests.Mark(ctx, "bob", "E1")
	id := models.MatchIDFor("alice", "bob", "E1")

	if _, err := env.promoter.Respond(ctx, id, "carol", true); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}

	m, err := env.promoter.Respond(ctx, id, "alice", true)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m.Status != models.MatchStatusAccepted {
		t.Fatalf("expected accepted, got %s", m.Status)
	}
	if _, err := env.promoter.Respond(ctx, id, "bob", true); err != nil {
		t.Fatalf("repeated accept must be idempotent: %v", err)
	}
	if _, err := env.promoter.Respond(ctx, id, "bob", false); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict declining an accepted match, got %v", err)
	}
	if _, err := env.promoter.Respond(ctx, "missing", "bob", true); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeclineDeactivatesChat(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	env.interests.Mark(ctx, "alice", "E1")
	env.interests.Mark(ctx, "bob", "E1")

	m, err := env.promoter.Respond(ctx, models.MatchIDFor("alice", "bob", "E1"), "bob", false)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if m.Status != models.MatchStatusDeclined {
		t.Fatalf("expected declined, got %s", m.Status)
	}
	chat, err := env.chats.GetChat(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("chat must not be deleted: %v", err)
	}
	if chat.IsActive {
		t.Fatal("expected chat to be deactivated")
	}
	if _, err := env.promoter.OpenChat(ctx, m.ID, "alice"); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict opening a declined match chat, got %v", err)
	}
}

func TestReconcileProvisionsMissingChats(t *testing.T) {
	flaky := &flakyChats{}
	flaky.failures.Store(1000)
	env := newTestEnv(t, envOptions{
		wrapChats: func(c repository.ChatRepository) repository.ChatRepository {
			flaky.ChatRepository = c
			return flaky
		},
	})
	ctx := context.Background()

	env.interests.Mark(ctx, "alice", "E1")
	if err := env.interests.Mark(ctx, "bob", "E1"); err != nil {
		t.Fatalf("mark must succeed even when provisioning fails: %v", err)
	}
	matches, _ := env.promoter.MatchesForUser(ctx, "alice")
	if len(matches) != 1 {
		t.Fatalf("expected the match to be stored, got %d", len(matches))
	}
	if env.store.ChatCount() != 0 {
		t.Fatal("expected no chat while the store is failing")
	}

	flaky.failures.Store(0)
	res, err := env.promoter.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Provisioned != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if env.store.ChatCount() != 1 {
		t.Fatalf("expected chat after reconcile, got %d", env.store.ChatCount())
	}

	res, _ = env.promoter.Reconcile(ctx)
	if res.Provisioned != 0 {
		t.Fatalf("second pass must be a no-op, got %+v", res)
	}
}

func TestReconcileExpiresStaleMatches(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	env.interests.Mark(ctx, "alice", "E1")
	env.interests.Mark(ctx, "bob", "E1")
	env.interests.Unmark(ctx, "alice", "E1")

	env.promoter.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	res, err := env.promoter.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Expired != 1 {
		t.Fatalf("expected one expired match, got %+v", res)
	}
	m, _ := env.repos.Match.GetByID(ctx, models.MatchIDFor("alice", "bob", "E1"))
	if m.Status != models.MatchStatusExpired {
		t.Fatalf("expected expired, got %s", m.Status)
	}
}

func TestMatchPublishesToBothUsers(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	alice, bob := &recorder{}, &recorder{}
	s1 := env.hub.Subscribe(MatchesKey("alice"), alice.add)
	s2 := env.hub.Subscribe(ChatsKey("bob"), bob.add)
	defer s1.Cancel()
	defer s2.Cancel()
	waitFor(t, "initial snapshots", func() bool { return alice.count() == 1 && bob.count() == 1 })

	env.interests.Mark(ctx, "alice", "E1")
	env.interests.Mark(ctx, "bob", "E1")

	waitFor(t, "alice match list", func() bool { return len(alice.last().Matches) == 1 })
	waitFor(t, "bob chat list", func() bool { return len(bob.last().Chats) == 1 })
}

func TestReconcilePromotesPairWhoseMatchFailedToStore(t *testing.T) {
	flaky := &flakyMatches{}
	env := newTestEnv(t, envOptions{wrapMatches: wrapFlakyMatches(flaky)})
	ctx := context.Background()

	env.interests.Mark(ctx, "alice", "E1")
	flaky.createFailures.Store(int32(testRetry.MaxAttempts))
	if err := env.interests.Mark(ctx, "bob", "E1"); err != nil {
		t.Fatalf("mark must succeed even when the match store fails: %v", err)
	}
	if matches, _ := env.promoter.MatchesForUser(ctx, "alice"); len(matches) != 0 {
		t.Fatalf("expected no match while the store is failing, got %d", len(matches))
	}

	res, err := env.promoter.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Promoted != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	matches, _ := env.promoter.MatchesForUser(ctx, "bob")
	if len(matches) != 1 || !matches[0].IsMutual {
		t.Fatalf("expected one mutual match after reconcile, got %+v", matches)
	}
	if env.store.ChatCount() != 1 {
		t.Fatalf("expected chat after reconcile, got %d", env.store.ChatCount())
	}

	res, _ = env.promoter.Reconcile(ctx)
	if res.Promoted != 0 || res.Provisioned != 0 {
		t.Fatalf("second pass must be a no-op, got %+v", res)
	}
}

func TestReconcileDemotesMatchWhoseUnmarkFailed(t *testing.T) {
	flaky := &flakyMatches{}
	env := newTestEnv(t, envOptions{wrapMatches: wrapFlakyMatches(flaky)})
	ctx := context.Background()
	env.interests.Mark(ctx, "alice", "E1")
	env.interests.Mark(ctx, "bob", "E1")
	id := models.MatchIDFor("alice", "bob", "E1")

	flaky.refreshFailures.Store(int32(testRetry.MaxAttempts))
	if err := env.interests.Unmark(ctx, "bob", "E1"); err != nil {
		t.Fatalf("unmark: %v", err)
	}
	m, _ := env.repos.Match.GetByID(ctx, id)
	if !m.IsMutual {
		t.Fatal("expected the failed demotion to leave the match mutual")
	}
	if err := env.chats.Deactivate(ctx, models.ChatIDFor("alice", "bob")); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	res, err := env.promoter.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Demoted != 1 || res.Provisioned != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	m, _ = env.repos.Match.GetByID(ctx, id)
	if m.IsMutual {
		t.Fatal("expected reconcile to clear mutual")
	}
	chat, err := env.chats.GetChat(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.IsActive {
		t.Fatal("chat of a retracted match must not be reactivated")
	}
}

func TestRepeatedUnmarkDemotesMatch(t *testing.T) {
	flaky := &flakyMatches{}
	env := newTestEnv(t, envOptions{wrapMatches: wrapFlakyMatches(flaky)})
	ctx := context.Background()
	env.interests.Mark(ctx, "alice", "E1")
	env.interests.Mark(ctx, "bob", "E1")
	id := models.MatchIDFor("alice", "bob", "E1")

	flaky.refreshFailures.Store(int32(testRetry.MaxAttempts))
	env.interests.Unmark(ctx, "bob", "E1")
	if m, _ := env.repos.Match.GetByID(ctx, id); !m.IsMutual {
		t.Fatal("expected the failed demotion to leave the match mutual")
	}

	if err := env.interests.Unmark(ctx, "bob", "E1"); err != nil {
		t.Fatalf("repeated unmark: %v", err)
	}
	if m, _ := env.repos.Match.GetByID(ctx, id); m.IsMutual {
		t.Fatal("expected the repeated unmark to clear mutual")
	}
}

func TestExpiredMatchStaysClosedAfterRemark(t *testing.T) {
	flaky := &flakyChats{}
	flaky.failures.Store(1000)
	env := newTestEnv(t, envOptions{
		wrapChats: func(c repository.ChatRepository) repository.ChatRepository {
			flaky.ChatRepository = c
			return flaky
		},
	})
	ctx := context.Background()
	id := models.MatchIDFor("alice", "bob", "E1")

	env.interests.Mark(ctx, "alice", "E1")
	env.interests.Mark(ctx, "bob", "E1")
	env.interests.Unmark(ctx, "alice", "E1")

	env.promoter.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if res, _ := env.promoter.Reconcile(ctx); res.Expired != 1 {
		t.Fatalf("expected one expired match, got %+v", res)
	}
	env.promoter.now = time.Now

	if err := env.interests.Mark(ctx, "alice", "E1"); err != nil {
		t.Fatalf("mark again: %v", err)
	}
	flaky.failures.Store(0)
	res, err := env.promoter.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Promoted != 0 || res.Provisioned != 0 {
		t.Fatalf("expired match must not be reopened, got %+v", res)
	}
	if env.store.ChatCount() != 0 {
		t.Fatalf("expected no chat, got %d", env.store.ChatCount())
	}
	m, _ := env.repos.Match.GetByID(ctx, id)
	if m.Status != models.MatchStatusExpired || !m.IsMutual {
		t.Fatalf("expected mutual expired match, got %+v", m)
	}
	if _, err := env.promoter.OpenChat(ctx, id, "alice"); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict opening an expired match chat, got %v", err)
	}
}

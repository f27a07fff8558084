package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dance-match-backend/internal/models"
	"dance-match-backend/internal/repository"
	apperrors "dance-match-backend/pkg/errors"

	"github.com/rs/zerolog/log"
)

// MatchPromoter turns mutual interest into matches and provisions their chats
type MatchPromoter struct {
	events     repository.EventCatalog
	interests  repository.InterestRepository
	matches    repository.MatchRepository
	profiles   repository.ProfileRepository
	chats      *ChatProvisioner
	policy     PairingPolicy
	similarity SimilarityFunc
	publisher  Publisher
	retry      RetryPolicy
	matchTTL   time.Duration
	now        func() time.Time
}

// MatchPromoterOptions holds the tunables of a MatchPromoter
type MatchPromoterOptions struct {
	Policy     PairingPolicy
	Similarity SimilarityFunc
	Retry      RetryPolicy
	MatchTTL   time.Duration
}

// NewMatchPromoter creates a new match promoter
func NewMatchPromoter(repos *repository.Repositories, chats *ChatProvisioner, publisher Publisher, opts MatchPromoterOptions) *MatchPromoter {
	if opts.Policy == nil {
		opts.Policy = PeerPolicy{}
	}
	if opts.Similarity == nil {
		opts.Similarity = Similarity
	}
	return &MatchPromoter{
		events:     repos.Event,
		interests:  repos.Interest,
		matches:    repos.Match,
		profiles:   repos.Profile,
		chats:      chats,
		policy:     opts.Policy,
		similarity: opts.Similarity,
		publisher:  publisher,
		retry:      opts.Retry,
		matchTTL:   opts.MatchTTL,
		now:        time.Now,
	}
}

// OnMark promotes every pair userID now completes for the event
func (p *MatchPromoter) OnMark(ctx context.Context, event *models.Event, userID string) error {
	interested, err := retry(ctx, p.retry, "list_interested", func() ([]string, error) {
		return p.interests.UsersForEvent(ctx, event.ID)
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, other := range p.policy.Complements(event, userID, interested) {
		if err := p.promote(ctx, event.ID, userID, other); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *MatchPromoter) promote(ctx context.Context, eventID, a, b string) error {
	u1, u2 := models.CanonicalPair(a, b)
	id := models.MatchIDFor(u1, u2, eventID)
	now := p.now()

	candidate := &models.Match{
		ID:              id,
		UserID1:         u1,
		UserID2:         u2,
		EventID:         eventID,
		Status:          models.MatchStatusPending,
		MatchStrength:   p.strength(ctx, u1, u2),
		CreatedAt:       now,
		LastInteraction: now,
		IsMutual:        true,
	}
	created, err := retry(ctx, p.retry, "create_match", func() (bool, error) {
		return p.matches.CreateIfMutual(ctx, candidate)
	})
	if err != nil {
		return err
	}

	match := candidate
	if created {
		log.Info().
			Str("match_id", id).
			Str("event_id", eventID).
			Str("user_id1", u1).
			Str("user_id2", u2).
			Float64("match_strength", candidate.MatchStrength).
			Msg("Match created")
	} else {
		match, err = retry(ctx, p.retry, "refresh_match", func() (*models.Match, error) {
			return p.matches.RefreshMutual(ctx, id, now)
		})
		if isNotFound(err) {
			// one of the marks was retracted before the match could be created
			return nil
		}
		if err != nil {
			return err
		}
	}
	p.publisher.Publish(ctx, MatchesKey(u1), MatchesKey(u2))

	if match.OpenForChat() {
		return p.provision(ctx, match)
	}
	return nil
}

func (p *MatchPromoter) provision(ctx context.Context, match *models.Match) error {
	_, err := p.chats.CreateOrGetChat(ctx, []string{match.UserID1, match.UserID2}, match.EventID, match.ID)
	if err != nil {
		log.Error().
			Err(err).
			Str("match_id", match.ID).
			Msg("Match left pending without chat")
		return err
	}
	return nil
}

// strength scores the pair; a missing profile scores as an empty one
func (p *MatchPromoter) strength(ctx context.Context, u1, u2 string) float64 {
	profile := func(userID string) *models.Profile {
		prof, err := retry(ctx, p.retry, "get_profile", func() (*models.Profile, error) {
			return p.profiles.GetProfile(ctx, userID)
		})
		if err != nil {
			if !isNotFound(err) {
				log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load profile")
			}
			return &models.Profile{UserID: userID}
		}
		return prof
	}
	return p.similarity(profile(u1), profile(u2))
}

// OnUnmark clears mutuality of every match of userID for the event
func (p *MatchPromoter) OnUnmark(ctx context.Context, userID, eventID string) error {
	matches, err := retry(ctx, p.retry, "list_matches", func() ([]*models.Match, error) {
		return p.matches.ListByUser(ctx, userID)
	})
	if err != nil {
		return err
	}

	now := p.now()
	var errs []error
	for _, m := range matches {
		if m.EventID != eventID || !m.IsMutual {
			continue
		}
		id := m.ID
		refreshed, err := retry(ctx, p.retry, "refresh_match", func() (*models.Match, error) {
			return p.matches.RefreshMutual(ctx, id, now)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		log.Info().
			Str("match_id", id).
			Bool("is_mutual", refreshed.IsMutual).
			Msg("Match interest retracted")
		p.publisher.Publish(ctx, MatchesKey(m.UserID1), MatchesKey(m.UserID2))
	}
	return errors.Join(errs...)
}

// MatchesForUser lists the matches of a user, newest first
func (p *MatchPromoter) MatchesForUser(ctx context.Context, userID string) ([]*models.Match, error) {
	return retry(ctx, p.retry, "list_matches", func() ([]*models.Match, error) {
		return p.matches.ListByUser(ctx, userID)
	})
}

// Respond records a participant accepting or declining a pending match.
// Declining deactivates the pair's chat.
func (p *MatchPromoter) Respond(ctx context.Context, matchID, userID string, accept bool) (*models.Match, error) {
	match, err := retry(ctx, p.retry, "get_match", func() (*models.Match, error) {
		return p.matches.GetByID(ctx, matchID)
	})
	if err != nil {
		return nil, err
	}
	if !match.Involves(userID) {
		return nil, fmt.Errorf("user is not a participant of this match: %w", apperrors.ErrForbidden)
	}

	target := models.MatchStatusDeclined
	if accept {
		target = models.MatchStatusAccepted
	}
	if match.Status == target {
		return match, nil
	}
	if match.Status != models.MatchStatusPending {
		return nil, fmt.Errorf("match is %s: %w", match.Status, apperrors.ErrConflict)
	}

	now := p.now()
	ok, err := retry(ctx, p.retry, "update_match_status", func() (bool, error) {
		return p.matches.CompareAndSetStatus(ctx, matchID, models.MatchStatusPending, target, now)
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := p.matches.GetByID(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if current.Status == target {
			return current, nil
		}
		return nil, fmt.Errorf("match is %s: %w", current.Status, apperrors.ErrConflict)
	}
	match.Status = target
	match.LastInteraction = now

	log.Info().
		Str("match_id", matchID).
		Str("user_id", userID).
		Str("status", string(target)).
		Msg("Match answered")

	if target == models.MatchStatusDeclined {
		err := p.chats.Deactivate(ctx, models.ChatIDFor(match.UserID1, match.UserID2))
		if err != nil && !isNotFound(err) {
			log.Error().Err(err).Str("match_id", matchID).Msg("Failed to deactivate chat")
		}
	}
	p.publisher.Publish(ctx, MatchesKey(match.UserID1), MatchesKey(match.UserID2))
	return match, nil
}

// OpenChat provisions the chat of a mutual match on request of one of its
// participants. It retries a provisioning that failed after promotion.
func (p *MatchPromoter) OpenChat(ctx context.Context, matchID, userID string) (*models.Chat, error) {
	match, err := retry(ctx, p.retry, "get_match", func() (*models.Match, error) {
		return p.matches.GetByID(ctx, matchID)
	})
	if err != nil {
		return nil, err
	}
	if !match.Involves(userID) {
		return nil, fmt.Errorf("user is not a participant of this match: %w", apperrors.ErrForbidden)
	}
	if !match.OpenForChat() {
		return nil, fmt.Errorf("match is not open for chat: %w", apperrors.ErrConflict)
	}
	return p.chats.CreateOrGetChat(ctx, []string{match.UserID1, match.UserID2}, match.EventID, match.ID)
}

// ReconcileResult summarizes one reconciliation pass
type ReconcileResult struct {
	Promoted    int
	Demoted     int
	Provisioned int
	Failed      int
	Expired     int
}

// Reconcile repairs what failed on the mark and unmark paths. It promotes
// mutual pairs that have no mutual match, demotes matches whose marks are
// gone, provisions chats that mutual matches are still missing and expires
// pending matches idle for longer than the match TTL.
func (p *MatchPromoter) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	if err := p.promoteMissing(ctx, &res); err != nil {
		return res, err
	}

	mutual, err := p.matches.ListMutual(ctx)
	if err != nil {
		return res, err
	}
	for _, m := range mutual {
		demoted, err := p.demoteIfRetracted(ctx, m)
		if err != nil {
			res.Failed++
			continue
		}
		if demoted {
			res.Demoted++
			continue
		}

		chat, err := p.chats.GetChat(ctx, m.UserID1, m.UserID2)
		if err == nil && chat.IsActive {
			continue
		}
		if err != nil && !isNotFound(err) {
			res.Failed++
			continue
		}
		if err := p.provision(ctx, m); err != nil {
			res.Failed++
			continue
		}
		res.Provisioned++
	}

	if p.matchTTL > 0 {
		expired, err := p.matches.ExpireStale(ctx, p.now().Add(-p.matchTTL))
		if err != nil {
			return res, err
		}
		for _, m := range expired {
			log.Info().Str("match_id", m.ID).Msg("Match expired")
			p.publisher.Publish(ctx, MatchesKey(m.UserID1), MatchesKey(m.UserID2))
		}
		res.Expired = len(expired)
	}
	return res, nil
}

// promoteMissing runs the promotion of every interested pair whose match is
// absent or still non-mutual. Declined and expired matches are left alone.
func (p *MatchPromoter) promoteMissing(ctx context.Context, res *ReconcileResult) error {
	events, err := retry(ctx, p.retry, "list_events_with_interest", func() ([]string, error) {
		return p.interests.EventsWithInterest(ctx)
	})
	if err != nil {
		return err
	}

	for _, eventID := range events {
		event, err := retry(ctx, p.retry, "get_event", func() (*models.Event, error) {
			return p.events.GetEvent(ctx, eventID)
		})
		if isNotFound(err) {
			continue
		}
		if err != nil {
			res.Failed++
			continue
		}
		interested, err := retry(ctx, p.retry, "list_interested", func() ([]string, error) {
			return p.interests.UsersForEvent(ctx, eventID)
		})
		if err != nil {
			res.Failed++
			continue
		}
		existing, err := retry(ctx, p.retry, "list_event_matches", func() ([]*models.Match, error) {
			return p.matches.ListByEvent(ctx, eventID)
		})
		if err != nil {
			res.Failed++
			continue
		}

		settled := make(map[string]struct{}, len(existing))
		for _, m := range existing {
			if m.IsMutual || m.Status == models.MatchStatusDeclined || m.Status == models.MatchStatusExpired {
				settled[m.ID] = struct{}{}
			}
		}
		for _, userID := range interested {
			for _, other := range p.policy.Complements(event, userID, interested) {
				u1, u2 := models.CanonicalPair(userID, other)
				id := models.MatchIDFor(u1, u2, eventID)
				if _, ok := settled[id]; ok {
					continue
				}
				settled[id] = struct{}{}
				if err := p.promote(ctx, eventID, u1, u2); err != nil {
					res.Failed++
					continue
				}
				res.Promoted++
			}
		}
	}
	return nil
}

// demoteIfRetracted clears mutuality of a match one of whose marks is gone
func (p *MatchPromoter) demoteIfRetracted(ctx context.Context, m *models.Match) (bool, error) {
	for _, userID := range []string{m.UserID1, m.UserID2} {
		ok, err := retry(ctx, p.retry, "check_interest", func() (bool, error) {
			return p.interests.Exists(ctx, userID, m.EventID)
		})
		if err != nil {
			return false, err
		}
		if ok {
			continue
		}
		refreshed, err := retry(ctx, p.retry, "refresh_match", func() (*models.Match, error) {
			return p.matches.RefreshMutual(ctx, m.ID, p.now())
		})
		if err != nil {
			return false, err
		}
		if refreshed.IsMutual {
			return false, nil
		}
		log.Info().Str("match_id", m.ID).Msg("Match interest retracted")
		p.publisher.Publish(ctx, MatchesKey(m.UserID1), MatchesKey(m.UserID2))
		return true, nil
	}
	return false, nil
}

// RunReconciler calls Reconcile every interval until ctx is done
func (p *MatchPromoter) RunReconciler(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := p.Reconcile(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Reconcile failed")
				continue
			}
			if res.Promoted+res.Demoted+res.Provisioned+res.Failed+res.Expired > 0 {
				log.Info().
					Int("promoted", res.Promoted).
					Int("demoted", res.Demoted).
					Int("provisioned", res.Provisioned).
					Int("failed", res.Failed).
					Int("expired", res.Expired).
					Msg("Reconcile finished")
			}
		}
	}
}

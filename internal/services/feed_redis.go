package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "dance-match-backend/pkg/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultHealthInterval = 15 * time.Second

// RedisFeed shares published keys between instances over Redis pub/sub
type RedisFeed struct {
	rdb            *redis.Client
	channel        string
	origin         string
	maxAttempts    uint
	healthInterval time.Duration
	retry          RetryPolicy
}

type feedMessage struct {
	Origin string `json:"origin"`
	Keys   []Key  `json:"keys"`
}

// NewRedisFeed creates a feed on channel. After maxAttempts consecutive
// connection failures the sink is switched to degraded.
func NewRedisFeed(rdb *redis.Client, channel string, maxAttempts uint, retry RetryPolicy) *RedisFeed {
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	return &RedisFeed{
		rdb:            rdb,
		channel:        channel,
		origin:         uuid.New().String(),
		maxAttempts:    maxAttempts,
		healthInterval: defaultHealthInterval,
		retry:          retry,
	}
}

// Publish sends keys to every other instance
func (f *RedisFeed) Publish(ctx context.Context, keys []Key) error {
	data, err := json.Marshal(feedMessage{Origin: f.origin, Keys: keys})
	if err != nil {
		return fmt.Errorf("failed to marshal feed message: %w", err)
	}
	if err := f.rdb.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish feed message: %w", err)
	}
	return nil
}

// Run keeps a subscription to the channel open until ctx is done. Every
// (re)connect triggers a resync so subscribers replay the latest snapshot.
func (f *RedisFeed) Run(ctx context.Context, sink FeedSink) error {
	b := f.retry.backOff()
	var failures uint
	for {
		err := f.session(ctx, sink, func() {
			failures = 0
			b.Reset()
		})
		if ctx.Err() != nil {
			return nil
		}

		failures++
		log.Warn().Err(err).Uint("failures", failures).Str("channel", f.channel).Msg("Change feed disconnected")
		if failures >= f.maxAttempts {
			sink.SetDegraded(true)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.NextBackOff()):
		}
	}
}

func (f *RedisFeed) session(ctx context.Context, sink FeedSink, connected func()) error {
	ps := f.rdb.Subscribe(ctx, f.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrTransportLost, err)
	}
	connected()
	sink.SetDegraded(false)
	sink.Resync()
	log.Info().Str("channel", f.channel).Msg("Change feed connected")

	health := time.NewTicker(f.healthInterval)
	defer health.Stop()

	ch := ps.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-health.C:
			if err := f.rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("%w: %w", apperrors.ErrTransportLost, err)
			}
		case raw, ok := <-ch:
			if !ok {
				return apperrors.ErrTransportLost
			}
			switch msg := raw.(type) {
			case *redis.Subscription:
				// the client re-subscribed after a silent reconnect
				if msg.Kind == "subscribe" {
					sink.Resync()
				}
			case *redis.Message:
				f.dispatch(sink, msg.Payload)
			}
		}
	}
}

func (f *RedisFeed) dispatch(sink FeedSink, payload string) {
	var msg feedMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		log.Error().Err(err).Msg("Failed to parse feed message")
		return
	}
	if msg.Origin == f.origin {
		return
	}
	sink.Notify(msg.Keys...)
}

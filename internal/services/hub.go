package services

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Loader reads the current snapshot of a key from the store
type Loader interface {
	Load(ctx context.Context, key Key) (Snapshot, error)
}

// FeedSink receives change notifications from a Feed
type FeedSink interface {
	Notify(keys ...Key)
	Resync()
	SetDegraded(degraded bool)
}

// Feed carries published keys between service instances
type Feed interface {
	Publish(ctx context.Context, keys []Key) error
	// Run blocks until ctx is done, forwarding remote changes to sink
	Run(ctx context.Context, sink FeedSink) error
}

// Hub fans out state changes to subscribers. Every subscriber owns one
// delivery goroutine that reloads its key from the store on each change, so
// a subscriber never observes an older value after a newer one.
type Hub struct {
	loader     Loader
	feed       Feed
	retryDelay time.Duration

	mu       sync.RWMutex
	subs     map[Key]map[*Subscription]struct{}
	degraded atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub reading snapshots through loader
func NewHub(loader Loader, feed Feed, retryDelay time.Duration) *Hub {
	if feed == nil {
		feed = LocalFeed{}
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		loader:     loader,
		feed:       feed,
		retryDelay: retryDelay,
		subs:       make(map[Key]map[*Subscription]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Subscription is the cancel handle of one Subscribe call
type Subscription struct {
	hub    *Hub
	key    Key
	cb     func(Snapshot)
	wake   chan struct{}
	replay atomic.Bool
	ctx    context.Context
	stop   context.CancelFunc

	cbMu       sync.Mutex
	cancelled  bool
	retryTimer *time.Timer
	once       sync.Once
}

// Subscribe delivers the current snapshot of key to cb, then every later
// change until Cancel. Callbacks of one subscription never run concurrently.
func (h *Hub) Subscribe(key Key, cb func(Snapshot)) *Subscription {
	ctx, stop := context.WithCancel(h.ctx)
	s := &Subscription{
		hub:  h,
		key:  key,
		cb:   cb,
		wake: make(chan struct{}, 1),
		ctx:  ctx,
		stop: stop,
	}

	h.mu.Lock()
	if _, ok := h.subs[key]; !ok {
		h.subs[key] = make(map[*Subscription]struct{})
	}
	h.subs[key][s] = struct{}{}
	h.mu.Unlock()

	s.signal()
	go s.run()

	log.Debug().Str("key", key.String()).Msg("Subscription registered")
	return s
}

// Key returns the subscribed key
func (s *Subscription) Key() Key {
	return s.key
}

// Cancel stops delivery. When Cancel returns no callback is running and none
// will run again. It must not be called from the subscription's own callback.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.remove(s)
		s.stop()
		s.cbMu.Lock()
		s.cancelled = true
		s.stopRetryLocked()
		s.cbMu.Unlock()
		log.Debug().Str("key", s.key.String()).Msg("Subscription cancelled")
	})
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// scheduleRetry arms a single reload after the hub retry delay
func (s *Subscription) scheduleRetry() {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.cancelled {
		return
	}
	s.stopRetryLocked()
	s.retryTimer = time.AfterFunc(s.hub.retryDelay, s.signal)
}

func (s *Subscription) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
}

func (s *Subscription) run() {
	defer func() {
		s.cbMu.Lock()
		s.stopRetryLocked()
		s.cbMu.Unlock()
	}()

	var last *Snapshot
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		replay := s.replay.Swap(false)
		snap, err := s.hub.loader.Load(s.ctx, s.key)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("key", s.key.String()).Msg("Failed to load snapshot")
			// Keep showing the last store truth, flagged, and try again later.
			if last != nil {
				snap = *last
			} else {
				snap = Snapshot{Key: s.key}
			}
			snap.Degraded = true
			replay = true
			s.scheduleRetry()
		} else {
			snap.Degraded = s.hub.degraded.Load()
		}

		if !replay && last != nil && sameSnapshot(last, &snap) {
			continue
		}
		snap.Replay = replay && last != nil

		s.cbMu.Lock()
		if s.cancelled {
			s.cbMu.Unlock()
			return
		}
		s.cb(snap)
		s.cbMu.Unlock()

		stored := snap
		last = &stored
	}
}

func sameSnapshot(a, b *Snapshot) bool {
	return a.Degraded == b.Degraded &&
		reflect.DeepEqual(a.Interested, b.Interested) &&
		reflect.DeepEqual(a.Matches, b.Matches) &&
		reflect.DeepEqual(a.Chats, b.Chats)
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.key]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.key)
		}
	}
}

// Publish wakes local subscribers of keys and forwards keys to the feed
func (h *Hub) Publish(ctx context.Context, keys ...Key) {
	if len(keys) == 0 {
		return
	}
	h.Notify(keys...)
	if err := h.feed.Publish(ctx, keys); err != nil {
		log.Error().Err(err).Int("keys", len(keys)).Msg("Failed to publish change to feed")
	}
}

// Notify wakes the local subscribers of keys
func (h *Hub) Notify(keys ...Key) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range keys {
		for s := range h.subs[key] {
			s.signal()
		}
	}
}

// Resync makes every subscriber reload and re-deliver its snapshot
func (h *Hub) Resync() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.subs {
		for s := range set {
			s.replay.Store(true)
			s.signal()
		}
	}
}

// SetDegraded flags every snapshot while the feed is unavailable
func (h *Hub) SetDegraded(degraded bool) {
	if h.degraded.Swap(degraded) == degraded {
		return
	}
	if degraded {
		log.Warn().Msg("Change feed unavailable, subscriptions degraded")
	} else {
		log.Info().Msg("Change feed recovered")
	}
	h.Resync()
}

// Degraded reports whether live delivery is currently degraded
func (h *Hub) Degraded() bool {
	return h.degraded.Load()
}

// Run forwards remote changes from the feed until ctx is done
func (h *Hub) Run(ctx context.Context) error {
	return h.feed.Run(ctx, h)
}

// SubscriberCount returns the number of live subscriptions for key
func (h *Hub) SubscriberCount(key Key) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// Close cancels every subscription
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Subscription
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		s.Cancel()
	}
	h.cancel()
}

// LocalFeed is the feed of a single instance: Publish already woke every
// subscriber, so there is nothing to forward.
type LocalFeed struct{}

func (LocalFeed) Publish(context.Context, []Key) error { return nil }

func (LocalFeed) Run(ctx context.Context, _ FeedSink) error {
	<-ctx.Done()
	return nil
}

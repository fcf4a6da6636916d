package cache

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/auth"
	"github.com/quotevault/quotevault/internal/core"
)

// Resettable is any cache able to drop its in-memory view
// synchronously. Mirrors implement it.
type Resettable interface {
	Reset()
}

// Lifecycle guarantees no cached data survives a sign-out/sign-in
// boundary or leaks between identities. It reacts to auth events: the
// synchronous part of the reaction (fetch gate up, in-memory views
// dropped) runs before the transition call returns, while storage
// sweeping runs on a single consumer goroutine that processes events
// strictly in arrival order and releases the gate when done.
type Lifecycle struct {
	queryCache *QueryCache
	store      core.KeyValueStore
	prewarm    *Prewarm
	mirrors    []Resettable
	logger     *zap.Logger

	mirrorsMu sync.Mutex

	events chan auth.Event
	stopCh chan struct{}
	done   sync.WaitGroup
}

// NewLifecycle creates the lifecycle manager and starts its consumer.
// Register it with the session via Notify.
func NewLifecycle(queryCache *QueryCache, store core.KeyValueStore, prewarm *Prewarm, logger *zap.Logger) *Lifecycle {
	l := &Lifecycle{
		queryCache: queryCache,
		store:      store,
		prewarm:    prewarm,
		logger:     logger,
		events:     make(chan auth.Event, 16),
		stopCh:     make(chan struct{}),
	}
	l.done.Add(1)
	go l.run()
	return l
}

// Track registers a mirror whose in-memory view must be dropped at
// every identity transition.
func (l *Lifecycle) Track(m Resettable) {
	l.mirrorsMu.Lock()
	l.mirrors = append(l.mirrors, m)
	l.mirrorsMu.Unlock()
}

// Notify is the auth.Listener. It runs on the transition goroutine:
// it closes the fetch gate and drops in-memory views before returning,
// then queues the storage sweep. A fetch for the new identity issued
// immediately after the transition therefore blocks until the sweep
// lands, even though the sweep itself is asynchronous.
func (l *Lifecycle) Notify(evt auth.Event) {
	l.logger.Info("Auth state changed, clearing caches", zap.String("event", string(evt.Type)))

	l.queryCache.HoldFetches()
	l.queryCache.Clear()

	l.mirrorsMu.Lock()
	for _, m := range l.mirrors {
		m.Reset()
	}
	l.mirrorsMu.Unlock()

	select {
	case l.events <- evt:
	case <-l.stopCh:
		l.queryCache.ReleaseFetches()
	}
}

// Stop shuts down the consumer after draining queued events.
func (l *Lifecycle) Stop() {
	close(l.stopCh)
	l.done.Wait()
}

func (l *Lifecycle) run() {
	defer l.done.Done()
	for {
		select {
		case evt := <-l.events:
			l.sweep(evt)
			l.queryCache.ReleaseFetches()
		case <-l.stopCh:
			// Drain so every HoldFetches is matched.
			for {
				select {
				case evt := <-l.events:
					l.sweep(evt)
					l.queryCache.ReleaseFetches()
				default:
					return
				}
			}
		}
	}
}

// sweep removes every persisted cache key for the previous identity.
// Clearing twice for the same transition is harmless.
func (l *Lifecycle) sweep(evt auth.Event) {
	ctx := context.Background()

	keys, err := l.store.Keys(ctx, "")
	if err != nil {
		l.logger.Warn("Failed to enumerate cache keys", zap.Error(err))
		keys = nil
	}

	var doomed []string
	for _, key := range keys {
		if strings.HasPrefix(key, MirrorPrefix) || strings.HasPrefix(key, "@quotevault_") {
			doomed = append(doomed, key)
		}
	}
	if len(doomed) > 0 {
		if err := l.store.RemoveMany(ctx, doomed); err != nil {
			l.logger.Warn("Failed to remove cache keys", zap.Error(err))
		}
	}

	if l.prewarm != nil {
		// Redundant with the prefix sweep, but keeps the marker gone
		// even if key enumeration failed above.
		l.prewarm.Clear(ctx)
	}

	l.logger.Info("Caches cleared",
		zap.String("event", string(evt.Type)),
		zap.Int("keys_removed", len(doomed)))
}

package feed

import (
	"context"
	"sync"
	"time"

	"github.com/waveline-app/notify-core/pkg/logger"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultStaleAfter   = 45 * time.Second
)

// Pinger reports connectivity to the feed transport.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Liveness owns every change-feed subscription in the process. It detects
// offline/online transitions by pinging the transport on a timer; after a
// reconnect it tears down and re-establishes all subscriptions, since
// subscriptions that survived a long outage cannot be trusted. It also runs a
// polling backstop: when no feed event has been observed within the staleness
// window, a manual refresh is triggered to catch silently dropped
// connections. The poll never replaces the feed as the primary path.
type Liveness struct {
	feed    Feed
	pinger  Pinger
	refresh func(ctx context.Context)

	pollEvery  time.Duration
	staleAfter time.Duration

	mu        sync.Mutex
	specs     []Subscription
	handles   []Handle
	gen       int
	online    bool
	started   bool
	lastEvent time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewLiveness builds a manager over f. refresh may be nil when no polling
// backstop is wanted (tests mostly).
func NewLiveness(f Feed, pinger Pinger, refresh func(ctx context.Context), pollEvery, staleAfter time.Duration) *Liveness {
	if pollEvery <= 0 {
		pollEvery = DefaultPollInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Liveness{
		feed:       f,
		pinger:     pinger,
		refresh:    refresh,
		pollEvery:  pollEvery,
		staleAfter: staleAfter,
	}
}

// Register records a subscription spec. When the manager is already started
// the subscription is established immediately; otherwise it is established by
// Start. Handlers registered here are generation-guarded: events delivered by
// a subscription that has since been torn down are discarded, never applied.
func (l *Liveness) Register(ctx context.Context, spec Subscription) error {
	l.mu.Lock()
	l.specs = append(l.specs, spec)
	started := l.started
	gen := l.gen
	l.mu.Unlock()

	if !started {
		return nil
	}
	h, err := l.feed.Subscribe(ctx, l.guarded(spec, gen))
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen { // torn down while we were subscribing
		h.Close()
		return nil
	}
	l.handles = append(l.handles, h)
	return nil
}

// Start establishes all registered subscriptions and launches the monitor
// loop. Returns the first subscription error; in that case the manager starts
// offline and the monitor keeps retrying.
func (l *Liveness) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.started = true
	l.cancel = cancel
	l.done = make(chan struct{})
	l.lastEvent = time.Now()
	l.mu.Unlock()

	err := l.resubscribeAll(runCtx)
	go l.monitor(runCtx)
	return err
}

// Stop synchronously tears down every subscription and halts the monitor.
func (l *Liveness) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.started = false
	l.gen++ // in-flight events from old subscriptions are now stale
	handles := l.handles
	l.handles = nil
	l.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

// Online reports whether the feed transport was reachable at the last check.
func (l *Liveness) Online() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.online
}

func (l *Liveness) guarded(spec Subscription, gen int) Subscription {
	inner := spec.Handler
	spec.Handler = func(ev Event) {
		l.mu.Lock()
		stale := gen != l.gen
		if !stale {
			l.lastEvent = time.Now()
		}
		l.mu.Unlock()
		if stale {
			return
		}
		inner(ev)
	}
	return spec
}

func (l *Liveness) resubscribeAll(ctx context.Context) error {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	old := l.handles
	l.handles = nil
	specs := make([]Subscription, len(l.specs))
	copy(specs, l.specs)
	l.mu.Unlock()

	for _, h := range old {
		h.Close()
	}

	var firstErr error
	var handles []Handle
	for _, spec := range specs {
		h, err := l.feed.Subscribe(ctx, l.guarded(spec, gen))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Log.WithError(err).WithField("table", spec.Table).Error("Feed subscription failed")
			continue
		}
		handles = append(handles, h)
	}

	l.mu.Lock()
	l.handles = append(l.handles, handles...)
	l.online = firstErr == nil
	l.lastEvent = time.Now()
	l.mu.Unlock()
	return firstErr
}

func (l *Liveness) monitor(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.check(ctx)
		}
	}
}

// check is one monitor tick: probe connectivity, resubscribe after an
// offline->online transition, and fire the polling backstop when the feed has
// been silent past the staleness window.
func (l *Liveness) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := l.pinger.Ping(pingCtx)
	cancel()

	l.mu.Lock()
	wasOnline := l.online
	l.online = err == nil
	stale := err == nil && time.Since(l.lastEvent) > l.staleAfter
	l.mu.Unlock()

	switch {
	case err != nil:
		if wasOnline {
			logger.Log.WithError(err).Warn("Change feed offline")
		}
	case !wasOnline:
		logger.Log.Info("Change feed back online, resubscribing")
		if rerr := l.resubscribeAll(ctx); rerr != nil {
			logger.Log.WithError(rerr).Error("Feed resubscription failed")
		}
		l.triggerRefresh(ctx)
	case stale:
		logger.Log.Debug("No feed events within staleness window, polling")
		l.triggerRefresh(ctx)
	}
}

func (l *Liveness) triggerRefresh(ctx context.Context) {
	if l.refresh == nil {
		return
	}
	l.refresh(ctx)
	l.mu.Lock()
	l.lastEvent = time.Now()
	l.mu.Unlock()
}

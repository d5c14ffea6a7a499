package feed

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/waveline-app/notify-core/pkg/logger"
)

const channelPrefix = "feed:"

// RedisFeed carries change-feed events over Redis pub/sub. The domain backend
// publishes one message per committed row mutation on "feed:<table>"; each
// Subscribe call holds its own PubSub connection so a slow handler never
// stalls another subscription.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

// Ping reports connectivity to the feed transport. Used by the liveness
// manager to detect offline/online transitions.
func (f *RedisFeed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Publish emits ev on the table's channel.
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, channelPrefix+ev.Table, payload).Err()
}

// Subscribe attaches sub to its table channel and starts the delivery
// goroutine. The returned handle stops delivery synchronously: once Close
// returns, the handler will not be invoked again even for messages already
// received from Redis.
func (f *RedisFeed) Subscribe(ctx context.Context, sub Subscription) (Handle, error) {
	ps := f.client.Subscribe(ctx, channelPrefix+sub.Table)
	// Force the SUBSCRIBE round-trip so a dead connection fails here, not
	// silently in the delivery loop.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	h := &redisHandle{ps: ps}
	go h.loop(sub)
	return h, nil
}

type redisHandle struct {
	ps     *redis.PubSub
	closed atomic.Bool
}

func (h *redisHandle) Close() {
	h.closed.Store(true)
	_ = h.ps.Close()
}

func (h *redisHandle) loop(sub Subscription) {
	for msg := range h.ps.Channel() {
		if h.closed.Load() {
			return
		}
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Log.WithError(err).WithField("table", sub.Table).Warn("Dropping malformed feed event")
			continue
		}
		if !sub.wants(ev) {
			continue
		}
		if h.closed.Load() {
			return
		}
		sub.Handler(ev)
	}
}

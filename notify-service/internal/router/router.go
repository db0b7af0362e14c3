// Package router records which connection, on which process, is subscribed
// to which project, and carries project events between processes.
//
// A subscription is the Redis key "{prefix}:{connID}:subscription:{projectID}".
// Connection ids embed the owning process's instance id, so keys from
// different processes never collide.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/metrics"
	"github.com/weiawesome/picpipe/pkg/pubsub"
)

const (
	subscriptionMarker = ":subscription:"
	scanCount          = 256
)

// Router is shared by every process through Redis and the broadcast channel.
type Router struct {
	client *redis.Client
	bus    pubsub.PubSub
	prefix string
}

func New(client *redis.Client, bus pubsub.PubSub, prefix string) *Router {
	if prefix == "" {
		prefix = "websocket"
	}
	return &Router{client: client, bus: bus, prefix: prefix}
}

func (r *Router) key(connID, projectID string) string {
	return r.prefix + ":" + connID + subscriptionMarker + projectID
}

// Add records the subscription. The existence check and the write are one
// SET NX, so concurrent duplicates cannot both succeed.
func (r *Router) Add(ctx context.Context, connID, projectID string) error {
	ok, err := r.client.SetNX(ctx, r.key(connID, projectID), "", 0).Result()
	if err != nil {
		return fmt.Errorf("add subscription: %w", err)
	}
	if !ok {
		return domain.ErrAlreadySubscribed
	}
	return nil
}

// Remove deletes the subscription; zero keys deleted means there was none.
func (r *Router) Remove(ctx context.Context, connID, projectID string) error {
	n, err := r.client.Del(ctx, r.key(connID, projectID)).Result()
	if err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	if n == 0 {
		return domain.ErrNotInSubscriptions
	}
	return nil
}

// Exists reports whether the subscription is recorded.
func (r *Router) Exists(ctx context.Context, connID, projectID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(connID, projectID)).Result()
	if err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	return n == 1, nil
}

// RemoveAll deletes every subscription of connID and returns how many there were.
func (r *Router) RemoveAll(ctx context.Context, connID string) (int, error) {
	keys, err := r.scan(ctx, r.prefix+":"+escapeGlob(connID)+subscriptionMarker+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("remove subscriptions of %s: %w", connID, err)
	}
	return int(n), nil
}

// Subscribers returns the ids of every connection, on any process,
// subscribed to projectID.
func (r *Router) Subscribers(ctx context.Context, projectID string) ([]string, error) {
	keys, err := r.scan(ctx, r.prefix+":*"+subscriptionMarker+escapeGlob(projectID))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	head := r.prefix + ":"
	for _, k := range keys {
		rest := strings.TrimPrefix(k, head)
		connID, _, ok := strings.Cut(rest, subscriptionMarker)
		if ok && connID != "" {
			ids = append(ids, connID)
		}
	}
	return ids, nil
}

// Subscriptions returns the project ids connID is subscribed to.
func (r *Router) Subscriptions(ctx context.Context, connID string) ([]string, error) {
	keys, err := r.scan(ctx, r.prefix+":"+escapeGlob(connID)+subscriptionMarker+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if i := strings.LastIndex(k, subscriptionMarker); i >= 0 {
			ids = append(ids, k[i+len(subscriptionMarker):])
		}
	}
	return ids, nil
}

func (r *Router) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return keys, nil
}

// Broadcast publishes an event for projectID to every process.
func (r *Router) Broadcast(ctx context.Context, projectID, eventType string, payload interface{}) error {
	ev, err := pubsub.NewEvent(eventType, projectID, payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	if err := r.bus.Publish(ctx, pubsub.ProjectChannel(projectID), ev); err != nil {
		return fmt.Errorf("broadcast %s: %w", projectID, err)
	}
	metrics.Get().Broadcasts.WithLabelValues("sent").Inc()
	return nil
}

// Listen subscribes to every project channel. The returned channel closes
// when ctx is cancelled.
func (r *Router) Listen(ctx context.Context) (<-chan *pubsub.Event, error) {
	return r.bus.SubscribePattern(ctx, pubsub.PatternProjectEvents)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

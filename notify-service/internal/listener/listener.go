// Package listener turns broker messages into bus events.
package listener

import (
	"context"
	"time"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/metrics"
)

// Sink receives events; the bus implements it.
type Sink interface {
	Submit(ctx context.Context, msg domain.Message) error
}

const defaultSubmitTimeout = 5 * time.Second

// submit hands ev to the sink, giving up after timeout so a stopped bus
// cannot wedge the consumer.
func submit(ctx context.Context, sink Sink, timeout time.Duration, ev domain.Event) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sink.Submit(ctx, ev)
}

func count(listener, outcome string) {
	metrics.Get().ListenerMessages.WithLabelValues(listener, outcome).Inc()
}

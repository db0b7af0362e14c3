// Package subscription is the public face of the subscription subsystem:
// it ties the process-local hub to the cross-process router.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/weiawesome/picpipe/notify-service/internal/hub"
	"github.com/weiawesome/picpipe/notify-service/internal/router"
	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/metrics"
	"github.com/weiawesome/picpipe/pkg/pubsub"
)

// Manager is constructed once per process and shared by the transport and
// the bus handlers.
type Manager struct {
	instanceID string
	hub        *hub.Hub
	router     *router.Router
}

func NewManager(instanceID string, h *hub.Hub, r *router.Router) *Manager {
	return &Manager{instanceID: instanceID, hub: h, router: r}
}

// NewConnID returns an id unique across processes.
func (m *Manager) NewConnID() string {
	return m.instanceID + "." + uuid.NewString()
}

// Connect registers client on this process and returns its id.
func (m *Manager) Connect(client *hub.Client) string {
	m.hub.Register(client)
	return client.ID
}

// Disconnect drops every subscription of connID, then the local connection.
// It is safe to call more than once.
func (m *Manager) Disconnect(ctx context.Context, connID string) error {
	n, err := m.router.RemoveAll(ctx, connID)
	m.hub.Unregister(connID)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Debug().Str(log.FieldConnID, connID).Int("subscriptions", n).Msg("connection closed")
	return nil
}

// Subscribe records interest of connID in projectID. It fails with
// domain.ErrAlreadySubscribed for an existing pair.
func (m *Manager) Subscribe(ctx context.Context, connID, projectID string) error {
	return m.router.Add(ctx, connID, projectID)
}

// Unsubscribe removes interest of connID in projectID. It fails with
// domain.ErrNotInSubscriptions when there was none.
func (m *Manager) Unsubscribe(ctx context.Context, connID, projectID string) error {
	return m.router.Remove(ctx, connID, projectID)
}

// Publish broadcasts payload to subscribers of projectID on every process,
// this one included. Local delivery happens only when the broadcast comes
// back through Run, so each subscriber receives the payload once.
func (m *Manager) Publish(ctx context.Context, projectID, eventType string, payload interface{}) error {
	return m.router.Broadcast(ctx, projectID, eventType, payload)
}

// Send queues a direct reply on a local connection.
func (m *Manager) Send(connID string, data []byte) error {
	return m.hub.Send(connID, data)
}

// Run delivers broadcast events to local subscribers until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	events, err := m.router.Listen(ctx)
	if err != nil {
		return fmt.Errorf("listen for project events: %w", err)
	}

	log.L().Info().Str(log.FieldInstance, m.instanceID).Msg("delivering project events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("project event stream closed")
			}
			metrics.Get().Broadcasts.WithLabelValues("received").Inc()
			m.Deliver(ctx, ev)
		}
	}
}

// Deliver sends ev to every subscriber of its project connected to this
// process. A connection that cannot take the message is disconnected and
// delivery continues with the rest.
func (m *Manager) Deliver(ctx context.Context, ev *pubsub.Event) {
	l := log.Ctx(ctx).With().Str(log.FieldProjectID, ev.ProjectID).Logger()
	mt := metrics.Get()

	ids, err := m.router.Subscribers(ctx, ev.ProjectID)
	if err != nil {
		l.Error().Err(err).Msg("failed to look up subscribers")
		return
	}

	for _, id := range ids {
		err := m.hub.Send(id, ev.Payload)
		if errors.Is(err, hub.ErrNotConnected) {
			continue // owned by another process
		}
		if err != nil {
			mt.Deliveries.WithLabelValues("failed").Inc()
			l.Warn().Err(err).Str(log.FieldConnID, id).Msg("delivery failed, closing connection")
			if err := m.Disconnect(ctx, id); err != nil {
				l.Error().Err(err).Str(log.FieldConnID, id).Msg("cleanup after failed delivery")
			}
			continue
		}
		mt.Deliveries.WithLabelValues("delivered").Inc()
	}
}

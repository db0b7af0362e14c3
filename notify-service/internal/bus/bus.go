// Package bus dispatches commands and events inside one process.
package bus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/metrics"
)

// CommandHandler runs a command synchronously in the caller's goroutine.
type CommandHandler func(ctx context.Context, cmd domain.Command) error

// EventHandler runs off the caller's goroutine; its error is logged, never
// returned.
type EventHandler func(ctx context.Context, ev domain.Event) error

// ErrorHook observes handler failures. Panics arrive as *PanicError.
type ErrorHook func(ctx context.Context, msg domain.Message, err error)

// PanicError wraps a value recovered from a handler.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

var ErrNoHandler = errors.New("no handler registered for command")

// Bus routes each command to exactly one handler and each event to all of
// its handlers. Handlers are registered at startup, before Run or Handle.
//
// Events with the same OrderKey form a lane: they are handled one at a time
// in the order they were started. Lanes for different keys run concurrently.
type Bus struct {
	commands map[domain.CommandKind]CommandHandler
	events   map[domain.EventKind][]EventHandler
	inbox    chan domain.Message
	onError  ErrorHook
	inflight sync.WaitGroup

	mu    sync.Mutex
	lanes map[string][]queued // present while a goroutine drains the key
}

type queued struct {
	ctx context.Context
	ev  domain.Event
}

// Option configures a Bus.
type Option func(*Bus)

// WithErrorHook sets a hook called for every handler failure.
func WithErrorHook(h ErrorHook) Option {
	return func(b *Bus) { b.onError = h }
}

// WithInboxSize sets how many submitted messages may wait for Run.
func WithInboxSize(n int) Option {
	return func(b *Bus) { b.inbox = make(chan domain.Message, n) }
}

func New(opts ...Option) *Bus {
	b := &Bus{
		commands: make(map[domain.CommandKind]CommandHandler),
		events:   make(map[domain.EventKind][]EventHandler),
		inbox:    make(chan domain.Message, 256),
		lanes:    make(map[string][]queued),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleCommand registers the handler for kind. A second registration for
// the same kind panics.
func (b *Bus) HandleCommand(kind domain.CommandKind, h CommandHandler) {
	if h == nil {
		panic("bus: nil command handler")
	}
	if _, dup := b.commands[kind]; dup {
		panic("bus: multiple registrations for command " + kind.String())
	}
	b.commands[kind] = h
}

// On appends a handler for kind. An event's handlers run one after another
// in registration order.
func (b *Bus) On(kind domain.EventKind, h EventHandler) {
	if h == nil {
		panic("bus: nil event handler")
	}
	b.events[kind] = append(b.events[kind], h)
}

// Handle processes msgs and anything they lead to, in FIFO order, before
// returning. Command errors are returned (joined); events are only queued
// on their lane, use Wait to wait for their handlers.
func (b *Bus) Handle(ctx context.Context, msgs ...domain.Message) error {
	queue := append([]domain.Message(nil), msgs...)

	var errs []error
	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]

		switch m := msg.(type) {
		case domain.Command:
			metrics.Get().BusMessages.WithLabelValues(m.Kind.String()).Inc()
			if err := b.runCommand(ctx, m); err != nil {
				errs = append(errs, err)
			}
		case domain.Event:
			metrics.Get().BusMessages.WithLabelValues(m.Kind().String()).Inc()
			b.startEvent(ctx, m)
		default:
			errs = append(errs, fmt.Errorf("bus: unsupported message %T", msg))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) runCommand(ctx context.Context, cmd domain.Command) (err error) {
	h, ok := b.commands[cmd.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, cmd.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			b.fail(ctx, cmd, cmd.Kind.String(), err)
		}
	}()

	if err := h(ctx, cmd); err != nil {
		if !domain.IsClientError(err) {
			b.fail(ctx, cmd, cmd.Kind.String(), err)
		}
		return err
	}
	return nil
}

// startEvent queues ev behind earlier events sharing its OrderKey. Handlers
// get a context that survives cancellation of ctx so that shutdown lets
// them finish.
func (b *Bus) startEvent(ctx context.Context, ev domain.Event) {
	if len(b.events[ev.Kind()]) == 0 {
		log.Ctx(ctx).Debug().Str(log.FieldMessage, ev.Kind().String()).Msg("no handlers for event")
		return
	}

	item := queued{ctx: context.WithoutCancel(ctx), ev: ev}
	b.inflight.Add(1)

	key := ev.OrderKey()
	if key == "" {
		go func() {
			defer b.inflight.Done()
			b.dispatch(item.ctx, item.ev)
		}()
		return
	}

	b.mu.Lock()
	pending, draining := b.lanes[key]
	b.lanes[key] = append(pending, item)
	b.mu.Unlock()

	if !draining {
		go b.drain(key)
	}
}

// drain runs the lane for key until it is empty, then removes it.
func (b *Bus) drain(key string) {
	for {
		b.mu.Lock()
		pending := b.lanes[key]
		if len(pending) == 0 {
			delete(b.lanes, key)
			b.mu.Unlock()
			return
		}
		item := pending[0]
		b.lanes[key] = pending[1:]
		b.mu.Unlock()

		b.dispatch(item.ctx, item.ev)
		b.inflight.Done()
	}
}

// dispatch runs every handler of ev in registration order. A failing or
// panicking handler does not stop the ones after it.
func (b *Bus) dispatch(ctx context.Context, ev domain.Event) {
	for i, h := range b.events[ev.Kind()] {
		b.runEventHandler(ctx, ev, i, h)
	}
}

func (b *Bus) runEventHandler(ctx context.Context, ev domain.Event, i int, h EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			b.fail(ctx, ev, ev.Kind().String(), &PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	if err := h(ctx, ev); err != nil {
		b.fail(ctx, ev, ev.Kind().String(), fmt.Errorf("handler %d: %w", i, err))
	}
}

func (b *Bus) fail(ctx context.Context, msg domain.Message, kind string, err error) {
	metrics.Get().BusHandlerFailures.WithLabelValues(kind).Inc()

	evt := log.Ctx(ctx).Error().Err(err).Str(log.FieldMessage, kind)
	var pe *PanicError
	if errors.As(err, &pe) {
		evt = evt.Bytes("stack", pe.Stack)
	}
	evt.Msg("bus handler failed")

	if b.onError != nil {
		b.onError(ctx, msg, err)
	}
}

// Submit hands msg to Run. It is safe for concurrent use and blocks only
// while the inbox is full.
func (b *Bus) Submit(ctx context.Context, msg domain.Message) error {
	select {
	case b.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles submitted messages one at a time until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-b.inbox:
			if err := b.Handle(ctx, msg); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("submitted message failed")
			}
		}
	}
}

// Wait blocks until every queued event has been handled.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

package events

import (
	"context"
	"sync"

	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

// Event is anything the in-process bus can carry. DedupeKey identifies the
// affected entity so buffered scopes can coalesce repeats.
type Event interface {
	EventName() string
	DedupeKey() string
}

// Handler reacts to one event. A failing handler never fails the operation
// that published the event; the bus logs the error and moves on.
type Handler func(ctx context.Context, evt Event) error

// Bus is a synchronous in-process dispatcher. Handlers run in registration
// order on the publisher's goroutine.
type Bus struct {
	mtx      sync.RWMutex
	handlers map[string][]Handler
	logg     *logger.Logger
}

func NewBus(logg *logger.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logg:     logg,
	}
}

// Subscribe registers a handler for the named event.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

// Publish dispatches immediately, unless the context carries an open buffer
// in which case the event is held until the buffer flushes.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if buf := bufferFrom(ctx); buf != nil {
		buf.add(evt)
		return
	}
	b.dispatch(ctx, evt)
}

func (b *Bus) dispatch(ctx context.Context, evt Event) {
	b.mtx.RLock()
	handlers := b.handlers[evt.EventName()]
	b.mtx.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, evt); err != nil && b.logg != nil {
			logCtx := b.logg.WithFields(ctx, map[string]any{
				"event":      evt.EventName(),
				"dedupe_key": evt.DedupeKey(),
			})
			b.logg.Error(logCtx, "event handler failed", err)
		}
	}
}

type bufferCtxKey struct{}

// Buffer holds events published inside a bulk scope. Events coalesce by
// (name, dedupe key) keeping first-publish order.
type Buffer struct {
	mtx   sync.Mutex
	order []string
	byKey map[string]Event
}

func newBuffer() *Buffer {
	return &Buffer{byKey: make(map[string]Event)}
}

func (buf *Buffer) add(evt Event) {
	buf.mtx.Lock()
	defer buf.mtx.Unlock()
	key := evt.EventName() + "|" + evt.DedupeKey()
	if _, seen := buf.byKey[key]; !seen {
		buf.order = append(buf.order, key)
	}
	buf.byKey[key] = evt
}

func (buf *Buffer) drain() []Event {
	buf.mtx.Lock()
	defer buf.mtx.Unlock()
	drained := make([]Event, 0, len(buf.order))
	for _, key := range buf.order {
		drained = append(drained, buf.byKey[key])
	}
	buf.order = nil
	buf.byKey = make(map[string]Event)
	return drained
}

// WithBuffer opens a buffered scope on the context. The caller must Flush
// the returned buffer when the scope ends.
func WithBuffer(ctx context.Context) (context.Context, *Buffer) {
	buf := newBuffer()
	return context.WithValue(ctx, bufferCtxKey{}, buf), buf
}

func bufferFrom(ctx context.Context) *Buffer {
	if ctx == nil {
		return nil
	}
	buf, _ := ctx.Value(bufferCtxKey{}).(*Buffer)
	return buf
}

// Flush dispatches everything buffered during the scope. The context passed
// here must not carry the buffer or events would re-enter it.
func (b *Bus) Flush(ctx context.Context, buf *Buffer) {
	if buf == nil {
		return
	}
	for _, evt := range buf.drain() {
		b.dispatch(ctx, evt)
	}
}

// Package bridge carries session events to consumers, one stream per request id.
//
// A consumer subscribes to the request it tracks before the session starts
// and receives that request's events in emission order: one start event,
// chunk events, then exactly one end or error event, after which the
// subscription channel is closed and the stream is removed. Events for other
// request ids never reach it.
//
// Delivery is lossless: Emit waits for every subscriber to accept the event
// unless the subscriber has unsubscribed or the stream has been abandoned.
package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/observability"
	"github.com/entrhq/scout/pkg/types"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Bridge routes events to the subscribers of their request id. It is safe for
// concurrent use.
type Bridge struct {
	streams map[string]*stream
	logger  *zap.Logger
	buffer  int
	nextID  atomic.Uint64
	mu      sync.Mutex
}

type stream struct {
	subs      map[uint64]*Subscription
	abandoned chan struct{}
	requestID string
	// emitMu serializes delivery so subscribers see events in emission order.
	emitMu sync.Mutex
	// closed is set under Bridge.mu once a terminal event was delivered or the
	// stream was abandoned.
	closed bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(b *Bridge) {
		if n >= 0 {
			b.buffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates a bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		streams: make(map[string]*stream),
		logger:  zap.NewNop(),
		buffer:  DefaultBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription receives the events of one request id.
type Subscription struct {
	bridge    *Bridge
	ch        chan *types.StreamEvent
	done      chan struct{}
	requestID string
	id        uint64
	once      sync.Once
}

// Events returns the channel events are delivered on. It is closed after the
// terminal event or when the stream is abandoned.
func (s *Subscription) Events() <-chan *types.StreamEvent {
	return s.ch
}

// RequestID returns the request this subscription tracks.
func (s *Subscription) RequestID() string {
	return s.requestID
}

// Close unsubscribes. Pending emits to this subscriber are dropped. Close is
// idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bridge.unsubscribe(s)
	})
}

// Subscribe starts tracking requestID.
func (b *Bridge) Subscribe(requestID string) *Subscription {
	sub := &Subscription{
		bridge:    b,
		ch:        make(chan *types.StreamEvent, b.buffer),
		done:      make(chan struct{}),
		requestID: requestID,
		id:        b.nextID.Add(1),
	}

	b.mu.Lock()
	st, ok := b.streams[requestID]
	if !ok {
		st = &stream{
			subs:      make(map[uint64]*Subscription),
			abandoned: make(chan struct{}),
			requestID: requestID,
		}
		b.streams[requestID] = st
	}
	st.subs[sub.id] = sub
	b.mu.Unlock()

	observability.BridgeSubscribers.Inc()
	return sub
}

func (b *Bridge) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.streams[sub.requestID]
	if !ok {
		return
	}
	if _, ok := st.subs[sub.id]; !ok {
		return
	}
	delete(st.subs, sub.id)
	observability.BridgeSubscribers.Dec()
	if len(st.subs) == 0 && !st.closed {
		delete(b.streams, sub.requestID)
	}
}

// Active reports whether anyone is subscribed to requestID.
func (b *Bridge) Active(requestID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[requestID]
	return ok && len(st.subs) > 0
}

// EmitStart emits the start event of requestID.
func (b *Bridge) EmitStart(requestID string) {
	b.Emit(types.NewStartEvent(requestID))
}

// EmitChunk emits a text delta of requestID.
func (b *Bridge) EmitChunk(requestID, delta string) {
	b.Emit(types.NewChunkEvent(requestID, delta))
}

// EmitEnd emits the final response of requestID and closes its stream.
func (b *Bridge) EmitEnd(requestID string, response *types.Response) {
	b.Emit(types.NewEndEvent(requestID, response))
}

// EmitError emits a failure of requestID and closes its stream.
func (b *Bridge) EmitError(requestID, message string) {
	b.Emit(types.NewErrorEvent(requestID, message))
}

// Emit delivers event to the subscribers of its request id. Events for
// request ids nobody tracks, and events after a terminal event, are dropped.
func (b *Bridge) Emit(event *types.StreamEvent) {
	b.mu.Lock()
	st, ok := b.streams[event.RequestID]
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("dropping event for untracked request",
			zap.String("request_id", event.RequestID),
			zap.String("type", string(event.Type)))
		return
	}

	st.emitMu.Lock()
	defer st.emitMu.Unlock()

	b.mu.Lock()
	if st.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*Subscription, 0, len(st.subs))
	for _, sub := range st.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	if event.ID == "" {
		event.ID = ulid.Make().String()
	}

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		case <-sub.done:
		case <-st.abandoned:
			return
		}
	}

	if event.IsTerminal() {
		b.closeStream(st)
	}
}

// Abandon stops delivery for requestID. An emit blocked on it returns, later
// emits are dropped, and subscriber channels are closed without a terminal
// event.
func (b *Bridge) Abandon(requestID string) {
	b.mu.Lock()
	st, ok := b.streams[requestID]
	if !ok || st.closed {
		b.mu.Unlock()
		return
	}
	select {
	case <-st.abandoned:
		b.mu.Unlock()
		return
	default:
	}
	close(st.abandoned)
	b.mu.Unlock()

	// Wait for an in-flight emit to observe the abandonment before closing
	// channels it may be sending on.
	st.emitMu.Lock()
	defer st.emitMu.Unlock()
	b.closeStream(st)

	b.logger.Debug("stream abandoned", zap.String("request_id", requestID))
}

// closeStream must be called with st.emitMu held.
func (b *Bridge) closeStream(st *stream) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st.closed {
		return
	}
	st.closed = true
	for id, sub := range st.subs {
		close(sub.ch)
		delete(st.subs, id)
		observability.BridgeSubscribers.Dec()
	}
	if b.streams[st.requestID] == st {
		delete(b.streams, st.requestID)
	}
}

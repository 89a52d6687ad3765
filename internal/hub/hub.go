// Package hub serializes every connection lifecycle event and inbound frame
// through one goroutine before it reaches the collaboration core.
package hub

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

// DefaultQueueSize bounds the number of pending events.
const DefaultQueueSize = 1024

type eventKind int

const (
	eventConnect eventKind = iota
	eventFrame
	eventDisconnect
)

func (k eventKind) String() string {
	switch k {
	case eventConnect:
		return "connect"
	case eventFrame:
		return "frame"
	case eventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

type connectResult struct {
	sessionID string
	err       error
}

type event struct {
	kind   eventKind
	socket interfaces.Socket
	user   *types.User
	msg    *types.InboundMessage
	reply  chan connectResult
}

// Hub feeds connect, frame and disconnect events to the core in the order
// they were enqueued. Each event runs to completion before the next starts.
type Hub struct {
	core   interfaces.Collaboration
	logger *zap.Logger

	events chan event

	mu       sync.Mutex
	running  atomic.Bool
	shutdown chan struct{}
	done     chan struct{}

	processed atomic.Int64
}

// NewHub creates a stopped hub. queueSize <= 0 uses DefaultQueueSize.
func NewHub(core interfaces.Collaboration, queueSize int, logger *zap.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		core:   core,
		logger: logger.Named("hub"),
		events: make(chan event, queueSize),
	}
}

// Start launches the event loop. It stops when Stop is called or ctx ends.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running.Load() {
		return ErrHubAlreadyRunning
	}
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})
	h.running.Store(true)

	h.logger.Info("starting hub", zap.Int("queue_size", cap(h.events)))
	go h.run(ctx, h.shutdown, h.done)
	return nil
}

// Stop signals the loop and waits for it to exit. Events still queued are
// discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running.Load() {
		return ErrHubNotRunning
	}
	h.running.Store(false)
	close(h.shutdown)
	<-h.done

	h.logger.Info("hub stopped", zap.Int64("events_processed", h.processed.Load()))
	return nil
}

func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Pending reports how many events are waiting in the queue.
func (h *Hub) Pending() int {
	return len(h.events)
}

// Connect registers socket with the core and waits for its session ID.
// If ctx ends after the event was queued the core may still open the
// session, so callers must follow any error with Disconnect.
func (h *Hub) Connect(ctx context.Context, socket interfaces.Socket, user *types.User) (string, error) {
	reply := make(chan connectResult, 1)
	ev := event{kind: eventConnect, socket: socket, user: user, reply: reply}
	if err := h.enqueue(ctx, ev); err != nil {
		return "", err
	}

	h.mu.Lock()
	done := h.done
	h.mu.Unlock()

	select {
	case res := <-reply:
		return res.sessionID, res.err
	case <-done:
		return "", ErrHubNotRunning
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Route queues one inbound frame. It blocks while the queue is full so a
// busy core applies backpressure to the reader instead of losing frames.
func (h *Hub) Route(ctx context.Context, socket interfaces.Socket, msg *types.InboundMessage) error {
	return h.enqueue(ctx, event{kind: eventFrame, socket: socket, msg: msg})
}

// Disconnect queues the removal of socket's session.
func (h *Hub) Disconnect(ctx context.Context, socket interfaces.Socket) error {
	return h.enqueue(ctx, event{kind: eventDisconnect, socket: socket})
}

func (h *Hub) enqueue(ctx context.Context, ev event) error {
	h.mu.Lock()
	if !h.running.Load() {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	shutdown, done := h.shutdown, h.done
	h.mu.Unlock()

	select {
	case h.events <- ev:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	case <-done:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case ev := <-h.events:
			h.handle(ev)

		case <-shutdown:
			h.logger.Debug("hub shutdown requested")
			return

		case <-ctx.Done():
			h.logger.Debug("hub context cancelled")
			h.running.Store(false)
			return
		}
	}
}

func (h *Hub) handle(ev event) {
	defer h.processed.Inc()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered from panic while handling event",
				zap.Stringer("kind", ev.kind),
				zap.Any("panic", r))
			if ev.reply != nil {
				ev.reply <- connectResult{err: ErrEventFailed}
			}
		}
	}()

	switch ev.kind {
	case eventConnect:
		id, err := h.core.Connect(ev.socket, ev.user)
		ev.reply <- connectResult{sessionID: id, err: err}
	case eventFrame:
		h.core.Route(ev.socket, ev.msg)
	case eventDisconnect:
		h.core.Disconnect(ev.socket)
	}
}

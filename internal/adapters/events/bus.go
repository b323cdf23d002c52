package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
)

const DefaultCapacity = 1024

// Bus is a bounded broadcast ring. Publishers never block: when the ring
// wraps, the oldest undelivered events are overwritten and lagging
// subscribers learn about the loss through a LaggedError on their next
// Recv. Subscribers only see events published after they subscribed.
type Bus struct {
	mu     sync.Mutex
	buf    []domain.ExecutionEvent
	seq    uint64
	notify chan struct{}
	closed bool
	logger *slog.Logger
}

func NewBus(capacity int, logger *slog.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		buf:    make([]domain.ExecutionEvent, capacity),
		notify: make(chan struct{}),
		logger: logger.With("component", "event-bus"),
	}
}

func (b *Bus) Publish(event domain.ExecutionEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.buf[b.seq%uint64(len(b.buf))] = event
	b.seq++
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()
}

// Subscribe returns a cursor positioned at the current head; it receives
// only events published after this call.
func (b *Bus) Subscribe() ports.EventStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &stream{bus: b, cursor: b.seq}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}

// oldest returns the sequence number of the oldest retained event.
// Callers hold b.mu.
func (b *Bus) oldest() uint64 {
	capacity := uint64(len(b.buf))
	if b.seq > capacity {
		return b.seq - capacity
	}
	return 0
}

type stream struct {
	bus    *Bus
	cursor uint64
	done   bool
}

func (s *stream) Recv(ctx context.Context) (domain.ExecutionEvent, error) {
	if s.done {
		return domain.ExecutionEvent{}, domain.ErrBusClosed
	}
	for {
		s.bus.mu.Lock()
		if oldest := s.bus.oldest(); s.cursor < oldest {
			missed := oldest - s.cursor
			s.cursor = oldest
			s.bus.mu.Unlock()
			return domain.ExecutionEvent{}, &ports.LaggedError{Count: missed}
		}
		if s.cursor < s.bus.seq {
			event := s.bus.buf[s.cursor%uint64(len(s.bus.buf))]
			s.cursor++
			s.bus.mu.Unlock()
			return event, nil
		}
		if s.bus.closed {
			s.bus.mu.Unlock()
			return domain.ExecutionEvent{}, domain.ErrBusClosed
		}
		notify := s.bus.notify
		s.bus.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return domain.ExecutionEvent{}, ctx.Err()
		}
	}
}

func (s *stream) Close() {
	s.done = true
}

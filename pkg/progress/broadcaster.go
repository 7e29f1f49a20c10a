package progress

import (
	"sync"
	"time"
)

// DefaultBufferSize is the per-subscriber channel capacity. A subscriber
// that falls this far behind starts losing events rather than stalling the
// execution.
const DefaultBufferSize = 256

// Broadcaster delivers one execution's events, in publish order, to every
// current subscriber. Publishing never blocks: slow subscribers drop events.
// The broadcaster closes only after its terminal event has been published.
type Broadcaster struct {
	executionID string
	bufferSize  int

	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	nextSeq     uint64
	closed      bool
	dropped     uint64
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithBufferSize overrides the per-subscriber buffer capacity.
func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewBroadcaster creates a broadcaster for one execution.
func NewBroadcaster(executionID string, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		executionID: executionID,
		bufferSize:  DefaultBufferSize,
		subscribers: make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish assigns the next sequence number and fans the event out to all
// current subscribers. Delivery is non-blocking per subscriber; a full
// buffer drops the event for that subscriber only. Publishing after Close
// is a no-op.
func (b *Broadcaster) Publish(level string, typ EventType, message string, fields map[string]any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	event := Event{
		ExecutionID: b.executionID,
		Timestamp:   time.Now(),
		Level:       level,
		Type:        typ,
		Message:     message,
		Fields:      fields,
	}

	if b.closed {
		return event
	}

	event.Seq = b.nextSeq
	b.nextSeq++

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped++
		}
	}
	return event
}

// Subscribe registers an observer and returns its event channel plus an
// unsubscribe function. The channel receives events published after this
// call; there is no historical replay. Unsubscribing (or the broadcaster
// closing) closes the channel. Subscribing to a closed broadcaster returns
// an already-closed channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers[ch] = struct{}{}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subscribers[ch]; ok {
				delete(b.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, unsubscribe
}

// Close closes every subscriber channel and rejects further publishes.
// The engine calls this only after publishing the terminal event, so
// subscribers always observe the terminal event before the close (unless
// their buffer overflowed). Safe to call more than once.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// ExecutionID returns the execution this broadcaster belongs to.
func (b *Broadcaster) ExecutionID() string { return b.executionID }

// Subscribers returns the current observer count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many per-subscriber deliveries were lost to full
// buffers.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

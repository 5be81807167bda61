package pushbridge

import (
	"log/slog"
	"sync"
)

// defaultBusBuffer is the per-subscriber channel capacity.
const defaultBusBuffer = 16

// BusOption configures Bus.
type BusOption func(*busConfig)

type busConfig struct {
	logger *slog.Logger
	buffer int
}

// WithBusLogger sets a custom logger for Bus.
func WithBusLogger(logger *slog.Logger) BusOption {
	return func(c *busConfig) {
		c.logger = logger
	}
}

// WithBufferSize sets the per-subscriber channel capacity.
func WithBufferSize(n int) BusOption {
	return func(c *busConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// Bus is a single-producer, multi-consumer fan-out. Publish never blocks:
// each subscriber owns a buffered channel and values that do not fit are
// dropped. Late subscribers do not see earlier values.
type Bus[T any] struct {
	logger *slog.Logger
	buffer int

	mu     sync.Mutex
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

// TokenBus carries registration events.
type TokenBus = Bus[RegistrationEvent]

// NewBus creates an empty Bus.
func NewBus[T any](opts ...BusOption) *Bus[T] {
	cfg := busConfig{logger: slog.Default(), buffer: defaultBusBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bus[T]{
		logger: cfg.logger,
		buffer: cfg.buffer,
		subs:   make(map[uint64]chan T),
	}
}

// NewTokenBus creates a Bus for registration events.
func NewTokenBus(opts ...BusOption) *TokenBus {
	return NewBus[RegistrationEvent](opts...)
}

// Subscribe returns a channel receiving every value published from now on and
// a cancel func that unsubscribes and closes the channel. Subscribing to a
// closed Bus returns an already-closed channel.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers v to every current subscriber without blocking.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- v:
		default:
			b.logger.Warn("Subscriber buffer full, dropping event", "subscriber", id)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

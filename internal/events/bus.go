package events

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// OverflowPolicy decides what happens when a subscriber's buffer is full
type OverflowPolicy string

const (
	// DropOldest evicts the oldest buffered event to make room
	DropOldest OverflowPolicy = "drop_oldest"
	// Disconnect removes the subscriber and closes its channel
	Disconnect OverflowPolicy = "disconnect"
)

// ParseOverflowPolicy validates a configured policy name
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case DropOldest, Disconnect:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// ErrBusClosed is returned by Subscribe after Close
var ErrBusClosed = errors.New("event bus closed")

// Config holds configuration for the Bus
type Config struct {
	BufferSize int
	Policy     OverflowPolicy
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
		Policy:     DropOldest,
	}
}

// Subscription is one subscriber's bounded queue of events
type Subscription struct {
	project    string
	ch         chan Event
	dropped    atomic.Int64
	overflowed atomic.Bool
}

// Events is closed when the subscription is removed
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Project returns the project the subscription listens to
func (s *Subscription) Project() string {
	return s.project
}

// Dropped counts events evicted by the drop-oldest policy
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Overflowed reports whether the bus disconnected this subscriber
func (s *Subscription) Overflowed() bool {
	return s.overflowed.Load()
}

// Stats is a snapshot of the bus
type Stats struct {
	Subscribers map[string]int `json:"subscribers"`
	Total       int            `json:"total"`
	Dropped     int64          `json:"dropped"`
	Disconnects int64          `json:"disconnects"`
}

// Bus is the per-process registry of subscribers, keyed by project.
// Publishing holds one lock across the fan-out, so every subscriber of a
// project observes events in the same order.
type Bus struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool

	dropped     atomic.Int64
	disconnects atomic.Int64
}

// NewBus creates a new event bus
func NewBus(config Config, logger *zap.Logger) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.Policy == "" {
		config.Policy = DefaultConfig().Policy
	}
	return &Bus{
		config: config,
		logger: logger,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber for project. It receives every event
// published for project after Subscribe returns.
func (b *Bus) Subscribe(project string) (*Subscription, error) {
	sub := &Subscription{
		project: project,
		ch:      make(chan Event, b.config.BufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	set, ok := b.subs[project]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[project] = set
	}
	set[sub] = struct{}{}

	b.logger.Debug("subscriber added",
		zap.String("project", project),
		zap.Int("subscribers", len(set)))
	return sub, nil
}

// Unsubscribe removes sub and closes its channel. Safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub)
}

// remove must be called with mu held
func (b *Bus) remove(sub *Subscription) bool {
	set, ok := b.subs[sub.project]
	if !ok {
		return false
	}
	if _, ok := set[sub]; !ok {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.project)
	}
	close(sub.ch)
	return true
}

// Publish delivers event to every subscriber of project without blocking
func (b *Bus) Publish(project string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[project] {
		select {
		case sub.ch <- event:
			continue
		default:
		}
		b.overflow(sub, event)
	}
}

// overflow must be called with mu held
func (b *Bus) overflow(sub *Subscription, event Event) {
	switch b.config.Policy {
	case Disconnect:
		sub.overflowed.Store(true)
		b.remove(sub)
		b.disconnects.Add(1)
		b.logger.Warn("slow subscriber disconnected",
			zap.String("project", sub.project),
			zap.String("event", string(event.Kind)))
	default:
		// Only the consumer drains the channel, so after evicting one event
		// there is room for the new one.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
			b.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- event:
		default:
		}
		b.logger.Debug("subscriber buffer full, dropped oldest event",
			zap.String("project", sub.project),
			zap.Int64("dropped", sub.dropped.Load()))
	}
}

// Close removes every subscriber. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, set := range b.subs {
		for sub := range set {
			b.remove(sub)
		}
	}
	b.closed = true
}

// Stats returns a snapshot of subscriber counts and drops
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		Subscribers: make(map[string]int, len(b.subs)),
		Dropped:     b.dropped.Load(),
		Disconnects: b.disconnects.Load(),
	}
	for project, set := range b.subs {
		stats.Subscribers[project] = len(set)
		stats.Total += len(set)
	}
	return stats
}

package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventEnrollmentCreated   EventType = "enrollment.created"
	EventEnrollmentCancelled EventType = "enrollment.cancelled"
	EventEnrollmentCompleted EventType = "enrollment.completed"
	EventCertificateIssued   EventType = "enrollment.certificate_issued"
	EventCountersRepaired    EventType = "counters.repaired"
)

// Metadata keys
const (
	MetaUserID       = "user_id"
	MetaCourseID     = "course_id"
	MetaEnrollmentID = "enrollment_id"
)

// Event represents an enrollment lifecycle event
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Publisher accepts events; the service depends on this rather than *Broker
type Publisher interface {
	Publish(event *Event)
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans committed enrollment events out to subscribers. A slow
// subscriber loses events instead of stalling the service.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]filter
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
	dropped     atomic.Uint64
}

// filter is the set of types a subscriber wants; nil means all
type filter map[EventType]struct{}

func (f filter) accepts(t EventType) bool {
	if f == nil {
		return true
	}
	_, ok := f[t]
	return ok
}

const (
	queueSize      = 100
	subscriberSize = 50
)

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]filter),
		eventCh:     make(chan *Event, queueSize),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker; it is safe to call more than once
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	var f filter
	if len(types) > 0 {
		f = make(filter, len(types))
		for _, t := range types {
			f[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, subscriberSize)
	b.subscribers[sub] = f
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues an event for all subscribers. It never blocks the caller
// once the broker is stopped.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, f := range b.subscribers {
		if !f.accepts(event.Type) {
			continue
		}
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// NewEnrollmentEvent builds an event carrying the standard identifiers
func NewEnrollmentEvent(t EventType, userID, courseID, enrollmentID, message string) *Event {
	meta := map[string]string{
		MetaUserID:   userID,
		MetaCourseID: courseID,
	}
	if enrollmentID != "" {
		meta[MetaEnrollmentID] = enrollmentID
	}
	return &Event{Type: t, Message: message, Metadata: meta}
}

// internal/notifier/notifier.go
package notifier

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aetflow/aet-backend/internal/metrics"
	"github.com/aetflow/aet-backend/internal/models"
)

type EventType string

const (
	EventStatusUpdate  EventType = "STATUS_UPDATE"
	EventLicenseUpdate EventType = "LICENSE_UPDATE"
)

// EventData follows the push channel payload; every field is optional.
type EventData struct {
	LicenseID string           `json:"licenseId,omitempty"`
	RequestID string           `json:"requestId,omitempty"`
	State     models.StateCode `json:"state,omitempty"`
	Status    string           `json:"status,omitempty"`
}

type Event struct {
	Type      EventType `json:"type"`
	Data      EventData `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type Handler func(Event)

// Publisher is the write side used by services that change license status.
type Publisher interface {
	Publish(event Event)
}

const defaultBufferSize = 64

// Notifier broadcasts change events to every current subscriber.
//
// Delivery is at most once: a subscriber registered after Publish, or whose
// queue is full, misses the event and is expected to re-validate. Each
// subscriber gets events in publish order on its own goroutine, so a slow or
// panicking handler never holds up the others.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscription
	nextID      uint64
	closed      bool
	bufferSize  int
	logger      *logrus.Entry
	metrics     *metrics.Metrics
}

type subscription struct {
	id      uint64
	handler Handler
	queue   chan Event
	done    chan struct{}
}

type Option func(*Notifier)

func WithBufferSize(n int) Option {
	return func(nt *Notifier) {
		if n > 0 {
			nt.bufferSize = n
		}
	}
}

func WithLogger(logger *logrus.Entry) Option {
	return func(nt *Notifier) { nt.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(nt *Notifier) { nt.metrics = m }
}

func New(opts ...Option) *Notifier {
	n := &Notifier{
		subscribers: make(map[uint64]*subscription),
		bufferSize:  defaultBufferSize,
		logger:      logrus.WithField("component", "notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// OnChange registers handler and returns a function that removes it. Events
// already queued for the handler are still delivered after unsubscribing.
func (n *Notifier) OnChange(handler Handler) (unsubscribe func()) {
	sub := &subscription{
		handler: handler,
		queue:   make(chan Event, n.bufferSize),
		done:    make(chan struct{}),
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(sub.done)
		return func() {}
	}
	n.nextID++
	sub.id = n.nextID
	n.subscribers[sub.id] = sub
	n.mu.Unlock()

	go n.run(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			if _, ok := n.subscribers[sub.id]; ok {
				delete(n.subscribers, sub.id)
				close(sub.queue)
			}
			n.mu.Unlock()
		})
	}
}

// Publish hands event to every subscriber without waiting on any of them.
func (n *Notifier) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}

	n.metrics.ObserveEvent(string(event.Type))
	for _, sub := range n.subscribers {
		select {
		case sub.queue <- event:
		default:
			n.metrics.ObserveDrop()
			n.logger.WithFields(logrus.Fields{
				"subscriber": sub.id,
				"type":       event.Type,
				"state":      event.Data.State,
			}).Warn("Subscriber queue full, dropping event")
		}
	}
}

// StatusUpdate reports a per-state status change of a license request.
func StatusUpdate(requestID string, state models.StateCode, status models.StateRequestStatus) Event {
	return Event{
		Type: EventStatusUpdate,
		Data: EventData{RequestID: requestID, State: state, Status: string(status)},
	}
}

// LicenseUpdate reports an issued license being created or changing status.
func LicenseUpdate(licenseID string, state models.StateCode, status models.LicenseStatus) Event {
	return Event{
		Type: EventLicenseUpdate,
		Data: EventData{LicenseID: licenseID, State: state, Status: string(status)},
	}
}

func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers)
}

// Close stops accepting events and waits for queued deliveries to finish.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	subs := make([]*subscription, 0, len(n.subscribers))
	for id, sub := range n.subscribers {
		close(sub.queue)
		subs = append(subs, sub)
		delete(n.subscribers, id)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
}

func (n *Notifier) run(sub *subscription) {
	defer close(sub.done)
	for event := range sub.queue {
		n.deliver(sub, event)
	}
}

func (n *Notifier) deliver(sub *subscription, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			n.logger.WithFields(logrus.Fields{
				"subscriber": sub.id,
				"type":       event.Type,
				"panic":      rec,
			}).Error("Subscriber panicked handling event")
		}
	}()
	sub.handler(event)
}

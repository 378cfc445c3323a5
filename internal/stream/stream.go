// package stream fans out job log lines and lifecycle events to live subscribers.
//
// Every job has its own topic holding the most recent entries in a fixed-size ring. The [AllTopic] topic
// receives every entry from every job plus job lifecycle events.
//
// Subscribers read from a bounded channel. When a subscriber falls behind, its oldest undelivered entry
// is dropped to make room for the newest, so a slow reader never blocks a job.
package stream

import (
	"slices"
	"sync"
	"time"
)

// AllTopic receives every published entry.
const AllTopic = "*"

// DefaultBufferSize is the number of recent entries kept per topic.
const DefaultBufferSize = 100

// Kind separates log lines from lifecycle events.
type Kind string

const (
	KindLog   Kind = "log"
	KindEvent Kind = "event"
)

// Lifecycle events published on [AllTopic].
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	EventCleared = "cleared"
)

// Entry is one line in a job's stream.
type Entry struct {
	Seq     uint64         `json:"seq"`
	JobID   string         `json:"job_id,omitempty"`
	Time    time.Time      `json:"time"`
	Kind    Kind           `json:"kind"`
	Level   string         `json:"level,omitempty"`
	Phase   string         `json:"phase,omitempty"`
	Event   string         `json:"event,omitempty"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

type topic struct {
	ring   []Entry
	subs   map[*Subscription]struct{}
	closed bool
}

// Broker holds every topic. The zero value is not usable; call [NewBroker].
type Broker struct {
	mu     sync.Mutex
	size   int
	seq    uint64
	topics map[string]*topic
}

// NewBroker creates a broker keeping size entries per topic.
func NewBroker(size int) *Broker {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Broker{
		size:   size,
		topics: map[string]*topic{AllTopic: newTopic()},
	}
}

func newTopic() *topic {
	return &topic{subs: make(map[*Subscription]struct{})}
}

func (b *Broker) topic(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = newTopic()
		b.topics[name] = t
	}
	return t
}

// Publish stamps e with the next sequence number and delivers it.
//
// Log entries with a JobID go to that job's topic and to [AllTopic]; everything else goes to [AllTopic] only.
func (b *Broker) Publish(e Entry) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	e.Seq = b.seq
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindLog
	}

	if e.Kind == KindLog && e.JobID != "" {
		b.deliver(b.topic(e.JobID), e)
	}
	b.deliver(b.topics[AllTopic], e)

	return e
}

func (b *Broker) deliver(t *topic, e Entry) {
	t.ring = append(t.ring, e)
	if len(t.ring) > b.size {
		t.ring = slices.Clone(t.ring[len(t.ring)-b.size:])
	}
	for sub := range t.subs {
		sub.push(e)
	}
}

// Subscribe returns the topic's recent entries and a subscription for everything published after them.
//
// Subscribing to a closed topic returns its backlog and an already-closed subscription.
func (b *Broker) Subscribe(name string) ([]Entry, *Subscription) {
	return b.SubscribeBuffered(name, b.size)
}

// SubscribeBuffered is [Broker.Subscribe] with an explicit channel capacity.
func (b *Broker) SubscribeBuffered(name string, capacity int) ([]Entry, *Subscription) {
	if capacity <= 0 {
		capacity = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(name)
	backlog := slices.Clone(t.ring)

	ch := make(chan Entry, capacity)
	sub := &Subscription{C: ch, ch: ch, broker: b, topic: name}
	if t.closed {
		sub.closeLocked()
		return backlog, sub
	}

	t.subs[sub] = struct{}{}
	return backlog, sub
}

// Recent returns a copy of the topic's buffered entries.
func (b *Broker) Recent(name string) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[name]; ok {
		return slices.Clone(t.ring)
	}
	return nil
}

// CloseTopic ends every subscription to a job's topic. Its backlog is kept.
func (b *Broker) CloseTopic(name string) {
	if name == AllTopic {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(name)
	t.closed = true
	for sub := range t.subs {
		sub.closeLocked()
	}
	clear(t.subs)
}

// Forget drops a job's topic and its backlog.
func (b *Broker) Forget(name string) {
	if name == AllTopic {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[name]; ok {
		for sub := range t.subs {
			sub.closeLocked()
		}
		delete(b.topics, name)
	}
}

// Subscribers returns how many subscriptions are open on a topic.
func (b *Broker) Subscribers(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[name]; ok {
		return len(t.subs)
	}
	return 0
}

// Subscription is a live feed of one topic. C is closed when the topic closes or the subscription is closed.
type Subscription struct {
	C <-chan Entry

	ch      chan Entry
	broker  *Broker
	topic   string
	closed  bool
	dropped uint64
}

// push delivers e, discarding the oldest queued entry when the channel is full. Called with the broker lock held.
func (s *Subscription) push(e Entry) {
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Dropped returns how many entries were discarded because the reader fell behind.
func (s *Subscription) Dropped() uint64 {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return s.dropped
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	if t, ok := s.broker.topics[s.topic]; ok {
		delete(t.subs, s)
	}
	s.closeLocked()
}

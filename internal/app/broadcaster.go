package app

import (
	"sync"
	"time"

	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 32

// Subscription is one listener on a job's progress topic. Events arrive on C in
// publish order; C is closed after the terminal event.
type Subscription struct {
	C <-chan domain.ProgressEvent

	broadcaster *Broadcaster
	jobID       string
	id          uint64
	once        sync.Once
}

// Close stops delivery to the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.broadcaster.unsubscribe(s.jobID, s.id) })
}

type topic struct {
	last     domain.ProgressEvent
	hasLast  bool
	finished bool
	subs     map[uint64]chan domain.ProgressEvent
	updated  time.Time
}

// Broadcaster is a per-job registry of progress topics. Each topic keeps the one
// canonical last value for polling and fans events out to its subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	topics map[string]*topic
	buffer int
	nextID uint64
	logger *zap.Logger
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold buffer events
func NewBroadcaster(buffer int, logger *zap.Logger) *Broadcaster {
	if buffer < 1 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{
		topics: make(map[string]*topic),
		buffer: buffer,
		logger: logger,
	}
}

func (b *Broadcaster) topicLocked(jobID string) *topic {
	t, ok := b.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[uint64]chan domain.ProgressEvent), updated: time.Now()}
		b.topics[jobID] = t
	}
	return t
}

// Publish records event as the job's current value and delivers it to every
// subscriber. A subscriber whose buffer is full loses its oldest queued event;
// Publish never blocks on a slow reader. Events after a terminal one are dropped.
func (b *Broadcaster) Publish(event domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(event.JobID)
	if t.finished {
		b.logger.Debug("Dropping event for finished job", zap.String("job_id", event.JobID))
		return
	}

	t.last = event
	t.hasLast = true
	t.updated = time.Now()

	for _, ch := range t.subs {
		deliver(ch, event)
	}

	if event.IsTerminal() {
		t.finished = true
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
	}
}

// deliver sends without blocking; the caller is the only sender on ch
func deliver(ch chan domain.ProgressEvent, event domain.ProgressEvent) {
	select {
	case ch <- event:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- event
}

// Subscribe registers a listener on jobID. The current value, if any, is queued
// first. Subscribing to a finished job yields its terminal event on an already
// closed channel. The topic is created when the job is not known yet.
func (b *Broadcaster) Subscribe(jobID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(jobID)
	ch := make(chan domain.ProgressEvent, b.buffer)
	b.nextID++
	sub := &Subscription{C: ch, broadcaster: b, jobID: jobID, id: b.nextID}

	if t.hasLast {
		ch <- t.last
	}
	if t.finished {
		close(ch)
		return sub
	}

	t.subs[sub.id] = ch
	t.updated = time.Now()
	return sub
}

func (b *Broadcaster) unsubscribe(jobID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		return
	}
	if ch, ok := t.subs[id]; ok {
		close(ch)
		delete(t.subs, id)
	}
}

// Snapshot returns the current value of jobID
func (b *Broadcaster) Snapshot(jobID string) (domain.ProgressEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok || !t.hasLast {
		return domain.ProgressEvent{}, false
	}
	return t.last, true
}

// Subscribers returns the number of live subscriptions on jobID
func (b *Broadcaster) Subscribers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[jobID]; ok {
		return len(t.subs)
	}
	return 0
}

// Prune drops finished topics, and topics nobody published to or listens on,
// last touched before the cutoff. Returns the number removed.
func (b *Broadcaster) Prune(before time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, t := range b.topics {
		if !t.updated.Before(before) {
			continue
		}
		idle := !t.hasLast && len(t.subs) == 0
		if t.finished || idle {
			delete(b.topics, id)
			removed++
		}
	}
	return removed
}

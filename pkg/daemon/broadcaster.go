package daemon

import (
	"sync"

	"github.com/google/uuid"
)

// Subscriber receives progress events for one job, or for every job
// when JobID is empty.
type Subscriber struct {
	ID     string
	JobID  string
	Events chan ProgressEvent
}

// Broadcaster distributes job progress to subscribed connections.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers interest in a job's progress. An empty jobID
// subscribes to every job.
func (b *Broadcaster) Subscribe(jobID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	sub := &Subscriber{
		ID:     uuid.New().String(),
		JobID:  jobID,
		Events: make(chan ProgressEvent, 100),
	}
	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify sends an event to all matching subscribers. A slow subscriber
// drops events rather than stalling the job.
func (b *Broadcaster) Notify(ev ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subscribers {
		if sub.JobID != "" && sub.JobID != ev.JobID {
			continue
		}
		select {
		case sub.Events <- ev:
		default:
			// Channel full, event dropped
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

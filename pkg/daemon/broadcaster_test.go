package daemon_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hegelab/hegel/pkg/daemon"
	"github.com/hegelab/hegel/pkg/hegel/sweep"
)

func TestBroadcaster_Subscribe(t *testing.T) {
	b := daemon.NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe("job-1")
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "job-1", sub.JobID)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroadcaster_Notify_Delivers(t *testing.T) {
	b := daemon.NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe("job-1")
	b.Notify(daemon.ProgressEvent{
		JobID:    "job-1",
		State:    daemon.StateRunning,
		Progress: sweep.Progress{PointsDone: 3, PointsTotal: 10},
	})

	select {
	case ev := <-sub.Events:
		assert.Equal(t, "job-1", ev.JobID)
		assert.Equal(t, 3, ev.Progress.PointsDone)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event not received")
	}
}

func TestBroadcaster_Notify_FiltersByJob(t *testing.T) {
	b := daemon.NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe("job-1")
	b.Notify(daemon.ProgressEvent{JobID: "job-2", State: daemon.StateRunning})

	select {
	case ev := <-sub.Events:
		t.Fatalf("unexpected event for %s", ev.JobID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_EmptyJobIDMatchesAll(t *testing.T) {
	b := daemon.NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe("")
	b.Notify(daemon.ProgressEvent{JobID: "job-1", State: daemon.StateRunning})
	b.Notify(daemon.ProgressEvent{JobID: "job-2", State: daemon.StateDone})

	assert.Equal(t, "job-1", (<-sub.Events).JobID)
	assert.Equal(t, "job-2", (<-sub.Events).JobID)
}

func TestBroadcaster_SlowSubscriberDropsEvents(t *testing.T) {
	b := daemon.NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe("job-1")
	// Overfill the buffer; Notify must never block.
	for i := 0; i < 200; i++ {
		b.Notify(daemon.ProgressEvent{JobID: "job-1", State: daemon.StateRunning})
	}
	assert.Len(t, sub.Events, cap(sub.Events))
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := daemon.NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe("job-1")
	b.Unsubscribe(sub.ID)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.Events
	assert.False(t, open)

	// Unknown id is a no-op.
	b.Unsubscribe("not-there")
}

func TestBroadcaster_Close(t *testing.T) {
	b := daemon.NewBroadcaster()

	sub := b.Subscribe("")
	b.Close()

	_, open := <-sub.Events
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())

	// After close subscriptions and notifies are refused.
	assert.Nil(t, b.Subscribe("job-1"))
	b.Notify(daemon.ProgressEvent{JobID: "job-1"})
}

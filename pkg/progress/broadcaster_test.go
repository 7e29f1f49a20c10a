package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ch <-chan Event) []Event {
	var events []Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func TestPublishDeliversInOrderWithContiguousSeq(t *testing.T) {
	b := NewBroadcaster("exec-1")
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish("info", EventExecutionStarted, "started", nil)
	b.Publish("info", EventScenarioStarted, "running guest-checkout", map[string]any{"scenario": "guest-checkout"})
	b.Publish("info", EventScenarioCompleted, "passed", nil)
	b.Publish("info", EventExecutionComplete, "done", nil)
	b.Close()

	events := collect(ch)
	require.Len(t, events, 4)
	for i, e := range events {
		assert.Equal(t, uint64(i), e.Seq)
		assert.Equal(t, "exec-1", e.ExecutionID)
	}
	assert.Equal(t, EventExecutionStarted, events[0].Type)
	assert.True(t, events[3].Terminal())
	assert.Equal(t, "guest-checkout", events[1].Fields["scenario"])
}

func TestLateSubscriberSeesOnlyNewEvents(t *testing.T) {
	b := NewBroadcaster("exec-2")

	b.Publish("info", EventExecutionStarted, "started", nil)
	b.Publish("info", EventScenarioStarted, "first", nil)

	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish("info", EventScenarioCompleted, "second", nil)
	b.Publish("info", EventExecutionComplete, "done", nil)
	b.Close()

	events := collect(ch)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Seq, "first observed event continues the global sequence")
	assert.Equal(t, EventScenarioCompleted, events[0].Type)
}

func TestUnsubscribeDoesNotAffectOthers(t *testing.T) {
	b := NewBroadcaster("exec-3")
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish("info", EventLog, "one", nil)
	unsub1()
	b.Publish("info", EventLog, "two", nil)
	b.Close()

	got1 := collect(ch1)
	require.Len(t, got1, 1)

	got2 := collect(ch2)
	require.Len(t, got2, 2)
	assert.Equal(t, "two", got2[1].Message)

	// Unsubscribing twice is safe.
	unsub1()
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster("exec-4", WithBufferSize(2))
	ch, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			b.Publish("info", EventLog, "flood", nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	b.Close()
	events := collect(ch)
	assert.Len(t, events, 2, "only the buffered events survive")
	assert.Equal(t, uint64(48), b.Dropped())
}

func TestPublishAfterCloseIsNoOp(t *testing.T) {
	b := NewBroadcaster("exec-5")
	ch, _ := b.Subscribe()

	b.Publish("info", EventExecutionComplete, "done", nil)
	b.Close()
	b.Publish("info", EventLog, "late", nil)
	b.Close() // idempotent

	events := collect(ch)
	require.Len(t, events, 1)
	assert.Equal(t, EventExecutionComplete, events[0].Type)
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := NewBroadcaster("exec-6")
	b.Close()

	ch, unsub := b.Subscribe()
	defer unsub()

	_, open := <-ch
	assert.False(t, open)
}

func TestConcurrentPublishersProduceUniqueSeqs(t *testing.T) {
	b := NewBroadcaster("exec-7", WithBufferSize(1024))
	ch, unsub := b.Subscribe()
	defer unsub()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 16; j++ {
				b.Publish("info", EventLog, "concurrent", nil)
			}
		}()
	}
	wg.Wait()
	b.Close()

	events := collect(ch)
	require.Len(t, events, 128)
	seen := make(map[uint64]bool, len(events))
	for _, e := range events {
		assert.False(t, seen[e.Seq], "seq %d delivered twice", e.Seq)
		seen[e.Seq] = true
	}
	assert.Equal(t, 0, b.Subscribers())
}

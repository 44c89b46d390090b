package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"smartxbar/pkg/smartx"
)

func TestWaitForEventTimesOutWhenEmpty(t *testing.T) {
	b := New()
	start := time.Now()
	ok := b.WaitForEvent(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitForEventReturnsImmediatelyOnAlreadyQueued(t *testing.T) {
	b := New()
	b.EmitSourceRemoved("mic")
	assert.True(t, b.WaitForEvent(time.Second))
}

func TestGetNextEventDrainsFIFOAndReportsNoEvent(t *testing.T) {
	b := New()
	b.EmitConnectionEstablished(1, 1)
	b.EmitConnectionEstablished(2, 1)
	b.EmitSinkRemoved("speaker")

	e1, ok := b.GetNextEvent()
	require.True(t, ok)
	assert.Equal(t, smartx.EventConnectionEstablished, e1.Kind)
	assert.Equal(t, 1, e1.SourcePortID)

	e2, ok := b.GetNextEvent()
	require.True(t, ok)
	assert.Equal(t, 2, e2.SourcePortID)

	e3, ok := b.GetNextEvent()
	require.True(t, ok)
	assert.Equal(t, smartx.EventSinkRemoved, e3.Kind)
	assert.Equal(t, "speaker", e3.DeviceName)

	_, ok = b.GetNextEvent()
	assert.False(t, ok, "an empty bus must report NoEvent")
}

func TestEmitModuleEventSatisfiesEventSink(t *testing.T) {
	b := New()
	var sink smartx.EventSink = b
	sink.EmitModuleEvent("gain0", "gain", smartx.Properties{})

	e, ok := b.GetNextEvent()
	require.True(t, ok)
	assert.Equal(t, smartx.EventModule, e.Kind)
	assert.Equal(t, "gain0", e.ModuleInstanceName)
	assert.Equal(t, "gain", e.ModuleTypeName)
}

// TestProducerLocalOrderPreserved exercises spec §4.6's ordering
// guarantee: a single producer's events are dequeued in the order it
// pushed them, even with other producers interleaving concurrently.
func TestProducerLocalOrderPreserved(t *testing.T) {
	b := New()
	const n = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			b.EmitConnectionEstablished(i, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			b.EmitSourceRemoved("other-producer")
		}
	}()
	wg.Wait()

	lastSeenFromFirstProducer := -1
	count := 0
	for {
		e, ok := b.GetNextEvent()
		if !ok {
			break
		}
		if e.Kind == smartx.EventConnectionEstablished {
			assert.Greater(t, e.SourcePortID, lastSeenFromFirstProducer)
			lastSeenFromFirstProducer = e.SourcePortID
		}
		count++
	}
	assert.Equal(t, 2*n, count)
}

func TestWaitForEventWakesOnConcurrentPush(t *testing.T) {
	b := New()
	done := make(chan bool, 1)
	go func() {
		done <- b.WaitForEvent(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	b.EmitSinkRemoved("speaker")

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitForEvent did not wake on a concurrent push")
	}
}

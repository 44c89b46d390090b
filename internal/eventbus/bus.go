// Package eventbus implements spec §4.6: a single-consumer, multi-producer
// queue of smartx.Event values, drained by the application via
// wait_for_event/get_next_event.
//
// Grounded on the teacher's per-peer audio channel plumbing
// (internal/peer/peer.go's audioOutputChannel, drained by one consumer
// goroutine via select) for the blocking-with-timeout wait shape;
// generalized from a fixed-type PCM-frame channel to an explicit
// mutex-guarded FIFO plus a non-blocking wake signal, since spec §4.6
// requires producers that "never block" even when the consumer is slow to
// drain, which a bare buffered channel cannot guarantee once full.
package eventbus

import (
	"sync"
	"time"

	"smartxbar/pkg/smartx"
)

// Bus is the event queue of spec §4.6. Producers (the routing zone
// worker, the setup layer, module cores via EmitModuleEvent) push events
// from any goroutine; exactly one consumer drains it.
type Bus struct {
	mu    sync.Mutex
	queue []smartx.Event

	// wake carries at most one pending "queue became non-empty" token;
	// WaitForEvent rechecks the queue itself before blocking on it, so a
	// coalesced or dropped token never causes a missed wakeup.
	wake chan struct{}
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{wake: make(chan struct{}, 1)}
}

// push appends e and non-blockingly signals a waiting consumer. Never
// blocks regardless of queue depth or consumer state (spec §4.6: "thread-
// safe lock-free MPSC; producers never block" — lock-free in the sense
// that no producer ever waits on another, not that mu is uncontended).
func (b *Bus) push(e smartx.Event) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// EmitConnectionEstablished queues a ConnectionEstablished event (spec
// §4.5 Routing.connect on success).
func (b *Bus) EmitConnectionEstablished(sourcePortID, sinkPortID int) {
	b.push(smartx.Event{Kind: smartx.EventConnectionEstablished, SourcePortID: sourcePortID, SinkPortID: sinkPortID})
}

// EmitConnectionRemoved queues a ConnectionRemoved event (spec §4.5
// Routing.disconnect, and forced teardown on a device fault).
func (b *Bus) EmitConnectionRemoved(sourcePortID, sinkPortID int) {
	b.push(smartx.Event{Kind: smartx.EventConnectionRemoved, SourcePortID: sourcePortID, SinkPortID: sinkPortID})
}

// EmitSourceRemoved queues a SourceRemoved event (spec §4.3/§7: a source
// device faulted and the zone tore down its connections).
func (b *Bus) EmitSourceRemoved(deviceName string) {
	b.push(smartx.Event{Kind: smartx.EventSourceRemoved, DeviceName: deviceName})
}

// EmitSinkRemoved queues a SinkRemoved event (spec §4.3/§7: a sink device
// faulted and its zone's connections were torn down).
func (b *Bus) EmitSinkRemoved(deviceName string) {
	b.push(smartx.Event{Kind: smartx.EventSinkRemoved, DeviceName: deviceName})
}

// EmitUnrecoverableSourceError queues an UnrecoverableSourceError event
// (spec §7: a source device fault the setup layer could not recover).
func (b *Bus) EmitUnrecoverableSourceError(deviceName string) {
	b.push(smartx.Event{Kind: smartx.EventUnrecoverableSourceError, DeviceName: deviceName})
}

// EmitUnrecoverableSinkError queues an UnrecoverableSinkError event.
func (b *Bus) EmitUnrecoverableSinkError(deviceName string) {
	b.push(smartx.Event{Kind: smartx.EventUnrecoverableSinkError, DeviceName: deviceName})
}

// EmitModuleEvent implements smartx.EventSink (spec §6 "core.emit_event"):
// a module core pushes a ModuleEvent carrying its own typed properties.
func (b *Bus) EmitModuleEvent(instanceName, typeName string, props smartx.Properties) {
	b.push(smartx.Event{
		Kind:               smartx.EventModule,
		ModuleInstanceName: instanceName,
		ModuleTypeName:     typeName,
		ModuleProperties:   props,
	})
}

// WaitForEvent blocks until at least one event is queued or timeout
// elapses, returning true for the former (spec §4.6 "Ok") and false for
// the latter ("Timeout"). A zero or negative timeout polls once without
// blocking.
func (b *Bus) WaitForEvent(timeout time.Duration) bool {
	if b.hasPending() {
		return true
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-b.wake:
			// A token can be left over from events already drained by
			// GetNextEvent; only report Ok if something is really queued.
			if b.hasPending() {
				return true
			}
		case <-timer.C:
			return b.hasPending()
		}
	}
}

func (b *Bus) hasPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) > 0
}

// GetNextEvent dequeues the oldest event, or reports NoEvent via ok=false
// (spec §4.6 "get_next_event() -> {event, NoEvent}"). Producer-local
// order is preserved: mu serializes every push, so a single producer's
// events are always dequeued in the order it pushed them.
func (b *Bus) GetNextEvent() (event smartx.Event, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return smartx.Event{}, false
	}
	event = b.queue[0]
	b.queue = b.queue[1:]
	return event, true
}

// Len reports the number of events currently queued, for diagnostics.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

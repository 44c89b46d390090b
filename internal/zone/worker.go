// Package zone implements spec §4.3: the routing-zone worker that drives
// one base zone's tick loop and inlines its derived zones' ticks into the
// same goroutine.
//
// Grounded on the teacher's per-device playback goroutine
// (internal/device/rtaudiooutputdevice.go), which runs a single dedicated
// goroutine pulling frames on its own cadence and tears down via a
// sync.Once-guarded shutdown signal — generalized here from one
// RtAudio-driven output stream to the state machine spec §4.3 requires
// (Inactive/ActivePending/Active/StopPending) and to base/derived
// co-scheduling, neither of which the teacher's fixed one-device loop
// needed.
package zone

import (
	"context"
	"log/slog"
	"sync"

	"smartxbar/internal/model"
	"smartxbar/internal/pipeline"
	"smartxbar/internal/switchmatrix"
	"smartxbar/pkg/smartx"
)

// derivedLeg is one derived zone inlined into a base worker's tick: it has
// no worker goroutine of its own (spec §4.3: "a derived zone's period is
// delivered entirely inside its base zone's tick").
type derivedLeg struct {
	zone   *model.Zone
	sink   *model.Device
	engine *pipeline.Engine // nil if no pipeline attached
}

// Worker drives one base routing zone's Inactive -> ActivePending ->
// Active -> StopPending -> Inactive state machine (spec §4.3) and its
// tick. Exactly one Worker exists per base zone with a linked sink.
type Worker struct {
	registry *model.Registry
	matrix   *switchmatrix.Matrix
	zone     *model.Zone
	sink     *model.Device
	engine   *pipeline.Engine // nil if no pipeline attached
	clock    ClockSource
	logger   *slog.Logger

	mu      sync.Mutex
	derived []*derivedLeg

	cancel  context.CancelFunc
	done    chan struct{}
	stopped sync.Once
}

// New creates a Worker for a base zone. engine may be nil (no pipeline
// attached); the caller is responsible for having already linked zone's
// sink and built engine via pipeline.New+Initialize.
func New(registry *model.Registry, matrix *switchmatrix.Matrix, z *model.Zone, sink *model.Device, engine *pipeline.Engine, clock ClockSource, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		registry: registry,
		matrix:   matrix,
		zone:     z,
		sink:     sink,
		engine:   engine,
		clock:    clock,
		logger:   logger,
	}
}

// AddDerived wires a derived zone into this base worker's tick, to be
// serviced z.DerivedPeriodsPerBaseTick times per base period (the k of spec §3/§8,
// already computed and validated by model.Registry.AddDerivedZone).
func (w *Worker) AddDerived(z *model.Zone, sink *model.Device, engine *pipeline.Engine) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.derived = append(w.derived, &derivedLeg{zone: z, sink: sink, engine: engine})
}

// RemoveDerived drops a previously-added derived leg, by zone handle.
func (w *Worker) RemoveDerived(zoneHandle model.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.derived[:0]
	for _, d := range w.derived {
		if d.zone.Handle != zoneHandle {
			out = append(out, d)
		}
	}
	w.derived = out
}

// Start transitions the zone Inactive -> ActivePending and spawns the
// worker goroutine. The zone becomes Active once the first tick fires
// (spec §4.3: "ActivePending until the worker has observed one clock
// edge").
func (w *Worker) Start() error {
	if !w.zone.CompareAndSwapState(model.ZoneInactive, model.ZoneActivePending) {
		return smartx.NewError(smartx.InvalidState, "zone worker is not Inactive")
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.stopped = sync.Once{}
	go w.run(ctx)
	return nil
}

// Stop requests the worker transition Active -> StopPending and cancels
// the clock wait. A tick already in progress always runs to completion —
// stop only ever interrupts the wait *between* ticks, never a tick itself
// (spec §4.3: "stop() never interrupts an in-progress tick"). Stop does
// not block; call Wait to block until the worker has actually exited.
func (w *Worker) Stop() {
	w.zone.CompareAndSwapState(model.ZoneActive, model.ZoneStopPending)
	// ActivePending -> StopPending: stop raced Start before the first
	// tick landed. The run loop's ActivePending -> Active promotion then
	// fails, and the loop moves the zone to Inactive when it exits.
	w.zone.CompareAndSwapState(model.ZoneActivePending, model.ZoneStopPending)
	w.stopped.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
	})
}

// Wait blocks until the worker goroutine has exited and the zone has
// reached Inactive.
func (w *Worker) Wait() {
	if w.done != nil {
		<-w.done
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	promoted := false
	for {
		if err := w.clock.Wait(ctx); err != nil {
			w.zone.CompareAndSwapState(model.ZoneStopPending, model.ZoneInactive)
			return
		}
		if !promoted {
			w.zone.CompareAndSwapState(model.ZoneActivePending, model.ZoneActive)
			promoted = true
		}
		w.tick()
		if w.zone.State() == model.ZoneStopPending {
			w.zone.CompareAndSwapState(model.ZoneStopPending, model.ZoneInactive)
			return
		}
	}
}

// tick runs one base-zone period (spec §4.3's six-step base tick):
// compute frames needed, run the switch matrix, process any attached
// pipeline (or pass the zone-input conversion buffer straight through),
// deliver into the sink, then advance every derived zone by its integer
// share of this tick.
func (w *Worker) tick() {
	frames := w.sink.Params.PeriodSize
	w.matrix.Run(w.zone.Handle, frames)
	if err := w.deliver(w.zone, w.sink, w.engine, frames); err != nil {
		w.logger.Error("base zone tick failed", "zone", w.zone.Name, "err", err)
	}

	w.mu.Lock()
	derived := append([]*derivedLeg(nil), w.derived...)
	w.mu.Unlock()
	for _, d := range derived {
		// Run/deliver the matrix separately per derived period: each
		// derived zone's jobs are scoped by target zone input port, so one
		// base tick drives exactly DerivedPeriodsPerBaseTick (k) full
		// switch-matrix + delivery cycles for it (spec §3/§4.3/§8's k).
		for i := 0; i < d.zone.DerivedPeriodsPerBaseTick; i++ {
			derivedFrames := d.sink.Params.PeriodSize
			w.matrix.Run(d.zone.Handle, derivedFrames)
			if err := w.deliver(d.zone, d.sink, d.engine, derivedFrames); err != nil {
				w.logger.Error("derived zone tick failed", "zone", d.zone.Name, "err", err)
			}
		}
	}
}

// deliver runs steps 3-4 of the base (or an inlined derived) tick for one
// zone: push the zone-input conversion buffer(s) through the attached
// pipeline and write its output into the sink, or — with no pipeline —
// copy the zone-input conversion buffer straight into the sink.
func (w *Worker) deliver(z *model.Zone, sink *model.Device, engine *pipeline.Engine, frames int) error {
	if engine != nil {
		var err error
		if src, ok := soleZoneInput(w.registry, z); ok && len(z.InputPorts) == 1 && len(engine.InputPins()) == 1 {
			err = engine.ProvideSoleInput(src, frames)
		} else {
			err = engine.ProvideInputData(zoneInputBindings(w.registry, z), frames)
		}
		if err != nil {
			return err
		}
		if err := engine.Process(); err != nil {
			return err
		}
		return engine.RetrieveSoleOutput(sink.Ring, frames)
	}
	src, ok := soleZoneInput(w.registry, z)
	if !ok {
		return nil
	}
	copyRingToRing(sink.Ring, src, frames)
	return nil
}

package model

import (
	"sync/atomic"

	"smartxbar/pkg/smartx"
)

// ZoneState is the routing-zone worker state machine of spec §4.3:
// Inactive -> ActivePending -> Active -> StopPending -> Inactive.
type ZoneState int32

const (
	ZoneInactive ZoneState = iota
	ZoneActivePending
	ZoneActive
	ZoneStopPending
)

func (s ZoneState) String() string {
	switch s {
	case ZoneInactive:
		return "Inactive"
	case ZoneActivePending:
		return "ActivePending"
	case ZoneActive:
		return "Active"
	case ZoneStopPending:
		return "StopPending"
	default:
		return "Unknown"
	}
}

// Zone is spec §3's "Routing zone". The worker goroutine that drives its
// tick lives in internal/zone; this struct is the static/shared state the
// worker, the switch matrix, and the façades all need to see consistently.
type Zone struct {
	Handle Handle
	Name   string

	// Sink is the linked sink device, zero if none (dormant).
	Sink       Handle
	InputPorts []Handle
	Pipeline   Handle // zero if no pipeline attached

	// Derived zones inlined into this zone's tick (base zones only).
	Derived []Handle
	// Base is the owning base zone, zero if this zone is itself a base.
	Base Handle
	// DerivedPeriodsPerBaseTick is k from spec §3/§8: the integer number
	// of this derived zone's periods delivered per base-zone tick.
	DerivedPeriodsPerBaseTick int

	state atomic.Int32
}

func (z *Zone) State() ZoneState        { return ZoneState(z.state.Load()) }
func (z *Zone) setState(s ZoneState)    { z.state.Store(int32(s)) }

// CompareAndSwapState is the only way the zone worker (internal/zone)
// advances the state machine; it is exported so the worker package can
// drive transitions while keeping the state field unexported/atomic.
func (z *Zone) CompareAndSwapState(from, to ZoneState) bool {
	return z.state.CompareAndSwap(int32(from), int32(to))
}

// IsBase reports whether z owns its own switch matrix / worker.
func (z *Zone) IsBase() bool { return z.Base == 0 }

// CreateZone registers a new base routing zone (no Base set).
func (r *Registry) CreateZone(name string) (*Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return nil, smartx.NewError(smartx.InvalidParameter, "zone name must not be empty")
	}
	if _, exists := r.zoneNames[name]; exists {
		return nil, smartx.NewError(smartx.AlreadyExists, "zone "+name+" already exists")
	}
	h := r.allocHandle()
	z := &Zone{Handle: h, Name: name}
	r.zones[h] = z
	r.zoneNames[name] = h
	return z, nil
}

func (r *Registry) Zone(h Handle) (*Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[h]
	return z, ok
}

func (r *Registry) ZoneByName(name string) (*Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.zoneNames[name]
	if !ok {
		return nil, false
	}
	return r.zones[h], true
}

// LinkSink attaches sink device d to zone z (spec §3: "a sink device is
// optionally linked to exactly one routing zone").
func (r *Registry) LinkSink(zoneHandle, deviceHandle Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	z, ok := r.zones[zoneHandle]
	if !ok {
		return smartx.NewError(smartx.NotFound, "zone not found")
	}
	d, ok := r.devices[deviceHandle]
	if !ok {
		return smartx.NewError(smartx.NotFound, "device not found")
	}
	if d.Direction != smartx.DirectionSink {
		return smartx.NewError(smartx.InvalidParameter, "only sink devices may be linked to a zone")
	}
	if !zoneMutationAllowed(z) {
		return errInvalidState
	}
	if d.LinkedZone != 0 {
		return smartx.NewError(smartx.AlreadyExists, "device already linked to a zone")
	}
	d.LinkedZone = zoneHandle
	z.Sink = deviceHandle
	return nil
}

// AttachPipeline attaches pipeline p to zone z.
func (r *Registry) AttachPipeline(zoneHandle, pipelineHandle Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	z, ok := r.zones[zoneHandle]
	if !ok {
		return smartx.NewError(smartx.NotFound, "zone not found")
	}
	if !zoneMutationAllowed(z) {
		return errInvalidState
	}
	if _, ok := r.pipelines[pipelineHandle]; !ok {
		return smartx.NewError(smartx.NotFound, "pipeline not found")
	}
	z.Pipeline = pipelineHandle
	return nil
}

// DetachPipeline removes the pipeline attached to z.
func (r *Registry) DetachPipeline(zoneHandle Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[zoneHandle]
	if !ok {
		return smartx.NewError(smartx.NotFound, "zone not found")
	}
	if !zoneMutationAllowed(z) {
		return errInvalidState
	}
	z.Pipeline = 0
	return nil
}

// AddDerivedZone wires derived into base's tick (spec §3/§4.3/§8): the
// base must be able to deliver an exact integer number of derived periods
// per base period, i.e. base.PeriodSize * derived.SampleRate ==
// derived.PeriodSize * base.SampleRate * k for some integer k >= 1.
func (r *Registry) AddDerivedZone(baseHandle, derivedHandle Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, ok := r.zones[baseHandle]
	if !ok {
		return smartx.NewError(smartx.NotFound, "base zone not found")
	}
	derived, ok := r.zones[derivedHandle]
	if !ok {
		return smartx.NewError(smartx.NotFound, "derived zone not found")
	}
	if !zoneMutationAllowed(base) {
		return errInvalidState
	}
	if !base.IsBase() {
		return smartx.NewError(smartx.InvalidParameter, "base zone is itself derived")
	}
	if derived.Base != 0 || len(derived.Derived) > 0 {
		return smartx.NewError(smartx.InvalidParameter, "derived zone already has a base, or is itself a base")
	}

	baseSink, ok := r.devices[base.Sink]
	if !ok {
		return smartx.NewError(smartx.InvalidState, "base zone has no linked sink")
	}
	derivedSink, ok := r.devices[derived.Sink]
	if !ok {
		return smartx.NewError(smartx.InvalidState, "derived zone has no linked sink")
	}

	k, ok := derivedPeriodsPerBaseTick(baseSink.Params, derivedSink.Params)
	if !ok {
		return smartx.NewError(smartx.InvalidParameter, "derived zone period/rate incompatible with base")
	}

	derived.Base = baseHandle
	derived.DerivedPeriodsPerBaseTick = k
	base.Derived = append(base.Derived, derivedHandle)
	return nil
}

// derivedPeriodsPerBaseTick computes k from spec §8's quantified
// invariant: base.PeriodFrames * derived.SampleRate == derived.PeriodFrames
// * base.SampleRate * k, for the smallest positive integer k satisfying it
// exactly.
func derivedPeriodsPerBaseTick(base, derived smartx.DeviceParams) (int, bool) {
	lhs := base.PeriodSize * derived.SampleRate
	rhsUnit := derived.PeriodSize * base.SampleRate
	if rhsUnit <= 0 || lhs%rhsUnit != 0 {
		return 0, false
	}
	k := lhs / rhsUnit
	if k < 1 {
		return 0, false
	}
	return k, true
}

// RemoveDerivedZone detaches derived from its base.
func (r *Registry) RemoveDerivedZone(baseHandle, derivedHandle Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	base, ok := r.zones[baseHandle]
	if !ok {
		return smartx.NewError(smartx.NotFound, "base zone not found")
	}
	if !zoneMutationAllowed(base) {
		return errInvalidState
	}
	derived, ok := r.zones[derivedHandle]
	if !ok {
		return smartx.NewError(smartx.NotFound, "derived zone not found")
	}
	base.Derived = removeHandle(base.Derived, derivedHandle)
	derived.Base = 0
	derived.DerivedPeriodsPerBaseTick = 0
	return nil
}

// MatrixOwner returns the handle of the base zone whose switch matrix
// serves z (itself, if z is a base zone).
func (z *Zone) MatrixOwner() Handle {
	if z.IsBase() {
		return z.Handle
	}
	return z.Base
}

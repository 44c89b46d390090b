package model

import (
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"
)

// bufferBudgetBytes is the per-device cap referenced by spec §7
// NoResources: "product of period * periods * channels * sample size must
// stay under a small fixed cap per device". Kept generous enough for
// realistic in-vehicle topologies (tens of periods at 48kHz/8ch/float32)
// while still catching pathological configuration.
const bufferBudgetBytes = 16 * 1024 * 1024

// Device is spec §3's "Audio device": a source (output ports) or sink
// (input ports), with its own ring buffer sized from DeviceParams.
type Device struct {
	Handle Handle
	Name   string
	Direction smartx.Direction
	Params smartx.DeviceParams
	Ring   *ringbuffer.Buffer
	Ports  []Handle

	// LinkedZone is the routing zone this sink delivers into. Zero for an
	// unlinked (dormant) sink, and always zero for a source device.
	LinkedZone Handle

	// IsDummy marks a source created via Setup.CreateDummySource: it ticks
	// but is never routed (Design Note §9 open question — future work).
	IsDummy bool
}

// CreateDevice registers a new device. Fails AlreadyExists on a duplicate
// name, InvalidParameter on a non-positive dimension, NoResources if the
// requested ring buffer would exceed bufferBudgetBytes.
func (r *Registry) CreateDevice(name string, direction smartx.Direction, params smartx.DeviceParams) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return nil, smartx.NewError(smartx.InvalidParameter, "device name must not be empty")
	}
	if _, exists := r.deviceNames[name]; exists {
		return nil, smartx.NewError(smartx.AlreadyExists, "device "+name+" already exists")
	}
	if params.NumChannels <= 0 || params.SampleRate <= 0 || params.PeriodSize <= 0 || params.NumPeriods <= 0 {
		return nil, smartx.NewError(smartx.InvalidParameter, "device parameters must be positive")
	}

	budget := params.PeriodSize * params.NumPeriods * params.NumChannels * params.Format.Bytes()
	if budget > bufferBudgetBytes {
		return nil, smartx.NewError(smartx.NoResources, "device ring buffer would exceed per-device budget")
	}

	h := r.allocHandle()
	d := &Device{
		Handle:    h,
		Name:      name,
		Direction: direction,
		Params:    params,
		Ring:      ringbuffer.New(params.PeriodSize*params.NumPeriods, params.NumChannels, params.Format, ringbuffer.Interleaved),
	}
	r.devices[h] = d
	r.deviceNames[name] = h
	return d, nil
}

// CreateDummySource registers a source device flagged IsDummy: kept
// ticking by the caller but never wired into any switch matrix.
func (r *Registry) CreateDummySource(name string, params smartx.DeviceParams) (*Device, error) {
	d, err := r.CreateDevice(name, smartx.DirectionSource, params)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	d.IsDummy = true
	r.mu.Unlock()
	return d, nil
}

// Device looks up a device by handle.
func (r *Registry) Device(h Handle) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[h]
	return d, ok
}

// DeviceByName looks up a device by name (NotFound semantics left to the caller).
func (r *Registry) DeviceByName(name string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.deviceNames[name]
	if !ok {
		return nil, false
	}
	return r.devices[h], true
}

// DummySources returns every source device created via CreateDummySource.
func (r *Registry) DummySources() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Device
	for _, d := range r.devices {
		if d.Direction == smartx.DirectionSource && d.IsDummy {
			out = append(out, d)
		}
	}
	return out
}

// DestroyDevice removes a device. Sinks linked to a zone that is Active or
// ActivePending cannot be destroyed (InvalidState). DestroyDevice does not
// tear down a source's connections itself; Setup.DestroySource does that
// first, emitting one ConnectionRemoved per torn-down connection and then a
// single SourceRemoved carrying the device name (no per-connection
// SourceRemoved is emitted), so the event ordering stays visible at the
// façade layer.
func (r *Registry) DestroyDevice(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[h]
	if !ok {
		return smartx.NewError(smartx.NotFound, "device not found")
	}
	if d.LinkedZone != 0 {
		z := r.zones[d.LinkedZone]
		if !zoneMutationAllowed(z) {
			return errInvalidState
		}
	}
	for _, ph := range d.Ports {
		if p := r.ports[ph]; p != nil {
			delete(r.portNames, p.Name)
			if p.ID > 0 {
				delete(r.portIDsByDir[p.Direction], p.ID)
			}
		}
		delete(r.ports, ph)
	}
	delete(r.devices, h)
	delete(r.deviceNames, d.Name)
	return nil
}

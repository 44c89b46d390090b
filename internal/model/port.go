package model

import (
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"
)

// Port is spec §3's "Audio port": an addressable endpoint on a device or a
// routing zone. A source device's ports are output ports; a sink device's
// ports are input ports belonging to its linked zone.
type Port struct {
	Handle Handle
	Name   string
	// ID is the positive, direction-unique routing id, or <= 0 for an
	// anonymous port addressed only by link (spec §3).
	ID          int
	NumChannels int
	Direction   smartx.Direction
	BaseIndex   int

	// Owner is a Device handle for source/sink device ports, or a Zone
	// handle for zone input ports (OwnerIsZone distinguishes the two).
	Owner       Handle
	OwnerIsZone bool

	// Ring is populated once the port is linked: the device's own ring
	// buffer for device ports, or the zone's conversion buffer for a zone
	// input port (spec glossary "Conversion buffer").
	Ring *ringbuffer.Buffer
}

// AddPort creates a port owned by device d. Invariants (spec §3): base
// index + channel count must lie within the device's channel count; a
// positive id must be unique within its direction.
func (r *Registry) AddPort(deviceHandle Handle, name string, id int, numChannels int, baseIndex int) (*Port, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceHandle]
	if !ok {
		return nil, smartx.NewError(smartx.NotFound, "device not found")
	}
	if d.LinkedZone != 0 {
		if z := r.zones[d.LinkedZone]; !zoneMutationAllowed(z) {
			return nil, errInvalidState
		}
	}
	if name == "" || numChannels <= 0 {
		return nil, smartx.NewError(smartx.InvalidParameter, "port name must be set and channel count positive")
	}
	if baseIndex < 0 || baseIndex+numChannels > d.Params.NumChannels {
		return nil, smartx.NewError(smartx.InvalidParameter, "port channel range exceeds owning device's channel count")
	}
	if _, exists := r.portNames[name]; exists {
		return nil, smartx.NewError(smartx.AlreadyExists, "port "+name+" already exists")
	}
	if id > 0 {
		if _, exists := r.portIDsByDir[d.Direction][id]; exists {
			return nil, smartx.NewError(smartx.AlreadyExists, "port id already in use for this direction")
		}
	}

	h := r.allocHandle()
	p := &Port{
		Handle:      h,
		Name:        name,
		ID:          id,
		NumChannels: numChannels,
		Direction:   d.Direction,
		BaseIndex:   baseIndex,
		Owner:       deviceHandle,
		OwnerIsZone: false,
		Ring:        d.Ring,
	}
	r.ports[h] = p
	r.portNames[name] = h
	if id > 0 {
		r.portIDsByDir[d.Direction][id] = h
	}
	d.Ports = append(d.Ports, h)
	return p, nil
}

// AddZoneInputPort creates an input port owned by a routing zone (spec §3:
// "a zone input port must have base index 0, one buffer per zone input
// port"). The conversion buffer is allocated here, sized for bufferFrames
// of zone-rate, zone-format audio.
func (r *Registry) AddZoneInputPort(zoneHandle Handle, name string, id int, numChannels int, format smartx.SampleFormat, bufferFrames int) (*Port, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	z, ok := r.zones[zoneHandle]
	if !ok {
		return nil, smartx.NewError(smartx.NotFound, "zone not found")
	}
	if !zoneMutationAllowed(z) {
		return nil, errInvalidState
	}
	if name == "" || numChannels <= 0 {
		return nil, smartx.NewError(smartx.InvalidParameter, "port name must be set and channel count positive")
	}
	if _, exists := r.portNames[name]; exists {
		return nil, smartx.NewError(smartx.AlreadyExists, "port "+name+" already exists")
	}
	if id > 0 {
		if _, exists := r.portIDsByDir[smartx.DirectionSink][id]; exists {
			return nil, smartx.NewError(smartx.AlreadyExists, "port id already in use for this direction")
		}
	}

	h := r.allocHandle()
	p := &Port{
		Handle:      h,
		Name:        name,
		ID:          id,
		NumChannels: numChannels,
		Direction:   smartx.DirectionSink,
		BaseIndex:   0,
		Owner:       zoneHandle,
		OwnerIsZone: true,
		Ring:        ringbuffer.New(bufferFrames, numChannels, format, ringbuffer.Interleaved),
	}
	r.ports[h] = p
	r.portNames[name] = h
	if id > 0 {
		r.portIDsByDir[smartx.DirectionSink][id] = h
	}
	z.InputPorts = append(z.InputPorts, h)
	return p, nil
}

// SliceAreas narrows areas — captured from this port's owning device ring
// and spanning the full device channel count — down to the channel range
// this port actually owns, [BaseIndex, BaseIndex+NumChannels) (spec §3:
// several ports may share one device ring at distinct channel offsets).
// Returns nil if areas doesn't cover the port's range (a mismatched or
// stale access).
func (p *Port) SliceAreas(areas []ringbuffer.Area) []ringbuffer.Area {
	if p.BaseIndex < 0 || p.BaseIndex+p.NumChannels > len(areas) {
		return nil
	}
	return areas[p.BaseIndex : p.BaseIndex+p.NumChannels]
}

// Port2Pair names a (source, sink) port pair, used to report active
// connections (spec §4.5 "get_active_connections") without exposing the
// switch matrix's live job map to callers.
type Port2Pair struct {
	Source *Port
	Sink   *Port
}

// Port looks up a port by handle.
func (r *Registry) Port(h Handle) (*Port, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.ports[h]
	return p, ok
}

// PortByName looks up a port by its unique name, as used by the Debug
// façade to resolve start_record/start_inject/stop_probe's port_name
// argument (spec §4.5).
func (r *Registry) PortByName(name string) (*Port, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.portNames[name]
	if !ok {
		return nil, false
	}
	return r.ports[h], true
}

// PortByID looks up a port by its positive id and direction, as used by the
// Routing façade to resolve connect()/disconnect() arguments.
func (r *Registry) PortByID(direction smartx.Direction, id int) (*Port, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.portIDsByDir[direction][id]
	if !ok {
		return nil, false
	}
	return r.ports[h], true
}

// RemovePort removes a port owned by a device or a zone, subject to the
// "owning zone not active" gate.
func (r *Registry) RemovePort(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.ports[h]
	if !ok {
		return smartx.NewError(smartx.NotFound, "port not found")
	}
	if p.OwnerIsZone {
		if z := r.zones[p.Owner]; !zoneMutationAllowed(z) {
			return errInvalidState
		}
		z := r.zones[p.Owner]
		z.InputPorts = removeHandle(z.InputPorts, h)
	} else {
		d := r.devices[p.Owner]
		if d != nil {
			if d.LinkedZone != 0 {
				if z := r.zones[d.LinkedZone]; !zoneMutationAllowed(z) {
					return errInvalidState
				}
			}
			d.Ports = removeHandle(d.Ports, h)
		}
	}
	delete(r.ports, h)
	delete(r.portNames, p.Name)
	if p.ID > 0 {
		delete(r.portIDsByDir[p.Direction], p.ID)
	}
	return nil
}

func removeHandle(s []Handle, h Handle) []Handle {
	out := s[:0]
	for _, x := range s {
		if x != h {
			out = append(out, x)
		}
	}
	return out
}

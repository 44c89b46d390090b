package zone

import (
	"smartxbar/internal/model"
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"
)

// NewClockForSink picks the ClockSource a routing zone's worker should use
// to drive d's tick cadence (spec §4.3): Provided sinks get a timer derived
// from their own rate/period, Received and ReceivedAsync sinks are driven
// externally and get a SignalClock the caller notifies.
func NewClockForSink(d *model.Device) ClockSource {
	switch d.Params.Clock {
	case smartx.ClockReceived, smartx.ClockReceivedAsync:
		return NewSignalClock()
	default:
		return NewProvidedClock(d.Params.SampleRate, d.Params.PeriodSize)
	}
}

// zoneInputBindings maps every input port owned by z to its conversion
// buffer, keyed by port name. ProvideInputData looks bindings up by
// pipeline input pin name, so a port only feeds the pipeline input pin that
// shares its name (spec §4.3 step 2).
func zoneInputBindings(r *model.Registry, z *model.Zone) map[string]*ringbuffer.Buffer {
	out := make(map[string]*ringbuffer.Buffer, len(z.InputPorts))
	for _, ph := range z.InputPorts {
		p, ok := r.Port(ph)
		if !ok || p.Ring == nil {
			continue
		}
		out[p.Name] = p.Ring
	}
	return out
}

// soleZoneInput returns z's one conversion buffer, for the no-pipeline
// delivery path where the zone's single input port feeds the sink
// directly (spec §4.3 step 3: "or, with no pipeline attached, the linked
// zone input port's conversion buffer").
func soleZoneInput(r *model.Registry, z *model.Zone) (*ringbuffer.Buffer, bool) {
	for _, ph := range z.InputPorts {
		if p, ok := r.Port(ph); ok && p.Ring != nil {
			return p.Ring, true
		}
	}
	return nil, false
}

// copyRingToRing transfers up to frames frames from src into dst,
// converting sample format as needed. Used for the no-pipeline delivery
// path, where a zone-input conversion buffer feeds the sink device's ring
// buffer directly rather than through a pipeline engine.
func copyRingToRing(dst, src *ringbuffer.Buffer, frames int) {
	written := 0
	for written < frames {
		srcAreas, _, granted := src.BeginAccess(ringbuffer.Read, frames-written)
		if granted == 0 {
			break
		}
		dstAreas, _, dstGranted := dst.BeginAccess(ringbuffer.Write, granted)
		if dstGranted < granted {
			granted = dstGranted
		}
		if granted > 0 {
			ringbuffer.CopyAudioAreas(
				dst.RawPlane(0), dstAreas, dst.Format(),
				src.RawPlane(0), srcAreas, src.Format(),
				granted,
			)
		}
		dst.EndAccess(ringbuffer.Write, granted)
		src.EndAccess(ringbuffer.Read, granted)
		if granted == 0 {
			break
		}
		written += granted
	}
}

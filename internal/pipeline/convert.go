package pipeline

import "smartxbar/internal/ringbuffer"

// copyRingIntoStream reads up to frames frames from src, converting into
// dst's float32 planar stream (spec §4.4 run step 1). Any shortfall (the
// ring held fewer frames than requested) is zero-filled as silence.
func copyRingIntoStream(dst *stream, src *ringbuffer.Buffer, frames int) {
	numChannels := dst.NumChannels()
	written := 0
	for written < frames {
		areas, _, granted := src.BeginAccess(ringbuffer.Read, frames-written)
		if granted == 0 {
			break
		}
		for ch := 0; ch < numChannels && ch < len(areas); ch++ {
			raw := src.RawPlane(ch)
			out := dst.Channel(ch)
			for i := 0; i < granted; i++ {
				out[written+i] = float32(ringbuffer.ReadSample(raw, areas[ch], i, src.Format()))
			}
		}
		src.EndAccess(ringbuffer.Read, granted)
		written += granted
	}
	for ch := 0; ch < numChannels; ch++ {
		out := dst.Channel(ch)
		for i := written; i < frames; i++ {
			out[i] = 0
		}
	}
}

// copyStreamIntoRing writes frames frames of src's float32 planar stream
// into dst, converting to dst's format (spec §4.4 run step 5). Stops early
// if dst has no room for the remainder — the caller (routing zone) is
// expected to size sink ring buffers so this never happens in steady
// state.
func copyStreamIntoRing(dst *ringbuffer.Buffer, src *stream, frames int) {
	numChannels := src.NumChannels()
	written := 0
	for written < frames {
		areas, _, granted := dst.BeginAccess(ringbuffer.Write, frames-written)
		if granted == 0 {
			break
		}
		for ch := 0; ch < numChannels && ch < len(areas); ch++ {
			raw := dst.RawPlane(ch)
			in := src.Channel(ch)
			for i := 0; i < granted; i++ {
				ringbuffer.WriteSample(raw, areas[ch], i, dst.Format(), float64(in[written+i]))
			}
		}
		dst.EndAccess(ringbuffer.Write, granted)
		written += granted
	}
}

package ringbuffer

import (
	"encoding/binary"
	"math"

	"smartxbar/pkg/smartx"
)

// CopyAudioAreas crosses formats explicitly (spec §4.1: "Data format
// conversion is never implicit"). It copies frames frames of each channel
// from src (srcAreas, in srcFormat) into dst (dstAreas, in dstFormat),
// applying the documented int<->float normalization (full-scale
// int16/int32 <-> [-1, 1] float32).
//
// Areas are self-contained: BeginAccess bakes the ring's current cursor
// into Area.Base, so frame 0 of an Area is always the first frame of this
// access window. Callers must index ReadSample/WriteSample (and thus
// CopyAudioAreas) from 0, never by adding the offset BeginAccess returns —
// that offset is for the caller's own bookkeeping (e.g. correlating a
// staging buffer with a global frame count), not for re-deriving a byte
// address that Area.Base already encodes.
func CopyAudioAreas(
	dst []byte, dstAreas []Area, dstFormat smartx.SampleFormat,
	src []byte, srcAreas []Area, srcFormat smartx.SampleFormat,
	frames int,
) {
	n := len(dstAreas)
	if len(srcAreas) < n {
		n = len(srcAreas)
	}
	for ch := 0; ch < n; ch++ {
		copyChannel(dst, dstAreas[ch], dstFormat, src, srcAreas[ch], srcFormat, frames)
	}
}

func copyChannel(
	dst []byte, dstArea Area, dstFormat smartx.SampleFormat,
	src []byte, srcArea Area, srcFormat smartx.SampleFormat,
	frames int,
) {
	for i := 0; i < frames; i++ {
		v := ReadSample(src, srcArea, i, srcFormat)
		WriteSample(dst, dstArea, i, dstFormat, v)
	}
}

// ReadSample/WriteSample work in a normalized float64 domain ([-1, 1] for
// full-scale PCM) so any format can cross to any other with one pair of
// conversion functions. frameIndex is relative to the access window (0 is
// the first frame granted by BeginAccess) — Area.Base already encodes the
// ring's current position.
func ReadSample(buf []byte, area Area, frameIndex int, format smartx.SampleFormat) float64 {
	byteOffset := area.Base + (area.FirstBitOffset+frameIndex*area.StrideBits)/8
	switch format {
	case smartx.FormatInt16:
		v := int16(binary.LittleEndian.Uint16(buf[byteOffset:]))
		return float64(v) / float64(math.MaxInt16)
	case smartx.FormatInt32:
		v := int32(binary.LittleEndian.Uint32(buf[byteOffset:]))
		return float64(v) / float64(math.MaxInt32)
	case smartx.FormatFloat32:
		bits := binary.LittleEndian.Uint32(buf[byteOffset:])
		return float64(math.Float32frombits(bits))
	default:
		return 0
	}
}

func WriteSample(buf []byte, area Area, frameIndex int, format smartx.SampleFormat, v float64) {
	byteOffset := area.Base + (area.FirstBitOffset+frameIndex*area.StrideBits)/8
	switch format {
	case smartx.FormatInt16:
		clamped := clamp(v, -1, 1)
		binary.LittleEndian.PutUint16(buf[byteOffset:], uint16(int16(clamped*float64(math.MaxInt16))))
	case smartx.FormatInt32:
		clamped := clamp(v, -1, 1)
		binary.LittleEndian.PutUint32(buf[byteOffset:], uint32(int32(clamped*float64(math.MaxInt32))))
	case smartx.FormatFloat32:
		binary.LittleEndian.PutUint32(buf[byteOffset:], math.Float32bits(float32(v)))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package ringbuffer

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
	"smartxbar/pkg/smartx"
)

func writeFrames(t *testing.T, b *Buffer, frames int, value float32) {
	t.Helper()
	areas, _, granted := b.BeginAccess(Write, frames)
	require.Equal(t, frames, granted)
	raw := b.RawPlane(0)
	for _, a := range areas {
		for i := 0; i < frames; i++ {
			byteOffset := a.Base + (a.FirstBitOffset+i*a.StrideBits)/8
			binary.LittleEndian.PutUint32(raw[byteOffset:], math.Float32bits(value))
		}
	}
	b.EndAccess(Write, frames)
}

func TestBeginAccessGrantsAtMostAvailable(t *testing.T) {
	b := New(8, 2, smartx.FormatFloat32, Interleaved)

	_, _, granted := b.BeginAccess(Read, 4)
	assert.Equal(t, 0, granted, "nothing written yet, consumer should get 0 frames")

	writeFrames(t, b, 5, 1.0)

	_, _, granted = b.BeginAccess(Write, 10)
	assert.Equal(t, 3, granted, "producer may write up to capacity - fill")

	_, _, granted = b.BeginAccess(Read, 10)
	assert.Equal(t, 5, granted, "consumer may read up to fill")
}

func TestBeginAccessSplitsAtWrap(t *testing.T) {
	b := New(8, 1, smartx.FormatFloat32, Interleaved)
	writeFrames(t, b, 6, 1.0)
	_, _, granted := b.BeginAccess(Read, 6)
	require.Equal(t, 6, granted)
	b.EndAccess(Read, 6)

	// producer cursor is at 6, only 2 frames until wrap even though space is 8
	areas, _, granted := b.BeginAccess(Write, 8)
	assert.Equal(t, 2, granted, "must not cross the backing array's end in one grant")
	_ = areas
}

func TestReadTapObservesConsumedFrames(t *testing.T) {
	b := New(8, 1, smartx.FormatFloat32, Interleaved)
	writeFrames(t, b, 4, 1.0)

	var tapped int
	var lastAreas []Area
	b.SetReadTap(func(areas []Area, frames int) {
		tapped += frames
		lastAreas = areas
	})

	areas, _, granted := b.BeginAccess(Read, 4)
	require.Equal(t, 4, granted)
	b.EndAccess(Read, granted)

	assert.Equal(t, 4, tapped, "tap should observe every frame committed by EndAccess(Read, ...)")
	assert.Equal(t, areas, lastAreas, "tap should see the same area descriptors BeginAccess handed the consumer")

	// A second read/commit cycle with no tap installed must not panic or
	// otherwise leave the buffer in a bad state.
	writeFrames(t, b, 2, 1.0)
	b.SetReadTap(nil)
	_, _, granted = b.BeginAccess(Read, 2)
	require.Equal(t, 2, granted)
	assert.NotPanics(t, func() { b.EndAccess(Read, granted) })
	assert.Equal(t, 4, tapped, "tap removed, should not be invoked again")
}

// Round-trip property: for any sequence of int16 samples, converting
// int16->float32->int16 preserves the value within ±1 LSB (spec §8).
func TestCopyAudioAreasRoundTripWithinOneLSB(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frames := rapid.IntRange(1, 64).Draw(t, "frames")
		samples := rapid.SliceOfN(rapid.Int16Range(-32767, 32767), frames, frames).Draw(t, "samples")

		srcBuf := New(frames, 1, smartx.FormatInt16, Interleaved)
		dstBuf := New(frames, 1, smartx.FormatFloat32, Interleaved)
		roundBuf := New(frames, 1, smartx.FormatInt16, Interleaved)

		srcAreas, _, _ := srcBuf.BeginAccess(Write, frames)
		raw := srcBuf.RawPlane(0)
		for i, s := range samples {
			byteOffset := srcAreas[0].Base + (srcAreas[0].FirstBitOffset+i*srcAreas[0].StrideBits)/8
			binary.LittleEndian.PutUint16(raw[byteOffset:], uint16(s))
		}
		srcBuf.EndAccess(Write, frames)

		rAreas, _, granted := srcBuf.BeginAccess(Read, frames)
		require.Equal(t, frames, granted)
		dAreas, _, _ := dstBuf.BeginAccess(Write, frames)
		CopyAudioAreas(dstBuf.RawPlane(0), dAreas, smartx.FormatFloat32, srcBuf.RawPlane(0), rAreas, smartx.FormatInt16, frames)
		dstBuf.EndAccess(Write, frames)
		srcBuf.EndAccess(Read, frames)

		d2Areas, _, granted := dstBuf.BeginAccess(Read, frames)
		require.Equal(t, frames, granted)
		rtAreas, _, _ := roundBuf.BeginAccess(Write, frames)
		CopyAudioAreas(roundBuf.RawPlane(0), rtAreas, smartx.FormatInt16, dstBuf.RawPlane(0), d2Areas, smartx.FormatFloat32, frames)
		roundBuf.EndAccess(Write, frames)
		dstBuf.EndAccess(Read, frames)

		finalAreas, _, _ := roundBuf.BeginAccess(Read, frames)
		rawOut := roundBuf.RawPlane(0)
		for i, original := range samples {
			byteOffset := finalAreas[0].Base + (finalAreas[0].FirstBitOffset+i*finalAreas[0].StrideBits)/8
			got := int16(binary.LittleEndian.Uint16(rawOut[byteOffset:]))
			diff := int(got) - int(original)
			if diff < 0 {
				diff = -diff
			}
			assert.LessOrEqualf(t, diff, 1, "sample %d: %d round-tripped to %d, diff %d exceeds 1 LSB", i, original, got, diff)
		}
	})
}

// Two independent Readers on the same Buffer must each see the full
// stream: one reader consuming frames must not advance or starve the
// other's cursor (spec §4.2/§9 open question #1, multiple jobs fed by one
// source port).
func TestReaderFanOutEachSeesFullStream(t *testing.T) {
	b := New(16, 1, smartx.FormatFloat32, Interleaved)
	r1 := b.NewReader()
	r2 := b.NewReader()
	writeFrames(t, b, 6, 1.0)

	areas1, _, granted1 := r1.BeginAccess(6)
	require.Equal(t, 6, granted1)
	r1.EndAccess(granted1)
	_ = areas1

	// r2 has not consumed anything yet; it must still see all 6 frames,
	// and the producer must still see them as unconsumed (backpressure
	// follows the slowest reader).
	_, _, grantedStillPending := b.BeginAccess(Write, 16)
	assert.Equal(t, 10, grantedStillPending, "producer space must account for r2's unread frames too")

	areas2, _, granted2 := r2.BeginAccess(6)
	require.Equal(t, 6, granted2, "second reader must see the full stream independently of the first")
	r2.EndAccess(granted2)
	_ = areas2
}

// Once a Reader is closed, the buffer's free-space accounting must stop
// waiting on it: a lagging reader that gets disconnected must not keep
// blocking the producer forever (spec §4.2 disconnect: "outstanding
// frames in flight are dropped").
func TestReaderCloseStopsBackpressure(t *testing.T) {
	b := New(8, 1, smartx.FormatFloat32, Interleaved)
	r1 := b.NewReader()
	r2 := b.NewReader()
	writeFrames(t, b, 8, 1.0)

	areas2, _, granted2 := r2.BeginAccess(8)
	require.Equal(t, 8, granted2)
	r2.EndAccess(granted2)
	_ = areas2

	_, _, granted := b.BeginAccess(Write, 4)
	assert.Equal(t, 0, granted, "r1 hasn't read anything yet, so no space can be reclaimed")

	r1.Close()
	_, _, granted = b.BeginAccess(Write, 4)
	assert.Equal(t, 4, granted, "after closing the lagging reader, space follows the remaining reader alone")
}

// With no Readers registered at all, BeginAccess(Read, ...) must keep
// working exactly as the original single-consumer API (backward
// compatibility for callers that never call NewReader).
func TestBeginAccessReadUnaffectedWithNoReaders(t *testing.T) {
	b := New(16, 1, smartx.FormatFloat32, Interleaved)
	writeFrames(t, b, 5, 1.0)

	_, _, granted := b.BeginAccess(Read, 5)
	assert.Equal(t, 5, granted)
	b.EndAccess(Read, 5)

	_, _, granted = b.BeginAccess(Write, 5)
	assert.Equal(t, 5, granted, "space freed by the default reader's own rd cursor")
}

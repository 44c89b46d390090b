package switchmatrix

import (
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"

	"github.com/oov/audio/resampler"
)

// resampleQuality matches the teacher's AudioFormatConversionDevice, which
// always constructs its oov/audio resampler with quality 10.
const resampleQuality = 10

// asrcState is the per-job, per-channel ASRC resampler plus carry buffer
// (spec §4.2 "ASRC state is persistent across ticks; disconnection resets
// it"). Grounded on
// _examples/ijakenorton-Roundtable/pkg/audiodevice/device/audioformatconversiondevice.go's
// newResampleFunction, generalized from mono/stereo to arbitrary channel
// counts and adapted to carry leftover resampled output across ticks
// rather than returning whatever a single ProcessFloat32 call produced.
type asrcState struct {
	channels     []*resampler.Resampler
	srcPlanarBuf [][]float32 // scratch, deinterleaved source per channel
	dstPlanarBuf [][]float32 // scratch, resampler output per channel
	carry        [][]float32 // leftover resampled frames not yet delivered
	srcRate      int
	dstRate      int
}

const asrcScratchFrames = 8192

func newASRCState(numChannels, srcRate, dstRate int) *asrcState {
	s := &asrcState{
		channels:     make([]*resampler.Resampler, numChannels),
		srcPlanarBuf: make([][]float32, numChannels),
		dstPlanarBuf: make([][]float32, numChannels),
		carry:        make([][]float32, numChannels),
		srcRate:      srcRate,
		dstRate:      dstRate,
	}
	for ch := 0; ch < numChannels; ch++ {
		s.channels[ch] = resampler.New(1, srcRate, dstRate, resampleQuality)
		s.srcPlanarBuf[ch] = make([]float32, asrcScratchFrames)
		s.dstPlanarBuf[ch] = make([]float32, asrcScratchFrames)
		s.carry[ch] = make([]float32, 0, asrcScratchFrames)
	}
	return s
}

// runASRC pulls source-rate frames, resamples to the zone rate, and
// delivers up to framesNeeded zone-rate frames into the zone input port's
// conversion buffer, carrying any surplus resampled output to the next
// tick. Reports however many frames were actually delivered (may be less
// than framesNeeded if the source ran short — spec §4.2).
func (j *Job) runASRC(framesNeeded int) int {
	a := j.asrc
	numChannels := len(a.channels)

	// Top up the carry until we have at least framesNeeded frames, or the
	// source runs short.
	for len(a.carry[0]) < framesNeeded {
		// Ask for roughly the source frames needed to produce the
		// remaining output, rounded up, capped to scratch capacity.
		remaining := framesNeeded - len(a.carry[0])
		wantSrcFrames := (remaining*a.srcRate)/a.dstRate + 1
		if wantSrcFrames > asrcScratchFrames {
			wantSrcFrames = asrcScratchFrames
		}

		srcAreas, _, granted := j.reader.BeginAccess(wantSrcFrames)
		if granted == 0 {
			j.ShortLastRun = true
			break
		}
		srcAreas = j.SourcePort.SliceAreas(srcAreas)
		if srcAreas == nil {
			j.reader.EndAccess(granted)
			j.ShortLastRun = true
			break
		}

		for ch := 0; ch < numChannels; ch++ {
			deinterleaveToFloat32(a.srcPlanarBuf[ch][:granted], j.SourceDevice.Ring.RawPlane(0), srcAreas[ch], j.SourceDevice.Params.Format, granted)
			_, written := a.channels[ch].ProcessFloat32(0, a.srcPlanarBuf[ch][:granted], a.dstPlanarBuf[ch][:cap(a.dstPlanarBuf[ch])])
			a.carry[ch] = append(a.carry[ch], a.dstPlanarBuf[ch][:written]...)
		}
		j.reader.EndAccess(granted)

		if granted < wantSrcFrames {
			j.ShortLastRun = true
			break
		}
		j.ShortLastRun = false
	}

	delivered := len(a.carry[0])
	if delivered > framesNeeded {
		delivered = framesNeeded
	}
	if delivered == 0 {
		return 0
	}

	dstAreas, _, dstGranted := j.ZoneInput.Ring.BeginAccess(ringbuffer.Write, delivered)
	if dstGranted < delivered {
		delivered = dstGranted
	}
	for ch := 0; ch < numChannels && delivered > 0; ch++ {
		interleaveFromFloat32(j.ZoneInput.Ring.RawPlane(0), dstAreas[ch], a.carry[ch][:delivered], delivered)
	}
	j.ZoneInput.Ring.EndAccess(ringbuffer.Write, delivered)

	for ch := range a.carry {
		a.carry[ch] = append(a.carry[ch][:0], a.carry[ch][delivered:]...)
	}
	return delivered
}

func deinterleaveToFloat32(dst []float32, raw []byte, area ringbuffer.Area, format smartx.SampleFormat, frames int) {
	for i := 0; i < frames; i++ {
		dst[i] = float32(ringbuffer.ReadSample(raw, area, i, format))
	}
}

func interleaveFromFloat32(raw []byte, area ringbuffer.Area, src []float32, frames int) {
	for i := 0; i < frames; i++ {
		ringbuffer.WriteSample(raw, area, i, smartx.FormatFloat32, float64(src[i]))
	}
}

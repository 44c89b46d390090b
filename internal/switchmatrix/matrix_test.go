package switchmatrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"smartxbar/internal/model"
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"
)

func newSourceAndZoneInput(t *testing.T, r *model.Registry, rate int, format smartx.SampleFormat, clock smartx.ClockType) (*model.Device, *model.Port, *model.Port) {
	t.Helper()
	dev, err := r.CreateDevice("source", smartx.DirectionSource, smartx.DeviceParams{
		SampleRate: rate, PeriodSize: 192, NumPeriods: 4, Format: format, NumChannels: 2, Clock: clock,
	})
	require.NoError(t, err)
	srcPort, err := r.AddPort(dev.Handle, "source-out", 1, 2, 0)
	require.NoError(t, err)

	z, err := r.CreateZone("zone")
	require.NoError(t, err)
	zp, err := r.AddZoneInputPort(z.Handle, "zone-in", 1, 2, smartx.FormatFloat32, 768)
	require.NoError(t, err)
	return dev, srcPort, zp
}

func TestConnectPicksCopyJobWhenRateAndFormatMatch(t *testing.T) {
	r := model.New()
	dev, srcPort, zoneIn := newSourceAndZoneInput(t, r, 48000, smartx.FormatFloat32, smartx.ClockProvided)

	m := New(r, 1, nil)
	job, err := m.Connect(srcPort, zoneIn, dev, 48000)
	require.NoError(t, err)
	assert.Equal(t, KindCopy, job.Kind)
}

func TestConnectPicksFormatConvertJobOnFormatMismatch(t *testing.T) {
	r := model.New()
	dev, srcPort, zoneIn := newSourceAndZoneInput(t, r, 48000, smartx.FormatInt16, smartx.ClockProvided)

	m := New(r, 1, nil)
	job, err := m.Connect(srcPort, zoneIn, dev, 48000)
	require.NoError(t, err)
	assert.Equal(t, KindFormatConvert, job.Kind)
}

func TestConnectPicksASRCJobOnRateMismatchOrAsyncClock(t *testing.T) {
	r := model.New()
	dev, srcPort, zoneIn := newSourceAndZoneInput(t, r, 44100, smartx.FormatFloat32, smartx.ClockProvided)

	m := New(r, 1, nil)
	job, err := m.Connect(srcPort, zoneIn, dev, 48000)
	require.NoError(t, err)
	assert.Equal(t, KindASRC, job.Kind)
}

func TestConnectRejectsSecondSourceToSameZoneInput(t *testing.T) {
	r := model.New()
	dev, srcPort, zoneIn := newSourceAndZoneInput(t, r, 48000, smartx.FormatFloat32, smartx.ClockProvided)

	otherDev, err := r.CreateDevice("other-source", smartx.DirectionSource, smartx.DeviceParams{
		SampleRate: 48000, PeriodSize: 192, NumPeriods: 4, Format: smartx.FormatFloat32, NumChannels: 2, Clock: smartx.ClockProvided,
	})
	require.NoError(t, err)
	otherPort, err := r.AddPort(otherDev.Handle, "other-out", 2, 2, 0)
	require.NoError(t, err)

	m := New(r, 1, nil)
	_, err = m.Connect(srcPort, zoneIn, dev, 48000)
	require.NoError(t, err)

	_, err = m.Connect(otherPort, zoneIn, otherDev, 48000)
	assert.ErrorIs(t, err, smartx.ErrAlreadyConnected)
}

// Round-trip/idempotence (spec §8): connect then disconnect with the same
// arguments returns the system to the pre-connect state.
func TestConnectDisconnectRoundTrip(t *testing.T) {
	r := model.New()
	dev, srcPort, zoneIn := newSourceAndZoneInput(t, r, 48000, smartx.FormatFloat32, smartx.ClockProvided)

	m := New(r, 1, nil)
	_, err := m.Connect(srcPort, zoneIn, dev, 48000)
	require.NoError(t, err)
	assert.Len(t, m.ActiveConnections(), 1)

	require.NoError(t, m.Disconnect(srcPort, zoneIn))
	assert.Empty(t, m.ActiveConnections())

	_, err = m.Connect(srcPort, zoneIn, dev, 48000)
	assert.NoError(t, err, "reconnecting with the same arguments after a clean disconnect must succeed")
}

func TestRunCopiesAvailableFramesAndReportsShort(t *testing.T) {
	r := model.New()
	dev, srcPort, zoneIn := newSourceAndZoneInput(t, r, 48000, smartx.FormatFloat32, smartx.ClockProvided)

	m := New(r, 1, nil)
	job, err := m.Connect(srcPort, zoneIn, dev, 48000)
	require.NoError(t, err)

	// Producer only has 50 frames available, zone asks for 192.
	areas, offset, granted := dev.Ring.BeginAccess(ringbuffer.Write, 50)
	require.Equal(t, 50, granted)
	_ = areas
	_ = offset
	dev.Ring.EndAccess(ringbuffer.Write, 50)

	m.Run(zoneIn.Owner, 192)
	assert.True(t, job.ShortLastRun)

	_, _, gotFrames := zoneIn.Ring.BeginAccess(ringbuffer.Read, 192)
	assert.Equal(t, 50, gotFrames, "short source delivers only what it has, must not block")
}

// A job connected from a port at a nonzero BaseIndex must read that port's
// own channel range out of the shared device ring, not the device's
// channels 0..N (spec §3: several ports may share one device ring at
// distinct channel offsets).
func TestRunDirectRespectsSourcePortBaseIndex(t *testing.T) {
	r := model.New()
	dev, err := r.CreateDevice("quad-source", smartx.DirectionSource, smartx.DeviceParams{
		SampleRate: 48000, PeriodSize: 192, NumPeriods: 4, Format: smartx.FormatFloat32, NumChannels: 4, Clock: smartx.ClockProvided,
	})
	require.NoError(t, err)
	// Second pair of the quad device, at channel offset 2.
	secondPair, err := r.AddPort(dev.Handle, "second-pair", 2, 2, 2)
	require.NoError(t, err)

	z, err := r.CreateZone("zone")
	require.NoError(t, err)
	zoneIn, err := r.AddZoneInputPort(z.Handle, "zone-in", 1, 2, smartx.FormatFloat32, 768)
	require.NoError(t, err)

	m := New(r, 1, nil)
	_, err = m.Connect(secondPair, zoneIn, dev, 48000)
	require.NoError(t, err)

	// Write distinct, recognizable values into each of the device's 4
	// channels: channel ch gets value ch+1.
	areas, _, granted := dev.Ring.BeginAccess(ringbuffer.Write, 32)
	require.Equal(t, 32, granted)
	raw := dev.Ring.RawPlane(0)
	for ch, a := range areas {
		for i := 0; i < granted; i++ {
			ringbuffer.WriteSample(raw, a, i, smartx.FormatFloat32, float64(ch+1))
		}
	}
	dev.Ring.EndAccess(ringbuffer.Write, 32)

	m.Run(zoneIn.Owner, 32)

	zoneAreas, _, zoneGranted := zoneIn.Ring.BeginAccess(ringbuffer.Read, 32)
	require.Equal(t, 32, zoneGranted)
	zoneRaw := zoneIn.Ring.RawPlane(0)
	for i := 0; i < zoneGranted; i++ {
		got0 := ringbuffer.ReadSample(zoneRaw, zoneAreas[0], i, smartx.FormatFloat32)
		got1 := ringbuffer.ReadSample(zoneRaw, zoneAreas[1], i, smartx.FormatFloat32)
		assert.InDelta(t, 3.0, got0, 1e-6, "zone input channel 0 must carry device channel 2 (the port's BaseIndex), not device channel 0")
		assert.InDelta(t, 4.0, got1, 1e-6, "zone input channel 1 must carry device channel 3")
	}
}

// A source port feeding two zone-input ports across two separate base
// zones (two separate Matrix instances, each with its own worker) must
// deliver the full, uncorrupted stream to each — not a split stream, and
// not a race on the shared device ring's cursor (spec §9 Open Question #1,
// resolved in DESIGN.md: one source may fan out to multiple zone inputs).
func TestFanOutAcrossTwoMatricesEachSeesFullStream(t *testing.T) {
	r := model.New()
	dev, srcPort, zoneInA := newSourceAndZoneInput(t, r, 48000, smartx.FormatFloat32, smartx.ClockProvided)

	zB, err := r.CreateZone("zone-b")
	require.NoError(t, err)
	zoneInB, err := r.AddZoneInputPort(zB.Handle, "zone-in-b", 2, 2, smartx.FormatFloat32, 768)
	require.NoError(t, err)

	mA := New(r, 1, nil)
	mB := New(r, 2, nil)
	_, err = mA.Connect(srcPort, zoneInA, dev, 48000)
	require.NoError(t, err)
	_, err = mB.Connect(srcPort, zoneInB, dev, 48000)
	require.NoError(t, err)

	_, _, granted := dev.Ring.BeginAccess(ringbuffer.Write, 64)
	require.Equal(t, 64, granted)
	dev.Ring.EndAccess(ringbuffer.Write, 64)

	mA.Run(zoneInA.Owner, 64)
	mB.Run(zoneInB.Owner, 64)

	_, _, gotA := zoneInA.Ring.BeginAccess(ringbuffer.Read, 64)
	_, _, gotB := zoneInB.Ring.BeginAccess(ringbuffer.Read, 64)
	assert.Equal(t, 64, gotA, "first zone input must receive the full stream")
	assert.Equal(t, 64, gotB, "second zone input, on a separate base zone, must independently receive the full stream too")
}

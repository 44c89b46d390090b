package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"
)

func stereoParams(rate, period int) smartx.DeviceParams {
	return smartx.DeviceParams{
		SampleRate:  rate,
		PeriodSize:  period,
		NumPeriods:  4,
		Format:      smartx.FormatInt16,
		NumChannels: 2,
		Clock:       smartx.ClockProvided,
	}
}

func TestAddPortChannelRangeInvariant(t *testing.T) {
	r := New()
	dev, err := r.CreateDevice("src", smartx.DirectionSource, stereoParams(48000, 192))
	require.NoError(t, err)

	_, err = r.AddPort(dev.Handle, "out", 1, 2, 1)
	assert.ErrorIs(t, err, smartx.NewError(smartx.InvalidParameter, ""), "base index 1 + 2 channels exceeds device's 2 channels")

	_, err = r.AddPort(dev.Handle, "out", 1, 2, 0)
	assert.NoError(t, err)
}

func TestPositivePortIDUniquePerDirection(t *testing.T) {
	r := New()
	src, _ := r.CreateDevice("src", smartx.DirectionSource, stereoParams(48000, 192))
	sink, _ := r.CreateDevice("sink", smartx.DirectionSink, stereoParams(48000, 192))

	_, err := r.AddPort(src.Handle, "out1", 1, 2, 0)
	require.NoError(t, err)

	_, err = r.AddPort(src.Handle, "out2", 1, 2, 0)
	assert.ErrorIs(t, err, smartx.NewError(smartx.AlreadyExists, ""))

	// Same positive id, different direction, is fine.
	_, err = r.AddPort(sink.Handle, "in1", 1, 2, 0)
	assert.NoError(t, err)
}

func TestDerivedZonePeriodCompatibility(t *testing.T) {
	r := New()
	baseSink, _ := r.CreateDevice("base-sink", smartx.DirectionSink, stereoParams(48000, 192))
	derivedSink, _ := r.CreateDevice("derived-sink", smartx.DirectionSink, stereoParams(48000, 96))

	base, _ := r.CreateZone("base")
	derived, _ := r.CreateZone("derived")
	require.NoError(t, r.LinkSink(base.Handle, baseSink.Handle))
	require.NoError(t, r.LinkSink(derived.Handle, derivedSink.Handle))

	require.NoError(t, r.AddDerivedZone(base.Handle, derived.Handle))
	assert.Equal(t, 2, derived.DerivedPeriodsPerBaseTick, "192/96 at matching rate should be exactly 2 derived periods per base tick")
}

func TestDerivedZoneIncompatiblePeriodRejected(t *testing.T) {
	r := New()
	baseSink, _ := r.CreateDevice("base-sink", smartx.DirectionSink, stereoParams(48000, 192))
	derivedSink, _ := r.CreateDevice("derived-sink", smartx.DirectionSink, stereoParams(48000, 100))

	base, _ := r.CreateZone("base")
	derived, _ := r.CreateZone("derived")
	require.NoError(t, r.LinkSink(base.Handle, baseSink.Handle))
	require.NoError(t, r.LinkSink(derived.Handle, derivedSink.Handle))

	err := r.AddDerivedZone(base.Handle, derived.Handle)
	assert.ErrorIs(t, err, smartx.NewError(smartx.InvalidParameter, ""))
}

// Property (spec §8): for every base/derived pair admitted by
// AddDerivedZone, base.PeriodFrames * derived.SampleRate ==
// derived.PeriodFrames * base.SampleRate * k for the reported k.
func TestDerivedPeriodsPerBaseTickProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		baseRate := rapid.SampledFrom([]int{44100, 48000, 96000}).Draw(t, "baseRate")
		k := rapid.IntRange(1, 8).Draw(t, "k")
		basePeriod := rapid.IntRange(1, 64).Draw(t, "basePeriod") * k
		derivedRate := baseRate
		derivedPeriod := basePeriod / k

		got, ok := derivedPeriodsPerBaseTick(
			smartx.DeviceParams{SampleRate: baseRate, PeriodSize: basePeriod},
			smartx.DeviceParams{SampleRate: derivedRate, PeriodSize: derivedPeriod},
		)
		require.True(t, ok)
		assert.Equal(t, k, got)
	})
}

func TestSetupMutationRejectedOnActiveZone(t *testing.T) {
	r := New()
	sinkDev, _ := r.CreateDevice("sink", smartx.DirectionSink, stereoParams(48000, 192))
	z, _ := r.CreateZone("zone")
	require.NoError(t, r.LinkSink(z.Handle, sinkDev.Handle))

	z.CompareAndSwapState(ZoneInactive, ZoneActive)

	_, err := r.AddZoneInputPort(z.Handle, "in", 1, 2, smartx.FormatInt16, 768)
	assert.ErrorIs(t, err, smartx.NewError(smartx.InvalidState, ""))

	err = r.DestroyDevice(sinkDev.Handle)
	assert.ErrorIs(t, err, smartx.NewError(smartx.InvalidState, ""))
}

// Two ports sharing one device ring at distinct channel offsets (spec §3)
// must each see only their own channel range when slicing the areas
// BeginAccess returns for the whole device.
func TestPortSliceAreasRespectsBaseIndex(t *testing.T) {
	r := New()
	dev, err := r.CreateDevice("src", smartx.DirectionSource, smartx.DeviceParams{
		SampleRate: 48000, PeriodSize: 192, NumPeriods: 4, Format: smartx.FormatFloat32, NumChannels: 4, Clock: smartx.ClockProvided,
	})
	require.NoError(t, err)

	left, err := r.AddPort(dev.Handle, "left-pair", 1, 2, 0)
	require.NoError(t, err)
	right, err := r.AddPort(dev.Handle, "right-pair", 2, 2, 2)
	require.NoError(t, err)

	areas, _, granted := dev.Ring.BeginAccess(ringbuffer.Write, 10)
	require.Equal(t, 10, granted)
	require.Len(t, areas, 4, "areas cover the whole 4-channel device ring")

	leftAreas := left.SliceAreas(areas)
	require.Len(t, leftAreas, 2)
	assert.Equal(t, 0, leftAreas[0].Channel)
	assert.Equal(t, 1, leftAreas[1].Channel)

	rightAreas := right.SliceAreas(areas)
	require.Len(t, rightAreas, 2)
	assert.Equal(t, 2, rightAreas[0].Channel, "right-pair's first area must be the device's channel 2, not channel 0")
	assert.Equal(t, 3, rightAreas[1].Channel)
}

func TestPortSliceAreasNilOnMismatchedRange(t *testing.T) {
	r := New()
	dev, err := r.CreateDevice("src", smartx.DirectionSource, smartx.DeviceParams{
		SampleRate: 48000, PeriodSize: 192, NumPeriods: 4, Format: smartx.FormatFloat32, NumChannels: 2, Clock: smartx.ClockProvided,
	})
	require.NoError(t, err)
	p, err := r.AddPort(dev.Handle, "out", 1, 2, 0)
	require.NoError(t, err)

	assert.Nil(t, p.SliceAreas(nil))
	assert.Nil(t, p.SliceAreas(make([]ringbuffer.Area, 1)), "fewer areas than the port's own channel count")
}

package probe

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"smartxbar/internal/model"
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"
)

func monoSourcePort(t *testing.T, r *model.Registry, name string) *model.Port {
	t.Helper()
	dev, err := r.CreateDevice(name+".dev", smartx.DirectionSource, smartx.DeviceParams{
		SampleRate: 8000, PeriodSize: 64, NumPeriods: 4,
		Format: smartx.FormatInt16, NumChannels: 1, Clock: smartx.ClockProvided,
	})
	require.NoError(t, err)
	port, err := r.AddPort(dev.Handle, name, 1, 1, 0)
	require.NoError(t, err)
	return port
}

// writeMonoWAVFile writes samples as a single-channel 16-bit PCM WAV file,
// the shape StartInject expects to read back per channel.
func writeMonoWAVFile(t *testing.T, path string, rate int, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: rate, NumChannels: 1},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func readMonoWAVFile(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	decoder := wav.NewDecoder(f)
	require.True(t, decoder.IsValidFile())
	pcm, err := decoder.FullPCMBuffer()
	require.NoError(t, err)
	return pcm.Data
}

func TestStartRecordWritesWAVOnConsumedFrames(t *testing.T) {
	r := model.New()
	port := monoSourcePort(t, r, "source.record")
	m := New(r, nil)

	prefix := filepath.Join(t.TempDir(), "capture")
	require.NoError(t, m.StartRecord(prefix, port, 0.2))

	// A second probe on the same port must fail while one is active.
	assert.Equal(t, smartx.InvalidState, smartx.Code(m.StartRecord(prefix, port, 0.2)))

	// Simulate a producer writing, then a consumer reading, frames through
	// the tapped ring.
	_, _, granted := port.Ring.BeginAccess(ringbuffer.Write, 32)
	require.Equal(t, 32, granted)
	port.Ring.EndAccess(ringbuffer.Write, granted)
	_, _, granted = port.Ring.BeginAccess(ringbuffer.Read, 32)
	require.Equal(t, 32, granted)
	port.Ring.EndAccess(ringbuffer.Read, granted)

	require.NoError(t, m.StopProbe(port.Name))

	samples := readMonoWAVFile(t, prefix+"_ch0.wav")
	assert.Len(t, samples, 32)
}

func TestStartRecordTimesOutOnItsOwn(t *testing.T) {
	r := model.New()
	port := monoSourcePort(t, r, "source.timeout")
	m := New(r, nil)

	prefix := filepath.Join(t.TempDir(), "capture")
	require.NoError(t, m.StartRecord(prefix, port, 0.05))

	assert.Eventually(t, func() bool {
		return m.StartRecord(prefix, port, 0.05) == nil
	}, time.Second, 5*time.Millisecond, "probe should release its slot once its own timer fires")

	require.NoError(t, m.StopProbe(port.Name))
}

func TestStopProbeOnIdlePortIsNotFound(t *testing.T) {
	r := model.New()
	port := monoSourcePort(t, r, "source.idle")
	m := New(r, nil)
	assert.Equal(t, smartx.NotFound, smartx.Code(m.StopProbe(port.Name)))
}

func TestStartInjectFeedsRingFromWAVFile(t *testing.T) {
	r := model.New()
	port := monoSourcePort(t, r, "source.forinject")

	prefix := filepath.Join(t.TempDir(), "feed")
	// Longer than the port's 256-frame ring, so the probe is still feeding
	// (waiting for ring space) when it is stopped below.
	samples := make([]int, 1024)
	copy(samples, []int{100, 200, 300, 400})
	writeMonoWAVFile(t, prefix+"_ch0.wav", 8000, samples)

	m := New(r, nil)
	require.NoError(t, m.StartInject(prefix, port, 1))

	assert.Eventually(t, func() bool {
		_, _, granted := port.Ring.BeginAccess(ringbuffer.Read, 4)
		return granted > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopProbe(port.Name))
}

func TestStartInjectMissingFileIsFailed(t *testing.T) {
	r := model.New()
	port := monoSourcePort(t, r, "source.missingfile")
	m := New(r, nil)

	err := m.StartInject(filepath.Join(t.TempDir(), "nope"), port, 1)
	assert.Equal(t, smartx.Failed, smartx.Code(err))
}

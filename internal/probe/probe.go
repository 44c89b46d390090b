// Package probe implements spec §4.5's Debug façade probes: tapping a
// port's PCM into, or feeding it from, per-channel WAV files.
//
// Grounded on the teacher's FileAudioOutputDevice/FileAudioInputDevice
// (pkg/audiodevice/device/filedevice.go), which encode/decode PCM through
// exactly this pair of libraries (github.com/go-audio/wav,
// github.com/go-audio/audio) one channel-interleaved stream at a time.
// Generalized here into one mono WAV file per channel (spec §4.5 "file
// prefix plus _chN.wav names each file") and, for record, reattached to
// ringbuffer.Buffer's new non-destructive ReadTap instead of a dedicated
// channel — a probe must not become the port's second consumer, which
// would violate the SPSC invariant spec §4.1 depends on. Bounded by a
// wall-clock duration instead of the teacher's "runs until the channel is
// closed", since spec §4.5 takes an explicit seconds argument.
//
// StartInject writes into the port's ring as its producer and does not
// coordinate with any other producer of that ring while it runs.
package probe

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"smartxbar/internal/model"
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// injectChunkFrames bounds how many frames an inject probe writes per
// iteration, so a probe never blocks waiting for the whole file's worth
// of ring-buffer space to free up at once.
const injectChunkFrames = 256

// Manager implements facade.ProbeManager. One Manager serves every port in
// a Runtime; a port may have at most one active probe at a time (spec
// §4.5 "starting a second probe on the same port while one is active
// fails").
type Manager struct {
	registry *model.Registry
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*activeProbe // port name -> running probe
}

type activeProbe struct {
	stop func()
	done chan struct{}
}

// New creates a Manager that resolves a probed port's nominal sample rate
// (for the WAV header) through registry.
func New(registry *model.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{registry: registry, logger: logger, active: make(map[string]*activeProbe)}
}

func (m *Manager) claim(portName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[portName]; exists {
		return smartx.NewError(smartx.InvalidState, "a probe is already active on port "+portName)
	}
	m.active[portName] = nil // reserve the slot until the goroutine installs itself
	return nil
}

func (m *Manager) install(portName string, p *activeProbe) {
	m.mu.Lock()
	m.active[portName] = p
	m.mu.Unlock()
}

func (m *Manager) release(portName string) {
	m.mu.Lock()
	delete(m.active, portName)
	m.mu.Unlock()
}

// rateFor resolves the sample rate that should label a probed port's WAV
// files: the owning device's rate for a device port, or the linked sink's
// rate for a zone input port (a zone's own nominal rate, spec §3).
func (m *Manager) rateFor(port *model.Port) int {
	if port.OwnerIsZone {
		if z, ok := m.registry.Zone(port.Owner); ok {
			if sink, ok := m.registry.Device(z.Sink); ok {
				return sink.Params.SampleRate
			}
		}
		return 48000
	}
	if d, ok := m.registry.Device(port.Owner); ok {
		return d.Params.SampleRate
	}
	return 48000
}

// StartRecord taps port's PCM (as it is actually consumed from its ring
// buffer) into one mono WAV file per channel for seconds seconds.
func (m *Manager) StartRecord(filePrefix string, port *model.Port, seconds float64) error {
	if err := m.claim(port.Name); err != nil {
		return err
	}

	rate := m.rateFor(port)
	numCh := port.NumChannels
	files := make([]*os.File, numCh)
	encoders := make([]*wav.Encoder, numCh)
	for ch := 0; ch < numCh; ch++ {
		f, err := os.Create(fmt.Sprintf("%s_ch%d.wav", filePrefix, ch))
		if err != nil {
			closeEncoders(encoders[:ch], files[:ch])
			m.release(port.Name)
			return smartx.NewError(smartx.Failed, err.Error())
		}
		files[ch] = f
		encoders[ch] = wav.NewEncoder(f, rate, 16, 1, 1)
	}

	var writeMu sync.Mutex
	stop := make(chan struct{})
	done := make(chan struct{})

	port.Ring.SetReadTap(func(areas []ringbuffer.Area, frames int) {
		writeMu.Lock()
		defer writeMu.Unlock()
		areas = port.SliceAreas(areas)
		if areas == nil {
			return
		}
		format := port.Ring.Format()
		for ch := 0; ch < numCh && ch < len(areas); ch++ {
			plane := port.Ring.RawPlane(areas[ch].Channel)
			data := make([]int, frames)
			for i := 0; i < frames; i++ {
				v := ringbuffer.ReadSample(plane, areas[ch], i, format)
				data[i] = int(v * 32767)
			}
			buf := &goaudio.IntBuffer{
				Format:         &goaudio.Format{SampleRate: rate, NumChannels: 1},
				Data:           data,
				SourceBitDepth: 16,
			}
			if err := encoders[ch].Write(buf); err != nil {
				m.logger.Error("probe record write failed", "port", port.Name, "channel", ch, "err", err)
			}
		}
	})

	go func() {
		defer close(done)
		timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-stop:
		case <-timer.C:
		}
		port.Ring.SetReadTap(nil)
		writeMu.Lock()
		closeEncoders(encoders, files)
		writeMu.Unlock()
		m.release(port.Name)
	}()

	m.install(port.Name, &activeProbe{stop: func() { close(stop) }, done: done})
	return nil
}

// StartInject decodes filePrefix_chN.wav for each of port's channels and
// writes them into port's ring buffer as its producer, for up to seconds
// seconds (or until the files are exhausted, whichever comes first).
func (m *Manager) StartInject(filePrefix string, port *model.Port, seconds float64) error {
	if err := m.claim(port.Name); err != nil {
		return err
	}

	numCh := port.NumChannels
	buffers := make([][]int, numCh)
	maxLen := 0
	for ch := 0; ch < numCh; ch++ {
		f, err := os.Open(fmt.Sprintf("%s_ch%d.wav", filePrefix, ch))
		if err != nil {
			m.release(port.Name)
			return smartx.NewError(smartx.Failed, err.Error())
		}
		decoder := wav.NewDecoder(f)
		if !decoder.IsValidFile() {
			f.Close()
			m.release(port.Name)
			return smartx.NewError(smartx.Failed, "invalid WAV file for channel "+fmt.Sprint(ch))
		}
		pcm, err := decoder.FullPCMBuffer()
		f.Close()
		if err != nil {
			m.release(port.Name)
			return smartx.NewError(smartx.Failed, err.Error())
		}
		buffers[ch] = pcm.Data
		if len(pcm.Data) > maxLen {
			maxLen = len(pcm.Data)
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer m.release(port.Name)
		deadline := time.Now().Add(time.Duration(seconds * float64(time.Second)))
		format := port.Ring.Format()
		pos := 0
		for pos < maxLen && time.Now().Before(deadline) {
			select {
			case <-stop:
				return
			default:
			}
			chunk := injectChunkFrames
			if pos+chunk > maxLen {
				chunk = maxLen - pos
			}
			areas, _, granted := port.Ring.BeginAccess(ringbuffer.Write, chunk)
			if granted == 0 {
				time.Sleep(time.Millisecond)
				continue
			}
			areas = port.SliceAreas(areas)
			if areas == nil {
				break
			}
			for ch := 0; ch < numCh && ch < len(areas); ch++ {
				plane := port.Ring.RawPlane(areas[ch].Channel)
				for i := 0; i < granted; i++ {
					var sample int
					if pos+i < len(buffers[ch]) {
						sample = buffers[ch][pos+i]
					}
					ringbuffer.WriteSample(plane, areas[ch], i, format, float64(sample)/32767)
				}
			}
			port.Ring.EndAccess(ringbuffer.Write, granted)
			pos += granted
		}
	}()

	m.install(port.Name, &activeProbe{stop: func() { close(stop) }, done: done})
	return nil
}

// StopProbe cancels whichever probe is active on portName and waits for
// its file handles to close. NotFound if none is active.
func (m *Manager) StopProbe(portName string) error {
	m.mu.Lock()
	p, ok := m.active[portName]
	m.mu.Unlock()
	if !ok || p == nil {
		return smartx.NewError(smartx.NotFound, "no active probe on port "+portName)
	}
	p.stop()
	<-p.done
	return nil
}

func closeEncoders(encoders []*wav.Encoder, files []*os.File) {
	for i := range encoders {
		encoders[i].Close()
		files[i].Sync()
		files[i].Close()
	}
}

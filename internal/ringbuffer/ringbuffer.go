// Package ringbuffer implements the fixed-capacity, single-producer /
// single-consumer PCM buffer of spec §4.1.
//
// The index bookkeeping (monotonic atomic read/write cursors, modular
// distance arithmetic) is grounded on
// _examples/jangala-dev-devicecode-go/x/shmring, the pack's own lock-free
// SPSC byte ring. Unlike shmring this buffer is framed (frames of N
// channels, not raw bytes) and exposes begin_access/end_access area
// descriptors rather than span slices, to match spec §4.1 and to cover
// interleaved, planar, and bundled (4-channel-interleaved) layouts in one
// abstraction.
package ringbuffer

import (
	"sync"
	"sync/atomic"

	"smartxbar/pkg/smartx"
)

// Layout describes how channels are arranged in the buffer's backing
// storage (spec §4.1: "interleaved, non-interleaved (planar), and bundled
// (groups of four channels interleaved)").
type Layout int

const (
	Interleaved Layout = iota
	Planar
	Bundled4
)

// Area describes one channel's placement within the buffer for the frame
// range returned by BeginAccess (spec §4.1 "Areas are per-channel
// descriptors").
type Area struct {
	// Base indexes into Buffer.raw (or Buffer.planes[Channel] for Planar).
	Base int
	// FirstBitOffset is the bit offset of the first sample within Base.
	FirstBitOffset int
	// StrideBits is the bit distance between consecutive samples of this
	// channel.
	StrideBits int
	Channel    int
}

// Buffer is the SPSC PCM ring. Format and layout are fixed at construction;
// crossing formats is always an explicit CopyAudioAreas call, never
// implicit (spec §4.1).
type Buffer struct {
	format      smartx.SampleFormat
	numChannels int
	layout      Layout
	capacity    int // frames

	// raw backs Interleaved and Bundled4 layouts: one contiguous byte slice.
	raw []byte
	// planes backs Planar layout: one byte slice per channel.
	planes [][]byte

	rd atomic.Uint64 // consumer frame cursor, monotonic
	wr atomic.Uint64 // producer frame cursor, monotonic

	// readersMu guards readers, the set of independent Reader cursors
	// fanned out from this buffer (spec §4.2: one source output port may
	// feed several zone-input ports, including across different base
	// zones, each with its own worker goroutine). Registration only
	// happens at connect/disconnect, never on the tick path; each
	// Reader's own atomic cursor is what the tick path touches.
	readersMu sync.Mutex
	readers   []*Reader

	// tapMu guards readTap against concurrent SetReadTap calls from a
	// probe's control-plane goroutine while the consumer thread(s) commit
	// reads (spec §4.5 Debug "probing taps a port's PCM").
	tapMu         sync.Mutex
	readTap       ReadTap
	lastReadAreas []Area
}

// ReadTap observes frames frames just committed by a Read EndAccess,
// described by areas (the same descriptors BeginAccess(Read, ...)
// returned). Never blocks the consumer for long: called synchronously on
// the consumer's own goroutine, so a slow tap delays that consumer.
type ReadTap func(areas []Area, frames int)

// SetReadTap installs (or, with nil, removes) a non-destructive observer
// of this buffer's consumed frames, letting a Debug probe (spec §4.5)
// record a port's PCM without disturbing the real producer/consumer
// relationship the buffer otherwise enforces.
func (b *Buffer) SetReadTap(t ReadTap) {
	b.tapMu.Lock()
	b.readTap = t
	b.tapMu.Unlock()
}

// New allocates a Buffer sized for capacity frames of numChannels channels
// in format, arranged per layout. Allocation happens once, at build time
// (spec §5: "the steady-state tick path performs no allocations").
func New(capacity, numChannels int, format smartx.SampleFormat, layout Layout) *Buffer {
	b := &Buffer{
		format:      format,
		numChannels: numChannels,
		layout:      layout,
		capacity:    capacity,
	}
	sampleBytes := format.Bytes()
	switch layout {
	case Planar:
		b.planes = make([][]byte, numChannels)
		for i := range b.planes {
			b.planes[i] = make([]byte, capacity*sampleBytes)
		}
	default: // Interleaved, Bundled4
		b.raw = make([]byte, capacity*numChannels*sampleBytes)
	}
	return b
}

func (b *Buffer) Capacity() int    { return b.capacity }
func (b *Buffer) NumChannels() int { return b.numChannels }
func (b *Buffer) Format() smartx.SampleFormat { return b.format }

// fill returns the number of frames currently held by the consumer side:
// the producer may not overwrite a frame until every active consumer has
// passed it. With no registered Readers this is the plain single-consumer
// SPSC case (b.rd); once one or more Readers are registered (a port fanned
// out to more than one switch-matrix job), it is the slowest of them, so a
// fast consumer can never make the writer overrun a slower one.
func (b *Buffer) fill() int {
	return int(b.wr.Load() - b.consumeCursor())
}

func (b *Buffer) consumeCursor() uint64 {
	b.readersMu.Lock()
	readers := b.readers
	b.readersMu.Unlock()
	if len(readers) == 0 {
		return b.rd.Load()
	}
	min := readers[0].rd.Load()
	for _, r := range readers[1:] {
		if v := r.rd.Load(); v < min {
			min = v
		}
	}
	return min
}

// NewReader registers an independent consumer cursor over this buffer,
// starting at the buffer's current write position (a reader never sees
// frames written before it attached). Use this instead of the plain
// Read-direction BeginAccess/EndAccess pair whenever a buffer may be
// consumed by more than one reader at once (spec §4.2's fan-out: a source
// output port connected to several zone-input ports). Close the Reader
// when its connection is torn down.
func (b *Buffer) NewReader() *Reader {
	r := &Reader{buf: b}
	r.rd.Store(b.wr.Load())
	b.readersMu.Lock()
	b.readers = append(b.readers, r)
	b.readersMu.Unlock()
	return r
}

// Reader is one independent consumer cursor over a Buffer that may be
// read by more than one consumer concurrently. Each Reader advances at
// its own pace on its own goroutine; the buffer only reclaims a frame's
// storage once every registered Reader has passed it (see Buffer.fill).
type Reader struct {
	buf *Buffer
	rd  atomic.Uint64

	// lastAreas is this Reader's own pending-tap bookkeeping, set by
	// BeginAccess and consumed by EndAccess — kept per-Reader (not on
	// Buffer) so concurrent readers never share mutable tap state.
	lastAreas []Area
}

func (r *Reader) fill() int {
	return int(r.buf.wr.Load() - r.rd.Load())
}

// BeginAccess reserves up to framesRequested frames for this Reader alone;
// other readers of the same buffer are unaffected. Semantics otherwise
// match Buffer.BeginAccess(Read, ...).
func (r *Reader) BeginAccess(framesRequested int) (areas []Area, offset int, framesGranted int) {
	if framesRequested <= 0 {
		return nil, 0, 0
	}
	avail := r.fill()
	if avail <= 0 {
		return nil, 0, 0
	}
	if framesRequested > avail {
		framesRequested = avail
	}
	areas, idx, granted := r.buf.areasAt(r.rd.Load(), framesRequested)
	r.lastAreas = areas
	return areas, idx, granted
}

// EndAccess commits framesCommitted frames most recently granted by
// BeginAccess, advancing this Reader's cursor alone.
func (r *Reader) EndAccess(framesCommitted int) {
	if framesCommitted <= 0 {
		return
	}
	r.buf.fireReadTap(r.lastAreas, framesCommitted)
	r.rd.Add(uint64(framesCommitted))
}

// Close unregisters r. The writer stops waiting on it; any frames it had
// not yet consumed are simply dropped (spec §4.2 disconnect: "outstanding
// frames in flight are dropped").
func (r *Reader) Close() {
	r.buf.readersMu.Lock()
	defer r.buf.readersMu.Unlock()
	out := r.buf.readers[:0]
	for _, x := range r.buf.readers {
		if x != r {
			out = append(out, x)
		}
	}
	r.buf.readers = out
}

// BeginAccess reserves up to framesRequested frames for direction (producer
// writes Write, consumer reads Read), returning per-channel Areas, the
// ring position (cursor modulo capacity) the granted window starts at —
// already encoded in each Area.Base, so sample indices into the areas start
// at 0 — and the number of frames actually granted. Frames granted may be less than requested when the buffer wraps
// around its backing storage; the caller re-calls BeginAccess for the
// remainder (spec §4.1).
func (b *Buffer) BeginAccess(dir Direction, framesRequested int) (areas []Area, offset int, framesGranted int) {
	if framesRequested <= 0 {
		return nil, 0, 0
	}

	var avail int
	var cursor uint64
	switch dir {
	case Write:
		avail = b.capacity - b.fill()
		cursor = b.wr.Load()
	case Read:
		avail = b.fill()
		cursor = b.rd.Load()
	}
	if avail <= 0 {
		return nil, 0, 0
	}
	if framesRequested > avail {
		framesRequested = avail
	}

	areas, idx, granted := b.areasAt(cursor, framesRequested)
	if dir == Read {
		b.lastReadAreas = areas
	}
	return areas, idx, granted
}

// areasAt builds the per-channel Area descriptors for a frame window
// starting at cursor (a raw monotonic frame count, not yet reduced modulo
// capacity), capped to the contiguous run before the buffer wraps. Shared
// by BeginAccess's Write/Read paths and by Reader.BeginAccess, since the
// area math only depends on layout and position, not on which cursor
// (writer, the default single reader, or an independent Reader) supplied
// it.
func (b *Buffer) areasAt(cursor uint64, framesRequested int) (areas []Area, idx int, framesGranted int) {
	idx = int(cursor % uint64(b.capacity))
	// Cap to the contiguous run until wrap; caller re-invokes for the rest.
	untilWrap := b.capacity - idx
	if framesRequested > untilWrap {
		framesRequested = untilWrap
	}

	sampleBytes := b.format.Bytes()
	areas = make([]Area, b.numChannels)
	switch b.layout {
	case Interleaved:
		frameStrideBits := b.numChannels * sampleBytes * 8
		for ch := 0; ch < b.numChannels; ch++ {
			areas[ch] = Area{
				Base:           idx * b.numChannels * sampleBytes,
				FirstBitOffset: ch * sampleBytes * 8,
				StrideBits:     frameStrideBits,
				Channel:        ch,
			}
		}
	case Bundled4:
		const bundle = 4
		frameStrideBits := bundle * sampleBytes * 8
		for ch := 0; ch < b.numChannels; ch++ {
			group := ch / bundle
			within := ch % bundle
			areas[ch] = Area{
				Base:           (idx*b.numChannels + group*bundle) * sampleBytes,
				FirstBitOffset: within * sampleBytes * 8,
				StrideBits:     frameStrideBits,
				Channel:        ch,
			}
		}
	case Planar:
		for ch := 0; ch < b.numChannels; ch++ {
			areas[ch] = Area{
				Base:           idx * sampleBytes,
				FirstBitOffset: 0,
				StrideBits:     sampleBytes * 8,
				Channel:        ch,
			}
		}
	}
	return areas, idx, framesRequested
}

// Direction selects which side of the SPSC buffer BeginAccess serves.
type Direction int

const (
	Write Direction = iota
	Read
)

// EndAccess commits framesCommitted frames of the access direction most
// recently begun (producer publishes written frames, consumer releases
// read frames). framesCommitted must not exceed the value granted by the
// paired BeginAccess call.
func (b *Buffer) EndAccess(dir Direction, framesCommitted int) {
	if framesCommitted <= 0 {
		return
	}
	switch dir {
	case Write:
		b.wr.Add(uint64(framesCommitted))
	case Read:
		b.fireReadTap(b.lastReadAreas, framesCommitted)
		b.rd.Add(uint64(framesCommitted))
	}
}

// fireReadTap invokes the installed ReadTap, if any, with the areas and
// frame count a Read access (either the default single consumer or an
// independent Reader) just committed.
func (b *Buffer) fireReadTap(areas []Area, frames int) {
	if areas == nil {
		return
	}
	b.tapMu.Lock()
	tap := b.readTap
	b.tapMu.Unlock()
	if tap != nil {
		tap(areas, frames)
	}
}

// RawPlane returns the backing storage for a Planar buffer's channel, or
// the single contiguous backing storage for Interleaved/Bundled4 buffers
// (in which case ch is ignored). Used by CopyAudioAreas.
func (b *Buffer) RawPlane(ch int) []byte {
	if b.layout == Planar {
		return b.planes[ch]
	}
	return b.raw
}

package switchmatrix

import (
	"log/slog"

	"github.com/google/uuid"
	"smartxbar/internal/model"
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"
)

// Kind is the job kind the matrix installs at connect() time, decided from
// the source port's clock type and rate relative to the destination zone
// (spec §4.2).
type Kind int

const (
	KindCopy Kind = iota
	KindFormatConvert
	KindASRC
)

func (k Kind) String() string {
	switch k {
	case KindCopy:
		return "copy"
	case KindFormatConvert:
		return "format-convert"
	case KindASRC:
		return "asrc"
	default:
		return "unknown"
	}
}

// Job is one active source-output-port -> zone-input-port connection (spec
// §3 "Switch matrix job"). The conversion buffer a job writes into is
// always float32 internally (the engine's working format), regardless of
// the source device's on-the-wire format.
type Job struct {
	ID uuid.UUID

	Kind Kind

	SourceDevice *model.Device
	SourcePort   *model.Port
	ZoneInput    *model.Port

	// reader is this job's own independent cursor over SourceDevice.Ring
	// (spec §4.2/§9 open question #1: the same source port may feed
	// several zone-input ports, including across different base zones
	// with their own worker goroutines — a plain shared BeginAccess(Read,
	// ...) cursor on the device ring would let one job's consumption
	// starve or corrupt another's). Never nil.
	reader *ringbuffer.Reader

	asrc *asrcState // nil unless Kind == KindASRC

	// ShortLastRun records whether the source produced fewer frames than
	// requested on the most recent Run (spec §4.2: "short sources must not
	// block other jobs").
	ShortLastRun bool

	logger *slog.Logger
}

func newJob(kind Kind, sourceDevice *model.Device, sourcePort, zoneInput *model.Port, zoneRate int, logger *slog.Logger) *Job {
	j := &Job{
		ID:           uuid.New(),
		Kind:         kind,
		SourceDevice: sourceDevice,
		SourcePort:   sourcePort,
		ZoneInput:    zoneInput,
		reader:       sourceDevice.Ring.NewReader(),
		logger:       logger,
	}
	if kind == KindASRC {
		j.asrc = newASRCState(sourcePort.NumChannels, sourceDevice.Params.SampleRate, zoneRate)
	}
	return j
}

// close unregisters the job's reader from the source device ring (spec
// §4.2 disconnect/remove_connections: "outstanding frames in flight are
// dropped").
func (j *Job) close() {
	j.reader.Close()
}

// run pulls up to framesNeeded zone-rate frames from the source, writing
// them into the zone input port's conversion buffer (spec §4.2 "run").
// Returns the number of frames actually delivered this tick.
func (j *Job) run(framesNeeded int) int {
	switch j.Kind {
	case KindASRC:
		return j.runASRC(framesNeeded)
	default:
		return j.runDirect(framesNeeded)
	}
}

// runDirect handles KindCopy and KindFormatConvert: the source rate already
// matches the zone rate, so one source frame maps to one destination
// frame; only the sample format may need to cross.
func (j *Job) runDirect(framesNeeded int) int {
	srcAreas, _, granted := j.reader.BeginAccess(framesNeeded)
	j.ShortLastRun = granted < framesNeeded
	if granted == 0 {
		return 0
	}
	srcAreas = j.SourcePort.SliceAreas(srcAreas)
	dstAreas, _, dstGranted := j.ZoneInput.Ring.BeginAccess(ringbuffer.Write, granted)
	if dstGranted < granted {
		granted = dstGranted
	}
	if granted > 0 && srcAreas != nil {
		ringbuffer.CopyAudioAreas(
			j.ZoneInput.Ring.RawPlane(0), dstAreas, smartx.FormatFloat32,
			j.SourceDevice.Ring.RawPlane(0), srcAreas, j.SourceDevice.Params.Format,
			granted,
		)
	}
	j.ZoneInput.Ring.EndAccess(ringbuffer.Write, granted)
	j.reader.EndAccess(granted)
	return granted
}

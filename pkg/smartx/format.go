package smartx

// SampleFormat is the fixed-at-construction PCM sample encoding of a ring
// buffer (spec §3 "Audio device", §4.1).
type SampleFormat int

const (
	FormatInt16 SampleFormat = iota
	FormatInt32
	FormatFloat32
)

// Bytes returns the size in bytes of one sample in this format.
func (f SampleFormat) Bytes() int {
	switch f {
	case FormatInt16:
		return 2
	case FormatInt32, FormatFloat32:
		return 4
	default:
		return 0
	}
}

// ClockType governs how a device's worker is driven (spec §3 "Clock type").
type ClockType int

const (
	// ClockProvided: the port is clocked by the bar's own worker.
	ClockProvided ClockType = iota
	// ClockReceived: the endpoint is clocked externally, rate matches the zone.
	ClockReceived
	// ClockReceivedAsync: externally clocked, rate drifts — mandates ASRC.
	ClockReceivedAsync
)

// Direction is a device or port's data-flow direction.
type Direction int

const (
	DirectionSource Direction = iota
	DirectionSink
)

// DeviceParams are the construction-time parameters of an audio device
// (spec §3 "Audio device").
type DeviceParams struct {
	SampleRate  int
	PeriodSize  int // frames per period
	NumPeriods  int
	Format      SampleFormat
	NumChannels int
	Clock       ClockType
}

package smartx

// This file specifies the Module ABI (spec §6): the contract between the
// pipeline engine and a DSP plug-in. The plug-in loader that discovers
// concrete implementations (e.g. from shared libraries) is explicitly out
// of scope (spec §1) — only the capability interface lives here, the Go
// analogue of the teacher's dynamic-dispatch-to-plug-in pattern replaced by
// an explicit interface (Design Note §9).

// AudioStream is the read/write view a module core gets onto one of the
// pipeline's internal audio streams for the current period. Planar,
// float32, one slice per channel, reused buffer across periods (same
// "allocate at build time" policy as the rest of the engine, spec §5).
type AudioStream interface {
	NumChannels() int
	// Frames is the number of valid samples in each channel for this period.
	Frames() int
	// Channel returns channel i's samples, len == Frames().
	Channel(i int) []float32
}

// PinMapping names one of a module's declared (input, output) pin pairs
// that share a transform without being a single in-place in-out pin (spec
// §3 "Audio pin").
type PinMapping struct {
	InputPin  string
	OutputPin string
}

// StreamMapping is the concrete stream pair bound to a PinMapping.
type StreamMapping struct {
	Input  AudioStream
	Output AudioStream
}

// EventSink is the narrow capability a module core is given to push a
// ModuleEvent onto the bar's event bus (spec §6 "core.emit_event").
type EventSink interface {
	EmitModuleEvent(instanceName, typeName string, props Properties)
}

// CreateContext carries everything the engine hands to a plug-in's create
// function: the resolved stream bindings for in-out pins, the resolved
// (input, output) stream pairs for mappings, the module's static
// configuration Properties, and an EventSink (spec §6 "create").
type CreateContext struct {
	TypeName     string
	InstanceName string
	Config       Properties

	// InOutStreams maps an in-out pin name to the single stream it both
	// reads and writes in place (spec §3: "a module in-out pin represents
	// in-place processing of a single stream").
	InOutStreams map[string]AudioStream

	// Mappings maps each declared PinMapping to its bound stream pair.
	Mappings map[PinMapping]StreamMapping

	Events EventSink
}

// Core is the executable instance a plug-in returns from its create
// function (spec §6 "core.process/send_cmd/emit_event").
type Core interface {
	// Process runs one period of DSP over the bound streams. Not required
	// to be reentrant; the engine calls it from one thread at a time.
	Process() error

	// SendCmd dispatches a command-plane call. Must not block for longer
	// than a fraction of a period.
	SendCmd(cmd Properties) (Properties, error)

	// Destroy releases any resources held by the core. Called when the
	// pipeline engine that built the core is destroyed, which happens when
	// the zone running that pipeline is stopped; removing a module or
	// pipeline from the registry does not call it.
	Destroy()
}

// Factory is the plug-in entry point: create(config, type_name,
// instance_name) -> core (spec §6).
type Factory func(ctx CreateContext) (Core, error)

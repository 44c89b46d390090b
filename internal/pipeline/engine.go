// Package pipeline implements spec §4.4's pipeline engine: the build phase
// that orders a pipeline's modules by pin dependency and assigns internal
// audio streams, and the run phase that executes one period through them.
//
// Grounded on the teacher's device-graph wiring
// (internal/audiomanager/audiomanager.go builds a fixed fan-in/fan-out
// graph once at startup, then drives it one buffer at a time per tick) —
// generalized here from a fixed two-stage graph to an arbitrary module
// topology ordered by pin dependencies, since spec §4.4 requires supporting
// cyclic pipelines via delayed links, which the teacher's graph never
// needed.
package pipeline

import (
	"log/slog"

	"smartxbar/internal/model"
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"
)

// coreEntry pairs a scheduled module with the Core its Factory produced.
type coreEntry struct {
	module *model.Module
	core   smartx.Core
}

// Engine is the build-then-run state for one pipeline (spec §4.4). A zone
// owns exactly one Engine for its attached pipeline, rebuilt whenever the
// pipeline is reattached.
type Engine struct {
	registry       *model.Registry
	pipelineHandle model.Handle
	periodSize     int
	logger         *slog.Logger

	inputPins  []*model.Pin
	outputPins []*model.Pin

	pinStream map[model.Handle]*stream // pin handle -> its assigned stream
	order     []coreEntry

	// delayedLinks are copied source-stream -> destination-stream at the
	// end of every Process (spec §4.4 run step 4).
	delayedLinks []*model.Link

	initialized bool
}

// New creates an uninitialized Engine for the given pipeline. periodSize is
// the number of frames processed per Process call (the owning zone's sink
// period, spec §4.3).
func New(registry *model.Registry, pipelineHandle model.Handle, periodSize int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:       registry,
		pipelineHandle: pipelineHandle,
		periodSize:     periodSize,
		logger:         logger,
		pinStream:      make(map[model.Handle]*stream),
	}
}

// Initialize runs the build phase (spec §4.4 "initialize()"): validates
// pipeline boundary pins, computes the module execution order, assigns
// audio streams, and invokes each module's Factory to obtain its Core.
// factories maps a module's TypeName to the plug-in entry point that
// builds it; events is the sink handed to every module's CreateContext.
func (e *Engine) Initialize(factories map[string]smartx.Factory, events smartx.EventSink) error {
	pins := e.registry.PipelinePins(e.pipelineHandle)
	modules := e.registry.PipelineModules(e.pipelineHandle)
	links := e.registry.PipelineLinks(e.pipelineHandle)

	incoming := make(map[model.Handle]*model.Link) // sink pin -> link
	outgoing := make(map[model.Handle]*model.Link)  // source pin -> link
	for _, l := range links {
		incoming[l.Sink] = l
		outgoing[l.Source] = l
		if l.Type == model.LinkDelayed {
			e.delayedLinks = append(e.delayedLinks, l)
		}
	}

	for _, p := range pins {
		switch p.Direction {
		case model.PinPipelineInput:
			e.inputPins = append(e.inputPins, p)
			if l, ok := outgoing[p.Handle]; !ok || l.Type != model.LinkImmediate {
				return smartx.ErrIllFormedPipeline
			}
		case model.PinPipelineOutput:
			e.outputPins = append(e.outputPins, p)
			if l, ok := incoming[p.Handle]; !ok || l.Type != model.LinkImmediate {
				return smartx.ErrIllFormedPipeline
			}
		}
	}

	order, err := scheduleModules(pins, modules, links, e.registry)
	if err != nil {
		return err
	}

	if err := e.assignStreams(pins, modules, links); err != nil {
		return err
	}

	for _, m := range order {
		factory, ok := factories[m.TypeName]
		if !ok {
			return smartx.NewError(smartx.NotFound, "no factory registered for module type "+m.TypeName)
		}
		ctx := e.createContext(m, events)
		core, err := factory(ctx)
		if err != nil {
			return smartx.NewError(smartx.Failed, "module "+m.InstanceName+" failed to initialize: "+err.Error())
		}
		e.order = append(e.order, coreEntry{module: m, core: core})
	}

	e.initialized = true
	return nil
}

// createContext resolves a module's pin streams into the CreateContext its
// Factory needs (spec §4.4 build step 4).
func (e *Engine) createContext(m *model.Module, events smartx.EventSink) smartx.CreateContext {
	ctx := smartx.CreateContext{
		TypeName:     m.TypeName,
		InstanceName: m.InstanceName,
		Config:       m.Properties.Clone(),
		InOutStreams: make(map[string]smartx.AudioStream),
		Mappings:     make(map[smartx.PinMapping]smartx.StreamMapping),
		Events:       events,
	}
	pinByName := make(map[string]*model.Pin)
	for _, ph := range m.Pins {
		pin, ok := e.registry.Pin(ph)
		if !ok {
			continue
		}
		pinByName[pin.Name] = pin
		if pin.Direction == model.PinModuleInOut {
			ctx.InOutStreams[pin.Name] = e.pinStream[pin.Handle]
		}
	}
	for _, mapping := range m.Mappings {
		in := pinByName[mapping.InputPin]
		out := pinByName[mapping.OutputPin]
		if in == nil || out == nil {
			continue
		}
		ctx.Mappings[mapping] = smartx.StreamMapping{
			Input:  e.pinStream[in.Handle],
			Output: e.pinStream[out.Handle],
		}
	}
	return ctx
}

// ProvideInputData copies frames frames from each bound zone-input-port
// conversion buffer into the matching pipeline input pin's stream,
// converting format as needed (spec §4.4 run step 1). bindings maps a
// pipeline input pin's name to the ring buffer feeding it.
func (e *Engine) ProvideInputData(bindings map[string]*ringbuffer.Buffer, frames int) error {
	if !e.initialized {
		return smartx.NewError(smartx.InvalidState, "pipeline not initialized")
	}
	for _, pin := range e.inputPins {
		src, ok := bindings[pin.Name]
		if !ok {
			continue
		}
		dst := e.pinStream[pin.Handle]
		copyRingIntoStream(dst, src, frames)
	}
	return nil
}

// Process runs one period (spec §4.4 run steps 2-4): clears module-bundle
// output streams, executes every scheduled core in order, then carries
// delayed-link output into its destination's staging stream for the next
// tick's consumers.
func (e *Engine) Process() error {
	if !e.initialized {
		return smartx.NewError(smartx.InvalidState, "pipeline not initialized")
	}

	delayedDest := make(map[*stream]bool, len(e.delayedLinks))
	for _, l := range e.delayedLinks {
		if dst, ok := e.registry.Pin(l.Sink); ok {
			delayedDest[e.pinStream[dst.Handle]] = true
		}
	}
	inputStream := make(map[*stream]bool, len(e.inputPins))
	for _, p := range e.inputPins {
		inputStream[e.pinStream[p.Handle]] = true
	}
	cleared := make(map[*stream]bool)
	for _, s := range e.pinStream {
		if delayedDest[s] || inputStream[s] || cleared[s] {
			continue
		}
		s.clear()
		cleared[s] = true
	}

	for _, entry := range e.order {
		if err := entry.core.Process(); err != nil {
			return smartx.NewError(smartx.Failed, "module "+entry.module.InstanceName+" process failed: "+err.Error())
		}
	}

	for _, l := range e.delayedLinks {
		src, okSrc := e.registry.Pin(l.Source)
		dst, okDst := e.registry.Pin(l.Sink)
		if !okSrc || !okDst {
			continue
		}
		srcStream := e.pinStream[src.Handle]
		dstStream := e.pinStream[dst.Handle]
		for ch := 0; ch < srcStream.NumChannels() && ch < dstStream.NumChannels(); ch++ {
			copy(dstStream.Channel(ch), srcStream.Channel(ch))
		}
	}
	return nil
}

// RetrieveOutputData copies frames from each pipeline output pin's stream
// into the bound sink-side ring buffer, converting format as needed (spec
// §4.4 run step 5).
func (e *Engine) RetrieveOutputData(bindings map[string]*ringbuffer.Buffer, frames int) error {
	if !e.initialized {
		return smartx.NewError(smartx.InvalidState, "pipeline not initialized")
	}
	for _, pin := range e.outputPins {
		dst, ok := bindings[pin.Name]
		if !ok {
			continue
		}
		src := e.pinStream[pin.Handle]
		copyStreamIntoRing(dst, src, frames)
	}
	return nil
}

// InputPins returns the pipeline's boundary input pins, in build order.
func (e *Engine) InputPins() []*model.Pin { return e.inputPins }

// OutputPins returns the pipeline's boundary output pins, in build order.
func (e *Engine) OutputPins() []*model.Pin { return e.outputPins }

// ProvideSoleInput is ProvideInputData's single-port shorthand, for the
// common routing-zone case of one zone input port feeding one pipeline
// input pin (spec §4.3 step 3).
func (e *Engine) ProvideSoleInput(src *ringbuffer.Buffer, frames int) error {
	if len(e.inputPins) != 1 {
		return smartx.NewError(smartx.InvalidState, "pipeline does not have exactly one input pin")
	}
	return e.ProvideInputData(map[string]*ringbuffer.Buffer{e.inputPins[0].Name: src}, frames)
}

// RetrieveSoleOutput is RetrieveOutputData's single-port shorthand, for the
// common routing-zone case of one pipeline output pin feeding the sink
// device directly (spec §4.3 step 4).
func (e *Engine) RetrieveSoleOutput(dst *ringbuffer.Buffer, frames int) error {
	if len(e.outputPins) != 1 {
		return smartx.NewError(smartx.InvalidState, "pipeline does not have exactly one output pin")
	}
	return e.RetrieveOutputData(map[string]*ringbuffer.Buffer{e.outputPins[0].Name: dst}, frames)
}

// SendCmd dispatches cmd to the named module's Core (spec §4.5
// Processing.send_cmd). NotFound if no scheduled module has that instance
// name — including when the pipeline hasn't been Initialize'd yet.
func (e *Engine) SendCmd(instanceName string, cmd smartx.Properties) (smartx.Properties, error) {
	for _, entry := range e.order {
		if entry.module.InstanceName == instanceName {
			return entry.core.SendCmd(cmd)
		}
	}
	return nil, smartx.NewError(smartx.NotFound, "module instance "+instanceName+" not found in this pipeline")
}

// Destroy releases every scheduled core's resources (spec §6 "destroy").
func (e *Engine) Destroy() {
	for _, entry := range e.order {
		entry.core.Destroy()
	}
	e.order = nil
	e.initialized = false
}

package model

import "smartxbar/pkg/smartx"

// Pipeline is spec §3's "Pipeline": the static topology (pins, modules,
// links) a zone attaches for DSP processing. The engine-computed execution
// list and internal audio streams produced by initialize() live in
// internal/pipeline, keyed by this Handle, to keep the pure data model free
// of runtime artifacts.
type Pipeline struct {
	Handle     Handle
	Name       string
	SampleRate int
	PeriodSize int

	Pins    []Handle
	Modules []Handle
	Links   []Handle

	Initialized bool
}

func (r *Registry) CreatePipeline(name string, sampleRate, periodSize int) (*Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return nil, smartx.NewError(smartx.InvalidParameter, "pipeline name must not be empty")
	}
	if sampleRate <= 0 || periodSize <= 0 {
		return nil, smartx.NewError(smartx.InvalidParameter, "pipeline rate and period must be positive")
	}
	if _, exists := r.pipelineNames[name]; exists {
		return nil, smartx.NewError(smartx.AlreadyExists, "pipeline "+name+" already exists")
	}
	h := r.allocHandle()
	p := &Pipeline{Handle: h, Name: name, SampleRate: sampleRate, PeriodSize: periodSize}
	r.pipelines[h] = p
	r.pipelineNames[name] = h
	return p, nil
}

func (r *Registry) Pipeline(h Handle) (*Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[h]
	return p, ok
}

// PipelinePins, PipelineModules, and PipelineLinks resolve a pipeline's
// owned handles to their objects, for the pipeline engine's build phase.
func (r *Registry) PipelinePins(h Handle) []*Pin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[h]
	if !ok {
		return nil
	}
	out := make([]*Pin, 0, len(p.Pins))
	for _, ph := range p.Pins {
		out = append(out, r.pins[ph])
	}
	return out
}

func (r *Registry) PipelineModules(h Handle) []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[h]
	if !ok {
		return nil
	}
	out := make([]*Module, 0, len(p.Modules))
	for _, mh := range p.Modules {
		out = append(out, r.modules[mh])
	}
	return out
}

func (r *Registry) PipelineLinks(h Handle) []*Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[h]
	if !ok {
		return nil
	}
	out := make([]*Link, 0, len(p.Links))
	for _, lh := range p.Links {
		out = append(out, r.links[lh])
	}
	return out
}

func (r *Registry) PipelineByName(name string) (*Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.pipelineNames[name]
	if !ok {
		return nil, false
	}
	return r.pipelines[h], true
}

// pipelineOwningZone finds the zone (if any) a pipeline is attached to, so
// mutations inside it can be gated on that zone's state.
func (r *Registry) pipelineOwningZone(pipelineHandle Handle) *Zone {
	for _, z := range r.zones {
		if z.Pipeline == pipelineHandle {
			return z
		}
	}
	return nil
}

// DestroyPipeline removes a pipeline and everything it owns (pins, modules,
// links), subject to its owning zone's state.
func (r *Registry) DestroyPipeline(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[h]
	if !ok {
		return smartx.NewError(smartx.NotFound, "pipeline not found")
	}
	if z := r.pipelineOwningZone(h); !zoneMutationAllowed(z) {
		return errInvalidState
	}
	for _, lh := range p.Links {
		delete(r.links, lh)
	}
	for _, ph := range p.Pins {
		delete(r.pins, ph)
	}
	for _, mh := range p.Modules {
		delete(r.modules, mh)
	}
	delete(r.pipelines, h)
	delete(r.pipelineNames, p.Name)
	return nil
}

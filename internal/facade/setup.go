package facade

import (
	"smartxbar/internal/model"
	"smartxbar/internal/pipeline"
	"smartxbar/internal/zone"
	"smartxbar/pkg/smartx"
)

// Setup is spec §4.5's Setup façade: create/destroy/link every model
// object, gated by "owning zone not active" (enforced inside
// internal/model itself; Setup just forwards and adds the orchestration
// a bare registry mutation can't do — starting/stopping a zone's worker,
// registering module factories).
type Setup struct{ rt *Runtime }

// CreateSourceDevice registers a source device.
func (s *Setup) CreateSourceDevice(name string, params smartx.DeviceParams) (*model.Device, error) {
	return s.rt.registry.CreateDevice(name, smartx.DirectionSource, params)
}

// CreateSinkDevice registers a sink device, not yet linked to any zone.
func (s *Setup) CreateSinkDevice(name string, params smartx.DeviceParams) (*model.Device, error) {
	return s.rt.registry.CreateDevice(name, smartx.DirectionSink, params)
}

// CreateDummySource registers a source that ticks but is never routed
// (Design Note §9 open question — future work).
func (s *Setup) CreateDummySource(name string, params smartx.DeviceParams) (*model.Device, error) {
	return s.rt.registry.CreateDummySource(name, params)
}

// DestroySource tears down every active connection sourced from d (one
// ConnectionRemoved event each), emits SourceRemoved, then destroys the
// device (spec §8 scenario 5).
func (s *Setup) DestroySource(sourceHandle model.Handle) error {
	d, ok := s.rt.registry.Device(sourceHandle)
	if !ok {
		return smartx.NewError(smartx.NotFound, "source device not found")
	}
	for _, ph := range append([]model.Handle(nil), d.Ports...) {
		p, ok := s.rt.registry.Port(ph)
		if !ok {
			continue
		}
		for _, m := range s.rt.allMatrices() {
			for _, affected := range m.RemoveConnections(p) {
				s.rt.events.EmitConnectionRemoved(p.ID, affected.ID)
			}
		}
	}
	s.rt.events.EmitSourceRemoved(d.Name)
	return s.rt.registry.DestroyDevice(sourceHandle)
}

// DestroySink tears down every connection feeding sinkHandle's zone input
// ports, emits SinkRemoved, then destroys the device. The owning zone must
// not be Active/ActivePending (model.DestroyDevice enforces this).
func (s *Setup) DestroySink(sinkHandle model.Handle) error {
	d, ok := s.rt.registry.Device(sinkHandle)
	if !ok {
		return smartx.NewError(smartx.NotFound, "sink device not found")
	}
	if d.LinkedZone != 0 {
		if z, ok := s.rt.registry.Zone(d.LinkedZone); ok {
			if st := z.State(); st == model.ZoneActive || st == model.ZoneActivePending {
				return smartx.NewError(smartx.InvalidState, "owning zone is active or active-pending")
			}
			for _, ph := range z.InputPorts {
				p, ok := s.rt.registry.Port(ph)
				if !ok {
					continue
				}
				if m, ok := s.rt.matrices[z.MatrixOwner()]; ok {
					for _, c := range m.ActiveConnections() {
						if c.Sink.Handle == p.Handle {
							s.rt.events.EmitConnectionRemoved(c.Source.ID, p.ID)
						}
					}
					m.RemoveConnections(p)
				}
			}
		}
	}
	s.rt.events.EmitSinkRemoved(d.Name)
	return s.rt.registry.DestroyDevice(sinkHandle)
}

// CreateZone registers a new base routing zone.
func (s *Setup) CreateZone(name string) (*model.Zone, error) {
	return s.rt.registry.CreateZone(name)
}

// LinkSink attaches a sink device to a zone.
func (s *Setup) LinkSink(zoneHandle, deviceHandle model.Handle) error {
	return s.rt.registry.LinkSink(zoneHandle, deviceHandle)
}

// AddZoneInputPort creates an input port on a zone.
func (s *Setup) AddZoneInputPort(zoneHandle model.Handle, name string, id, numChannels int, format smartx.SampleFormat, bufferFrames int) (*model.Port, error) {
	return s.rt.registry.AddZoneInputPort(zoneHandle, name, id, numChannels, format, bufferFrames)
}

// AddPort creates a port on a source or sink device.
func (s *Setup) AddPort(deviceHandle model.Handle, name string, id, numChannels, baseIndex int) (*model.Port, error) {
	return s.rt.registry.AddPort(deviceHandle, name, id, numChannels, baseIndex)
}

// AttachPipeline attaches a pipeline to a zone.
func (s *Setup) AttachPipeline(zoneHandle, pipelineHandle model.Handle) error {
	return s.rt.registry.AttachPipeline(zoneHandle, pipelineHandle)
}

// DetachPipeline removes the pipeline attached to a zone.
func (s *Setup) DetachPipeline(zoneHandle model.Handle) error {
	return s.rt.registry.DetachPipeline(zoneHandle)
}

// AddDerivedZone wires derived into base's tick. Both zones must be
// Inactive; base must not itself be derived.
func (s *Setup) AddDerivedZone(baseHandle, derivedHandle model.Handle) error {
	return s.rt.registry.AddDerivedZone(baseHandle, derivedHandle)
}

// RemoveDerivedZone detaches derived from its base.
func (s *Setup) RemoveDerivedZone(baseHandle, derivedHandle model.Handle) error {
	return s.rt.registry.RemoveDerivedZone(baseHandle, derivedHandle)
}

// CreatePipeline registers a new pipeline's static topology.
func (s *Setup) CreatePipeline(name string, sampleRate, periodSize int) (*model.Pipeline, error) {
	return s.rt.registry.CreatePipeline(name, sampleRate, periodSize)
}

// AddPipelinePin creates a pipeline boundary pin.
func (s *Setup) AddPipelinePin(pipelineHandle model.Handle, name string, numChannels int, dir model.PinDirection) (*model.Pin, error) {
	return s.rt.registry.AddPipelinePin(pipelineHandle, name, numChannels, dir)
}

// AddModule creates a module instance inside a pipeline, storing its
// static Properties for the engine's build phase to fetch later.
func (s *Setup) AddModule(pipelineHandle model.Handle, typeName, instanceName string, mappings []smartx.PinMapping, properties smartx.Properties) (*model.Module, error) {
	return s.rt.registry.AddModule(pipelineHandle, typeName, instanceName, mappings, properties)
}

// AddModulePin creates a pin owned by a module.
func (s *Setup) AddModulePin(moduleHandle model.Handle, name string, numChannels int, dir model.PinDirection) (*model.Pin, error) {
	return s.rt.registry.AddModulePin(moduleHandle, name, numChannels, dir)
}

// AddLink creates a directed pin-to-pin link inside a pipeline.
func (s *Setup) AddLink(pipelineHandle, sourcePin, sinkPin model.Handle, linkType model.LinkType) (*model.Link, error) {
	return s.rt.registry.AddLink(pipelineHandle, sourcePin, sinkPin, linkType)
}

// RegisterModuleFactory registers the plug-in entry point for a module
// type name, consulted by every pipeline's build phase from here on
// (spec §6 "create").
func (s *Setup) RegisterModuleFactory(typeName string, factory smartx.Factory) {
	s.rt.mu.Lock()
	defer s.rt.mu.Unlock()
	s.rt.factories[typeName] = factory
}

// StartZone builds (or rebuilds) the matrix, any attached pipelines, and
// the worker for a base zone and every zone derived from it, then starts
// the worker (spec §4.3). zoneHandle must name a base zone with a linked
// sink; StartZone fails InvalidParameter on a derived zone, which has no
// worker of its own.
func (s *Setup) StartZone(zoneHandle model.Handle) error {
	z, ok := s.rt.registry.Zone(zoneHandle)
	if !ok {
		return smartx.NewError(smartx.NotFound, "zone not found")
	}
	if !z.IsBase() {
		return smartx.NewError(smartx.InvalidParameter, "cannot start a derived zone directly; start its base")
	}
	sink, ok := s.rt.registry.Device(z.Sink)
	if !ok {
		return smartx.NewError(smartx.InvalidState, "zone has no linked sink")
	}

	matrix := s.rt.matrixFor(zoneHandle)
	engine, err := s.buildEngine(z, sink.Params.PeriodSize)
	if err != nil {
		return err
	}
	clock := zone.NewClockForSink(sink)
	worker := zone.New(s.rt.registry, matrix, z, sink, engine, clock, s.rt.logger)

	for _, dh := range z.Derived {
		d, ok := s.rt.registry.Zone(dh)
		if !ok {
			continue
		}
		dSink, ok := s.rt.registry.Device(d.Sink)
		if !ok {
			return smartx.NewError(smartx.InvalidState, "derived zone has no linked sink")
		}
		dEngine, err := s.buildEngine(d, dSink.Params.PeriodSize)
		if err != nil {
			return err
		}
		worker.AddDerived(d, dSink, dEngine)
	}

	if err := worker.Start(); err != nil {
		return err
	}

	s.rt.mu.Lock()
	s.rt.workers[zoneHandle] = worker
	s.rt.clocks[zoneHandle] = clock
	s.rt.mu.Unlock()
	return nil
}

// buildEngine constructs and initializes the pipeline.Engine attached to
// z, or returns (nil, nil) if z has no pipeline (the no-pipeline direct
// delivery path, spec §4.3 step 3).
func (s *Setup) buildEngine(z *model.Zone, periodSize int) (*pipeline.Engine, error) {
	if z.Pipeline == 0 {
		return nil, nil
	}
	engine := pipeline.New(s.rt.registry, z.Pipeline, periodSize, s.rt.logger)
	if err := engine.Initialize(s.rt.factoriesSnapshot(), s.rt.events); err != nil {
		return nil, err
	}
	s.rt.mu.Lock()
	s.rt.engines[z.Pipeline] = engine
	s.rt.mu.Unlock()
	return engine, nil
}

// StopZone signals the base zone's worker to stop, blocks until it has
// exited, then releases its pipeline engines (its own and every derived
// zone's). Stop never interrupts an in-progress tick (spec §4.3).
func (s *Setup) StopZone(zoneHandle model.Handle) error {
	s.rt.mu.Lock()
	worker, ok := s.rt.workers[zoneHandle]
	s.rt.mu.Unlock()
	if !ok {
		return smartx.NewError(smartx.NotFound, "zone worker not running")
	}
	worker.Stop()
	worker.Wait()

	z, _ := s.rt.registry.Zone(zoneHandle)

	s.rt.mu.Lock()
	delete(s.rt.workers, zoneHandle)
	delete(s.rt.clocks, zoneHandle)
	if z != nil {
		if e, ok := s.rt.engines[z.Pipeline]; ok {
			e.Destroy()
			delete(s.rt.engines, z.Pipeline)
		}
		for _, dh := range z.Derived {
			if d, ok := s.rt.registry.Zone(dh); ok {
				if e, ok := s.rt.engines[d.Pipeline]; ok {
					e.Destroy()
					delete(s.rt.engines, d.Pipeline)
				}
			}
		}
	}
	s.rt.mu.Unlock()
	return nil
}

// SignalZoneClock notifies a Received/ReceivedAsync base zone's worker
// that its sink has completed a period (spec §4.3's SignalClock), for use
// by whatever stands in for the endpoint — a probe, a test, or a platform
// shim. Fails InvalidState if the zone's clock is Provided (that zone
// ticks off its own timer and is never signalled externally).
func (s *Setup) SignalZoneClock(zoneHandle model.Handle) error {
	s.rt.mu.Lock()
	clock, ok := s.rt.clocks[zoneHandle]
	s.rt.mu.Unlock()
	if !ok {
		return smartx.NewError(smartx.NotFound, "zone worker not running")
	}
	sig, ok := clock.(*zone.SignalClock)
	if !ok {
		return smartx.NewError(smartx.InvalidState, "zone clock is not externally signalled")
	}
	sig.Signal()
	return nil
}

// Package facade implements spec §4.5's four control façades — Setup,
// Routing, Processing, Debug — as thin, validated wrappers around
// internal/model's registry plus the runtime objects (switch matrices,
// routing zone workers, pipeline engines) a zone needs once it starts.
//
// Grounded on the teacher's top-level Roundtable type
// (pkg/roundtable/roundtable.go), which is the single object the
// application holds and calls into for every lifecycle operation
// (add/remove peer, wire audio) — generalized here into four narrower
// façades matching spec §4.5's explicit split, since a single do-
// everything type would blur the Setup/Routing/Processing/Debug boundary
// the spec draws deliberately.
package facade

import (
	"log/slog"
	"sync"

	"smartxbar/internal/eventbus"
	"smartxbar/internal/model"
	"smartxbar/internal/pipeline"
	"smartxbar/internal/switchmatrix"
	"smartxbar/internal/zone"
	"smartxbar/pkg/smartx"
)

// ProbeManager is the narrow capability the Debug façade needs from
// internal/probe (spec §4.5): start/stop a WAV record or inject probe on
// a named port. Defined here so facade can be built and tested before
// internal/probe exists; Runtime.SetProbeManager wires the real
// implementation in.
type ProbeManager interface {
	StartRecord(filePrefix string, port *model.Port, seconds float64) error
	StartInject(filePrefix string, port *model.Port, seconds float64) error
	StopProbe(portName string) error
}

// Runtime is the shared state behind every façade: the registry, the
// event bus, and the live runtime objects a started zone owns. Façades
// are thin views over one Runtime — construct one Runtime per bar
// instance and hand out its four façades.
type Runtime struct {
	registry *model.Registry
	events   *eventbus.Bus
	logger   *slog.Logger

	mu        sync.Mutex
	matrices  map[model.Handle]*switchmatrix.Matrix // base zone handle -> matrix
	workers   map[model.Handle]*zone.Worker          // base zone handle -> worker
	clocks    map[model.Handle]zone.ClockSource      // base zone handle -> its worker's clock
	engines   map[model.Handle]*pipeline.Engine      // pipeline handle -> engine
	factories map[string]smartx.Factory              // module type name -> factory
	groups    map[string][]int                       // source group name -> source port ids
	probes    ProbeManager
}

// New creates an empty Runtime around a fresh registry and event bus.
func New(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		registry:  model.New(),
		events:    eventbus.New(),
		logger:    logger,
		matrices:  make(map[model.Handle]*switchmatrix.Matrix),
		workers:   make(map[model.Handle]*zone.Worker),
		clocks:    make(map[model.Handle]zone.ClockSource),
		engines:   make(map[model.Handle]*pipeline.Engine),
		factories: make(map[string]smartx.Factory),
		groups:    make(map[string][]int),
	}
}

// Registry exposes the underlying model registry for read-only queries
// that don't warrant their own façade method (by-name/by-id lookups).
func (rt *Runtime) Registry() *model.Registry { return rt.registry }

// Events exposes the event bus for the application's consumer loop (spec
// §4.6 wait_for_event/get_next_event).
func (rt *Runtime) Events() *eventbus.Bus { return rt.events }

// SetProbeManager wires the Debug façade's probe implementation in. Must
// be called before Debug.StartRecord/StartInject/StopProbe are used.
func (rt *Runtime) SetProbeManager(p ProbeManager) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.probes = p
}

// Setup, Routing, Processing, Debug return this Runtime's four façades.
func (rt *Runtime) Setup() *Setup           { return &Setup{rt: rt} }
func (rt *Runtime) Routing() *Routing       { return &Routing{rt: rt} }
func (rt *Runtime) Processing() *Processing { return &Processing{rt: rt} }
func (rt *Runtime) Debug() *Debug           { return &Debug{rt: rt} }

// matrixFor returns (creating if needed) the switch matrix shared by a
// base zone and its derived zones (spec §3: "derived zones share their
// base's switch matrix").
func (rt *Runtime) matrixFor(baseZoneHandle model.Handle) *switchmatrix.Matrix {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	m, ok := rt.matrices[baseZoneHandle]
	if !ok {
		m = switchmatrix.New(rt.registry, baseZoneHandle, rt.logger)
		rt.matrices[baseZoneHandle] = m
	}
	return m
}

// matrixForSinkPort resolves the matrix owning the base zone that serves
// zoneInputPort's zone (itself if already a base), used by Routing's
// connect/disconnect to find the right matrix without the caller needing
// to know which zone is the base.
func (rt *Runtime) matrixForSinkPort(zoneInputPort *model.Port) (*switchmatrix.Matrix, *model.Zone, error) {
	if !zoneInputPort.OwnerIsZone {
		return nil, nil, smartx.NewError(smartx.InvalidParameter, "sink id does not name a zone input port")
	}
	z, ok := rt.registry.Zone(zoneInputPort.Owner)
	if !ok {
		return nil, nil, smartx.NewError(smartx.NotFound, "owning zone not found")
	}
	return rt.matrixFor(z.MatrixOwner()), z, nil
}

// zoneNominalRate returns the sample rate a zone's switch matrix jobs
// should treat as "in rate" — the rate of the zone's own linked sink
// device, since spec §3 defines a zone input port's conversion buffer and
// pipeline (if any) as running at the zone's rate, which in this design is
// inherited from the linked sink (spec §4.3's tick is the sink's period
// boundary).
func (rt *Runtime) zoneNominalRate(z *model.Zone) (int, error) {
	sink, ok := rt.registry.Device(z.Sink)
	if !ok {
		return 0, smartx.NewError(smartx.InvalidState, "zone has no linked sink")
	}
	return sink.Params.SampleRate, nil
}

func (rt *Runtime) factoriesSnapshot() map[string]smartx.Factory {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make(map[string]smartx.Factory, len(rt.factories))
	for k, v := range rt.factories {
		out[k] = v
	}
	return out
}

func (rt *Runtime) allMatrices() []*switchmatrix.Matrix {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]*switchmatrix.Matrix, 0, len(rt.matrices))
	for _, m := range rt.matrices {
		out = append(out, m)
	}
	return out
}

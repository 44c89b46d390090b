// Package switchmatrix implements spec §4.2: the fan-in/fan-out fabric
// that transfers PCM frames from source output ports to routing-zone input
// ports, performing ASRC and format conversion as required.
//
// Concurrency model (spec §5): all mutation happens either on the owning
// zone's worker goroutine between ticks, or under mu, serializing the
// control plane against the worker; the worker's Run call does the actual
// PCM transfer outside of any lock held across the whole tick (mu is only
// held long enough to snapshot the active job list).
package switchmatrix

import (
	"log/slog"
	"sync"

	"smartxbar/internal/model"
	"smartxbar/pkg/smartx"
)

// maxJobsPerMatrix is the resource cap behind spec §7's NoResources /
// spec §4.2's OutOfResources for switch matrix connect(): a generous bound
// on simultaneous active transfers per base zone.
const maxJobsPerMatrix = 256

// Matrix owns the set of active connections for one base zone (spec §3
// "Switch matrix job", §4.2).
type Matrix struct {
	mu       sync.Mutex
	registry *model.Registry
	logger   *slog.Logger

	baseZone model.Handle

	// jobsByZoneInput: at most one active source per zone input port (spec
	// §4.2 "the zone input port may have at most one active source at a
	// time").
	jobsByZoneInput map[model.Handle]*Job
}

// New creates a Matrix owned by the given base zone.
func New(registry *model.Registry, baseZone model.Handle, logger *slog.Logger) *Matrix {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matrix{
		registry:        registry,
		logger:          logger,
		baseZone:        baseZone,
		jobsByZoneInput: make(map[model.Handle]*Job),
	}
}

// Connect installs a job transferring sourcePort's output into
// zoneInputPort, deciding copy/format-convert/ASRC from the source
// device's clock type and sample rate relative to zoneRate (spec §4.2).
func (m *Matrix) Connect(sourcePort, zoneInputPort *model.Port, sourceDevice *model.Device, zoneRate int) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sourcePort.NumChannels != zoneInputPort.NumChannels {
		return nil, smartx.ErrIncompatibleChannels
	}
	if _, ok := m.jobsByZoneInput[zoneInputPort.Handle]; ok {
		// spec §4.2: "the source port must not already be connected to
		// this same zone input port; the zone input port may have at
		// most one active source at a time" — either way, the zone input
		// port already has an active connection.
		return nil, smartx.ErrAlreadyConnected
	}
	if len(m.jobsByZoneInput) >= maxJobsPerMatrix {
		return nil, smartx.ErrOutOfResources
	}

	asyncOrMismatched := sourceDevice.Params.Clock == smartx.ClockReceivedAsync || sourceDevice.Params.SampleRate != zoneRate
	var kind Kind
	switch {
	case asyncOrMismatched:
		kind = KindASRC
	case sourceDevice.Params.Format != smartx.FormatFloat32:
		kind = KindFormatConvert
	default:
		kind = KindCopy
	}

	job := newJob(kind, sourceDevice, sourcePort, zoneInputPort, zoneRate, m.logger)
	m.jobsByZoneInput[zoneInputPort.Handle] = job
	m.logger.Debug("switch matrix connected", "source", sourcePort.Name, "zoneInput", zoneInputPort.Name, "kind", kind.String())
	return job, nil
}

// Disconnect removes the job feeding zoneInputPort from sourcePort, if any.
// Outstanding frames in flight are simply dropped (spec §4.2).
func (m *Matrix) Disconnect(sourcePort, zoneInputPort *model.Port) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobsByZoneInput[zoneInputPort.Handle]
	if !ok || job.SourcePort.Handle != sourcePort.Handle {
		return smartx.NewError(smartx.NotFound, "no active connection between that source and zone input port")
	}
	delete(m.jobsByZoneInput, zoneInputPort.Handle)
	job.close()
	return nil
}

// RemoveConnections removes every job referencing the given port, whether
// it is the source side or the zone-input side (spec §4.2: "used when a
// source device is being stopped/destroyed"). Returns the zone input ports
// that were disconnected, so the caller can emit one event per connection.
func (m *Matrix) RemoveConnections(port *model.Port) []*model.Port {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected []*model.Port
	for zoneInputHandle, job := range m.jobsByZoneInput {
		if job.SourcePort.Handle == port.Handle || zoneInputHandle == port.Handle {
			affected = append(affected, job.ZoneInput)
			delete(m.jobsByZoneInput, zoneInputHandle)
			job.close()
		}
	}
	return affected
}

// ActiveConnections snapshots the current jobs as (source, zoneInput) port
// pairs, for Routing.GetActiveConnections (spec §4.5). Snapshotting here —
// rather than handing out the live map — is exactly the fix Design Note §9
// calls out: the original mutates the connection table mid-iteration; we
// never let a caller iterate live state.
func (m *Matrix) ActiveConnections() []*model.Port2Pair {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Port2Pair, 0, len(m.jobsByZoneInput))
	for _, job := range m.jobsByZoneInput {
		out = append(out, &model.Port2Pair{Source: job.SourcePort, Sink: job.ZoneInput})
	}
	return out
}

// Run executes one tick's worth of transfer for every active job whose
// zone input port belongs to zoneHandle (spec §4.2). A base zone's matrix
// is shared with its derived zones (model.Zone.MatrixOwner), so jobs are
// filtered by target zone: the base worker calls Run once with its own
// handle for its own tick, and once per inlined derived zone at that
// zone's own period (spec §4.3). Called after snapshotting the job list
// under mu; the actual ring buffer transfer for each job runs without
// holding mu, so a slow/short job cannot stall control-plane calls.
func (m *Matrix) Run(zoneHandle model.Handle, framesNeeded int) {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobsByZoneInput))
	for _, j := range m.jobsByZoneInput {
		if j.ZoneInput.Owner == zoneHandle {
			jobs = append(jobs, j)
		}
	}
	m.mu.Unlock()

	for _, j := range jobs {
		j.run(framesNeeded)
	}
}

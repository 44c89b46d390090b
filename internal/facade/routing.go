package facade

import (
	"smartxbar/internal/model"
	"smartxbar/pkg/smartx"
)

// Routing is spec §4.5's Routing façade: resolve source/sink ids through
// the configuration registry, locate the zone owning the sink port, and
// drive its switch matrix (spec §4.2). Cross-zone connect behavior follows
// the Open Question decision recorded in DESIGN.md: a source output port
// may feed any number of zone input ports across any number of base
// zones, the only restriction being one active source per zone input port.
type Routing struct{ rt *Runtime }

// AddSourceGroup registers name as an alias for sourceIDs, so a single
// ConnectGroup(name, sinkID) cascades to every member (spec §4.5 "source
// groups").
func (r *Routing) AddSourceGroup(name string, sourceIDs []int) error {
	if name == "" || len(sourceIDs) == 0 {
		return smartx.NewError(smartx.InvalidParameter, "source group name and member ids required")
	}
	r.rt.mu.Lock()
	defer r.rt.mu.Unlock()
	if _, exists := r.rt.groups[name]; exists {
		return smartx.NewError(smartx.AlreadyExists, "source group already exists")
	}
	r.rt.groups[name] = append([]int(nil), sourceIDs...)
	return nil
}

// Connect resolves sourceID and sinkID to ports and installs a switch
// matrix connection, emitting ConnectionEstablished on success (spec
// §4.2/§4.5). sourceID == sinkID == -1 is the canonical InvalidParameter
// boundary case (spec §8).
func (r *Routing) Connect(sourceID, sinkID int) error {
	if sourceID == -1 && sinkID == -1 {
		return smartx.NewError(smartx.InvalidParameter, "source and sink id must not both be -1")
	}
	sourcePort, ok := r.rt.registry.PortByID(smartx.DirectionSource, sourceID)
	if !ok {
		return smartx.NewError(smartx.NotFound, "source port id not found")
	}
	return r.connect(sourcePort, sinkID)
}

// ConnectGroup cascades Connect over every source id registered under
// groupName (spec §4.5 "allow one connect to cascade"). Stops at the
// first failure, leaving any earlier successful connections in place —
// matching spec §7's "every façade call returns its result synchronously"
// rather than an all-or-nothing transaction the spec never describes.
func (r *Routing) ConnectGroup(groupName string, sinkID int) error {
	r.rt.mu.Lock()
	ids, ok := r.rt.groups[groupName]
	r.rt.mu.Unlock()
	if !ok {
		return smartx.NewError(smartx.NotFound, "source group not found")
	}
	for _, id := range ids {
		if err := r.Connect(id, sinkID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Routing) connect(sourcePort *model.Port, sinkID int) error {
	zoneInputPort, ok := r.rt.registry.PortByID(smartx.DirectionSink, sinkID)
	if !ok {
		return smartx.NewError(smartx.NotFound, "sink port id not found")
	}
	sourceDevice, ok := r.rt.registry.Device(sourcePort.Owner)
	if !ok {
		return smartx.NewError(smartx.NotFound, "source device not found")
	}
	matrix, zone, err := r.rt.matrixForSinkPort(zoneInputPort)
	if err != nil {
		return err
	}
	rate, err := r.rt.zoneNominalRate(zone)
	if err != nil {
		return err
	}
	if _, err := matrix.Connect(sourcePort, zoneInputPort, sourceDevice, rate); err != nil {
		return err
	}
	r.rt.events.EmitConnectionEstablished(sourcePort.ID, zoneInputPort.ID)
	return nil
}

// Disconnect tears down the connection between sourceID and sinkID, if
// one is active, and emits ConnectionRemoved.
func (r *Routing) Disconnect(sourceID, sinkID int) error {
	sourcePort, ok := r.rt.registry.PortByID(smartx.DirectionSource, sourceID)
	if !ok {
		return smartx.NewError(smartx.NotFound, "source port id not found")
	}
	zoneInputPort, ok := r.rt.registry.PortByID(smartx.DirectionSink, sinkID)
	if !ok {
		return smartx.NewError(smartx.NotFound, "sink port id not found")
	}
	matrix, _, err := r.rt.matrixForSinkPort(zoneInputPort)
	if err != nil {
		return err
	}
	if err := matrix.Disconnect(sourcePort, zoneInputPort); err != nil {
		return err
	}
	r.rt.events.EmitConnectionRemoved(sourceID, sinkID)
	return nil
}

// GetActiveConnections returns every currently active {source, sink} port
// pair across every base zone's matrix (spec §4.5).
func (r *Routing) GetActiveConnections() []*model.Port2Pair {
	var out []*model.Port2Pair
	for _, m := range r.rt.allMatrices() {
		out = append(out, m.ActiveConnections()...)
	}
	return out
}

// Package model is the pure topology data model of spec §3: audio devices,
// ports, routing zones, pipelines, pins, links, and the Registry that owns
// all of them.
//
// Source idiom note (Design Note §9): the original is a smart-pointer
// object graph with cycles (device <-> port <-> zone <-> routing zone).
// Here the Registry is a single arena keyed by Handle; every inter-object
// reference (including "reverse" references like Port.Owner) is a Handle
// resolved through the Registry on use, never a live pointer cycle.
package model

import (
	"sync"

	"smartxbar/pkg/smartx"
)

// Handle is an opaque arena key. The zero Handle never names a live
// object, so it doubles as "no reference" (e.g. an unlinked sink's Zone
// handle, or a base zone's Base handle).
type Handle uint64

// Registry owns every topology object and the name/id indices used for
// lookup (spec §3's "Configuration registry", 5% share). Mutations are
// only permitted through the setup façade (internal/facade), and only
// against objects not owned by an active zone; the Registry itself
// enforces that gating so every caller gets it for free.
type Registry struct {
	mu sync.RWMutex

	nextHandle Handle

	devices     map[Handle]*Device
	deviceNames map[string]Handle

	ports          map[Handle]*Port
	portNames      map[string]Handle
	portIDsByDir   [2]map[int]Handle // indexed by smartx.Direction

	zones     map[Handle]*Zone
	zoneNames map[string]Handle

	pipelines     map[Handle]*Pipeline
	pipelineNames map[string]Handle

	pins    map[Handle]*Pin
	modules map[Handle]*Module
	links   map[Handle]*Link
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		devices:      make(map[Handle]*Device),
		deviceNames:  make(map[string]Handle),
		ports:        make(map[Handle]*Port),
		portNames:    make(map[string]Handle),
		portIDsByDir: [2]map[int]Handle{make(map[int]Handle), make(map[int]Handle)},
		zones:        make(map[Handle]*Zone),
		zoneNames:    make(map[string]Handle),
		pipelines:    make(map[Handle]*Pipeline),
		pipelineNames: make(map[string]Handle),
		pins:         make(map[Handle]*Pin),
		modules:      make(map[Handle]*Module),
		links:        make(map[Handle]*Link),
	}
}

func (r *Registry) allocHandle() Handle {
	r.nextHandle++
	return r.nextHandle
}

// zoneMutationAllowed reports whether z (may be nil) permits topology
// mutation right now (spec §4.3: rejected with InvalidState while Active
// or ActivePending).
func zoneMutationAllowed(z *Zone) bool {
	if z == nil {
		return true
	}
	switch z.State() {
	case ZoneActive, ZoneActivePending:
		return false
	default:
		return true
	}
}

var errInvalidState = smartx.NewError(smartx.InvalidState, "owning zone is active or active-pending")

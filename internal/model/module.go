package model

import "smartxbar/pkg/smartx"

// Module is spec §3's processing module: a named plug-in instance inside a
// pipeline, owning pins and declaring (input, output) pin mappings that
// share its transform without being a single in-place in-out pin.
type Module struct {
	Handle       Handle
	TypeName     string
	InstanceName string
	Pipeline     Handle
	Pins         []Handle
	Mappings     []smartx.PinMapping
	Properties   smartx.Properties
}

// AddModule creates a module instance inside a pipeline. Setup also stores
// the module's static Properties here, fetched later by the pipeline
// engine during build (spec §4.5).
func (r *Registry) AddModule(pipelineHandle Handle, typeName, instanceName string, mappings []smartx.PinMapping, properties smartx.Properties) (*Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pipelines[pipelineHandle]
	if !ok {
		return nil, smartx.NewError(smartx.NotFound, "pipeline not found")
	}
	if z := r.pipelineOwningZone(pipelineHandle); !zoneMutationAllowed(z) {
		return nil, errInvalidState
	}
	if typeName == "" || instanceName == "" {
		return nil, smartx.NewError(smartx.InvalidParameter, "module type name and instance name must be set")
	}
	for _, mh := range p.Modules {
		if r.modules[mh].InstanceName == instanceName {
			return nil, smartx.NewError(smartx.AlreadyExists, "module instance "+instanceName+" already exists")
		}
	}

	h := r.allocHandle()
	m := &Module{
		Handle:       h,
		TypeName:     typeName,
		InstanceName: instanceName,
		Pipeline:     pipelineHandle,
		Mappings:     mappings,
		Properties:   properties.Clone(),
	}
	r.modules[h] = m
	p.Modules = append(p.Modules, h)
	return m, nil
}

func (r *Registry) Module(h Handle) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[h]
	return m, ok
}

// ModuleByInstanceName searches every pipeline for a module with the given
// instance name, used by the Processing façade's send_cmd (spec §4.5).
func (r *Registry) ModuleByInstanceName(instanceName string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.modules {
		if m.InstanceName == instanceName {
			return m, true
		}
	}
	return nil, false
}

// DestroyModule removes a module and its pins.
func (r *Registry) DestroyModule(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[h]
	if !ok {
		return smartx.NewError(smartx.NotFound, "module not found")
	}
	if z := r.pipelineOwningZone(m.Pipeline); !zoneMutationAllowed(z) {
		return errInvalidState
	}
	for _, ph := range m.Pins {
		delete(r.pins, ph)
	}
	if p := r.pipelines[m.Pipeline]; p != nil {
		p.Modules = removeHandle(p.Modules, h)
	}
	delete(r.modules, h)
	return nil
}

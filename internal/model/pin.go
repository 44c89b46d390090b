package model

import "smartxbar/pkg/smartx"

// PinDirection is a pipeline pin's role (spec §3 "Audio pin").
type PinDirection int

const (
	PinPipelineInput PinDirection = iota
	PinPipelineOutput
	PinModuleInput
	PinModuleOutput
	PinModuleInOut
)

// Pin is spec §3's "Audio pin": internal to a pipeline, owned either by the
// pipeline itself (pipeline input/output pins) or by a module.
type Pin struct {
	Handle      Handle
	Name        string
	NumChannels int
	Direction   PinDirection

	// Owner is the Pipeline handle for pipeline input/output pins, or the
	// Module handle for module pins.
	Owner       Handle
	OwnerIsModule bool
}

// AddPipelinePin creates a pipeline-boundary pin (input or output).
func (r *Registry) AddPipelinePin(pipelineHandle Handle, name string, numChannels int, dir PinDirection) (*Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pipelines[pipelineHandle]
	if !ok {
		return nil, smartx.NewError(smartx.NotFound, "pipeline not found")
	}
	if z := r.pipelineOwningZone(pipelineHandle); !zoneMutationAllowed(z) {
		return nil, errInvalidState
	}
	if dir != PinPipelineInput && dir != PinPipelineOutput {
		return nil, smartx.NewError(smartx.InvalidParameter, "pipeline pin must be Input or Output")
	}
	if name == "" || numChannels <= 0 {
		return nil, smartx.NewError(smartx.InvalidParameter, "pin name must be set and channel count positive")
	}

	h := r.allocHandle()
	pin := &Pin{Handle: h, Name: name, NumChannels: numChannels, Direction: dir, Owner: pipelineHandle, OwnerIsModule: false}
	r.pins[h] = pin
	p.Pins = append(p.Pins, h)
	return pin, nil
}

// AddModulePin creates a pin owned by a module (input, output, or in-out).
func (r *Registry) AddModulePin(moduleHandle Handle, name string, numChannels int, dir PinDirection) (*Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[moduleHandle]
	if !ok {
		return nil, smartx.NewError(smartx.NotFound, "module not found")
	}
	if z := r.pipelineOwningZone(m.Pipeline); !zoneMutationAllowed(z) {
		return nil, errInvalidState
	}
	if name == "" || numChannels <= 0 {
		return nil, smartx.NewError(smartx.InvalidParameter, "pin name must be set and channel count positive")
	}

	h := r.allocHandle()
	pin := &Pin{Handle: h, Name: name, NumChannels: numChannels, Direction: dir, Owner: moduleHandle, OwnerIsModule: true}
	r.pins[h] = pin
	m.Pins = append(m.Pins, h)
	return pin, nil
}

func (r *Registry) Pin(h Handle) (*Pin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pins[h]
	return p, ok
}

// DestroyPin removes a pin, subject to its owning pipeline's zone gating.
func (r *Registry) DestroyPin(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pin, ok := r.pins[h]
	if !ok {
		return smartx.NewError(smartx.NotFound, "pin not found")
	}
	var pipelineHandle Handle
	if pin.OwnerIsModule {
		if m := r.modules[pin.Owner]; m != nil {
			pipelineHandle = m.Pipeline
		}
	} else {
		pipelineHandle = pin.Owner
	}
	if z := r.pipelineOwningZone(pipelineHandle); !zoneMutationAllowed(z) {
		return errInvalidState
	}

	if pin.OwnerIsModule {
		if m := r.modules[pin.Owner]; m != nil {
			m.Pins = removeHandle(m.Pins, h)
		}
	} else if p := r.pipelines[pipelineHandle]; p != nil {
		p.Pins = removeHandle(p.Pins, h)
	}
	delete(r.pins, h)
	return nil
}

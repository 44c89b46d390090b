package model

import "smartxbar/pkg/smartx"

// LinkType distinguishes a same-tick edge from a one-tick-deferred edge
// (spec §3 "Link", the mechanism for expressing cyclic pipelines).
type LinkType int

const (
	LinkImmediate LinkType = iota
	LinkDelayed
)

// Link is a directed pin-to-pin edge inside one pipeline.
type Link struct {
	Handle Handle
	Source Handle // pin handle
	Sink   Handle // pin handle
	Type   LinkType
}

// AddLink creates a directed link from source pin to sink pin. Invariants
// (spec §3): channel counts match; sink pin has no prior incoming link;
// source pin has no prior outgoing link.
func (r *Registry) AddLink(pipelineHandle, sourcePin, sinkPin Handle, linkType LinkType) (*Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pipelines[pipelineHandle]
	if !ok {
		return nil, smartx.NewError(smartx.NotFound, "pipeline not found")
	}
	if z := r.pipelineOwningZone(pipelineHandle); !zoneMutationAllowed(z) {
		return nil, errInvalidState
	}
	src, ok := r.pins[sourcePin]
	if !ok {
		return nil, smartx.NewError(smartx.NotFound, "source pin not found")
	}
	dst, ok := r.pins[sinkPin]
	if !ok {
		return nil, smartx.NewError(smartx.NotFound, "sink pin not found")
	}
	if src.NumChannels != dst.NumChannels {
		return nil, smartx.NewError(smartx.InvalidState, "link channel count mismatch")
	}
	if !isValidLinkDirectionPair(src.Direction, dst.Direction) {
		return nil, smartx.NewError(smartx.InvalidState, "link pin direction mismatch")
	}
	for _, lh := range p.Links {
		l := r.links[lh]
		if l.Source == sourcePin {
			return nil, smartx.NewError(smartx.InvalidState, "source pin already has an outgoing link")
		}
		if l.Sink == sinkPin {
			return nil, smartx.NewError(smartx.InvalidState, "sink pin already has an incoming link")
		}
	}

	h := r.allocHandle()
	l := &Link{Handle: h, Source: sourcePin, Sink: sinkPin, Type: linkType}
	r.links[h] = l
	p.Links = append(p.Links, h)
	return l, nil
}

// isValidLinkDirectionPair enforces that a link only ever flows
// output-like -> input-like: pipeline-input/module-output/module-in-out
// sources into pipeline-output/module-input/module-in-out sinks.
func isValidLinkDirectionPair(src, dst PinDirection) bool {
	validSource := src == PinPipelineInput || src == PinModuleOutput || src == PinModuleInOut
	validSink := dst == PinPipelineOutput || dst == PinModuleInput || dst == PinModuleInOut
	return validSource && validSink
}

func (r *Registry) Link(h Handle) (*Link, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[h]
	return l, ok
}

// RemoveLink deletes a link, subject to its pipeline's zone gating.
func (r *Registry) RemoveLink(pipelineHandle, linkHandle Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pipelines[pipelineHandle]
	if !ok {
		return smartx.NewError(smartx.NotFound, "pipeline not found")
	}
	if z := r.pipelineOwningZone(pipelineHandle); !zoneMutationAllowed(z) {
		return errInvalidState
	}
	if _, ok := r.links[linkHandle]; !ok {
		return smartx.NewError(smartx.NotFound, "link not found")
	}
	p.Links = removeHandle(p.Links, linkHandle)
	delete(r.links, linkHandle)
	return nil
}

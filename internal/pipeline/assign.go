package pipeline

import "smartxbar/internal/model"

// assignStreams groups pins connected by immediate links into shared
// streams (spec §4.4 build step 3): "starting from each pin, walk
// backwards through immediate links; all pins reached form one stream...
// Delayed links always start a fresh stream." Implemented as union-find
// over immediate links only — delayed links never union their endpoints,
// so each side keeps (or starts) its own stream.
func (e *Engine) assignStreams(pins []*model.Pin, modules []*model.Module, links []*model.Link) error {
	parent := make(map[model.Handle]model.Handle)
	channels := make(map[model.Handle]int)

	var register func(h model.Handle, numChannels int)
	register = func(h model.Handle, numChannels int) {
		if _, ok := parent[h]; !ok {
			parent[h] = h
			channels[h] = numChannels
		}
	}
	for _, p := range pins {
		register(p.Handle, p.NumChannels)
	}
	for _, m := range modules {
		for _, ph := range m.Pins {
			if pin, ok := e.registry.Pin(ph); ok {
				register(pin.Handle, pin.NumChannels)
			}
		}
	}

	var find func(h model.Handle) model.Handle
	find = func(h model.Handle) model.Handle {
		for parent[h] != h {
			parent[h] = parent[parent[h]]
			h = parent[h]
		}
		return h
	}
	union := func(a, b model.Handle) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, l := range links {
		if l.Type == model.LinkImmediate {
			union(l.Source, l.Sink)
		}
	}

	groupStream := make(map[model.Handle]*stream)
	for h := range parent {
		root := find(h)
		s, ok := groupStream[root]
		if !ok {
			s = newStream(channels[root], e.periodSize)
			groupStream[root] = s
		}
		e.pinStream[h] = s
	}
	return nil
}

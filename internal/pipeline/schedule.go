package pipeline

import (
	"smartxbar/internal/model"
	"smartxbar/pkg/smartx"
)

// scheduleModules computes the pipeline's execution order (spec §4.4 build
// step 2): repeatedly schedule every module whose input-direction pins are
// all "supplied", where a pin is supplied if it has no incoming link, its
// incoming link is delayed (last tick's data is always available), or its
// incoming link's source pin is itself already supplied. Fails with
// IllFormedPipeline if a round schedules nothing while modules remain, or
// if a pipeline output pin ends up unsupplied.
func scheduleModules(pins []*model.Pin, modules []*model.Module, links []*model.Link, registry *model.Registry) ([]*model.Module, error) {
	incoming := make(map[model.Handle]*model.Link, len(links))
	for _, l := range links {
		incoming[l.Sink] = l
	}

	supplied := make(map[model.Handle]bool)
	for _, p := range pins {
		if p.Direction == model.PinPipelineInput {
			supplied[p.Handle] = true
		}
	}
	for _, l := range links {
		if l.Type == model.LinkDelayed {
			supplied[l.Sink] = true
		}
	}

	scheduled := make(map[model.Handle]bool, len(modules))
	order := make([]*model.Module, 0, len(modules))
	for len(order) < len(modules) {
		progress := false
		for _, m := range modules {
			if scheduled[m.Handle] {
				continue
			}
			if !moduleReady(m, incoming, supplied, registry) {
				continue
			}
			scheduled[m.Handle] = true
			order = append(order, m)
			progress = true
			for _, ph := range m.Pins {
				pin, ok := registry.Pin(ph)
				if !ok {
					continue
				}
				if pin.Direction == model.PinModuleOutput || pin.Direction == model.PinModuleInOut {
					supplied[pin.Handle] = true
				}
			}
		}
		if !progress {
			return nil, smartx.ErrIllFormedPipeline
		}
	}

	for _, p := range pins {
		if p.Direction == model.PinPipelineOutput && !pinSupplied(p.Handle, incoming, supplied) {
			return nil, smartx.ErrIllFormedPipeline
		}
	}
	return order, nil
}

func moduleReady(m *model.Module, incoming map[model.Handle]*model.Link, supplied map[model.Handle]bool, registry *model.Registry) bool {
	for _, ph := range m.Pins {
		pin, ok := registry.Pin(ph)
		if !ok {
			continue
		}
		if pin.Direction != model.PinModuleInput && pin.Direction != model.PinModuleInOut {
			continue
		}
		if !pinSupplied(pin.Handle, incoming, supplied) {
			return false
		}
	}
	return true
}

func pinSupplied(pinHandle model.Handle, incoming map[model.Handle]*model.Link, supplied map[model.Handle]bool) bool {
	if supplied[pinHandle] {
		return true
	}
	link, ok := incoming[pinHandle]
	if !ok {
		return true
	}
	if link.Type == model.LinkDelayed {
		return true
	}
	return supplied[link.Source]
}

package facade

import "smartxbar/pkg/smartx"

// Processing is spec §4.5's Processing façade: dispatch a command-plane
// call to a named module instance's Core.SendCmd, wherever its owning
// pipeline's engine currently lives.
type Processing struct{ rt *Runtime }

// SendCmd resolves instanceName to its owning pipeline via the registry,
// then to that pipeline's running engine, and forwards cmd. NotFound if
// the module instance doesn't exist or its pipeline's zone isn't running
// (no engine built yet).
func (p *Processing) SendCmd(instanceName string, cmd smartx.Properties) (smartx.Properties, error) {
	m, ok := p.rt.registry.ModuleByInstanceName(instanceName)
	if !ok {
		return nil, smartx.NewError(smartx.NotFound, "module instance "+instanceName+" not found")
	}
	p.rt.mu.Lock()
	engine, ok := p.rt.engines[m.Pipeline]
	p.rt.mu.Unlock()
	if !ok {
		return nil, smartx.NewError(smartx.NotFound, "module instance "+instanceName+"'s pipeline is not running")
	}
	return engine.SendCmd(instanceName, cmd)
}

package facade

import "smartxbar/pkg/smartx"

// Debug is spec §4.5's Debug façade: start/stop WAV record and inject
// probes on a named port. The actual WAV I/O lives behind the
// ProbeManager capability (internal/probe), wired in via
// Runtime.SetProbeManager so facade can be built and tested independently.
type Debug struct{ rt *Runtime }

// StartRecord taps portName's PCM into per-channel WAV files named
// filePrefix + "_chN.wav" for seconds seconds (spec §4.5). Fails
// InvalidState if a probe is already active on that port.
func (d *Debug) StartRecord(filePrefix, portName string, seconds float64) error {
	port, ok := d.rt.registry.PortByName(portName)
	if !ok {
		return smartx.NewError(smartx.NotFound, "port not found")
	}
	if d.rt.probes == nil {
		return smartx.NewError(smartx.Failed, "no probe manager configured")
	}
	return d.rt.probes.StartRecord(filePrefix, port, seconds)
}

// StartInject feeds portName's PCM from per-channel WAV files named
// filePrefix + "_chN.wav" for seconds seconds (spec §4.5).
func (d *Debug) StartInject(filePrefix, portName string, seconds float64) error {
	port, ok := d.rt.registry.PortByName(portName)
	if !ok {
		return smartx.NewError(smartx.NotFound, "port not found")
	}
	if d.rt.probes == nil {
		return smartx.NewError(smartx.Failed, "no probe manager configured")
	}
	return d.rt.probes.StartInject(filePrefix, port, seconds)
}

// StopProbe stops whichever probe (record or inject) is active on
// portName. NotFound if none is active.
func (d *Debug) StopProbe(portName string) error {
	if _, ok := d.rt.registry.PortByName(portName); !ok {
		return smartx.NewError(smartx.NotFound, "port not found")
	}
	if d.rt.probes == nil {
		return smartx.NewError(smartx.Failed, "no probe manager configured")
	}
	return d.rt.probes.StopProbe(portName)
}

// Command smartxbar-demo wires a minimal bar by hand: one Provided-clock
// source, one Received-clock sink, a single-module gain pipeline, starts
// the zone, connects the source to the sink, and drains the event bus —
// the demo-wiring role the teacher's cmd/main.go played for its WebRTC
// peer, replaced here since that peer/signalling stack has no place in
// this core (spec §1 places networking/signalling out of scope).
package main

import (
	"fmt"
	"os"
	"time"

	"smartxbar/cmd/smartxbar-demo/gainmodule"
	"smartxbar/internal/config"
	"smartxbar/internal/facade"
	"smartxbar/internal/logging"
	"smartxbar/internal/model"
	"smartxbar/internal/probe"
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"
)

// feedSilence stands in for the ALSA-world application client (spec §1
// places that IPC transport out of scope): a Provided-clock source has no
// worker of its own driving writes into its ring buffer, so something
// external must produce frames at roughly the device's period rate. Here
// that's silence; a real client would write captured/decoded PCM instead.
func feedSilence(source *model.Device, stop <-chan struct{}) {
	period := time.Duration(source.Params.PeriodSize) * time.Second / time.Duration(source.Params.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			areas, _, granted := source.Ring.BeginAccess(ringbuffer.Write, source.Params.PeriodSize)
			if granted == 0 {
				continue
			}
			source.Ring.EndAccess(ringbuffer.Write, granted)
			_ = areas // already zeroed; silence needs no writes
		}
	}
}

func main() {
	logger, logFile, err := logging.New("info", "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging setup failed:", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	sched := config.Load(logger)
	config.ApplyToCurrentThread(config.NoopPlatform{}, sched, logger)
	logger.Info("scheduling config loaded", "policy", sched.Policy.String(), "priority", sched.Priority)

	rt := facade.New(logger)
	rt.SetProbeManager(probe.New(rt.Registry(), logger))
	rt.Setup().RegisterModuleFactory(gainmodule.TypeName, gainmodule.Factory)

	if err := buildTopology(rt); err != nil {
		logger.Error("failed to build topology", "err", err)
		os.Exit(1)
	}

	zone, _ := rt.Registry().ZoneByName("zone.main")
	if err := rt.Setup().StartZone(zone.Handle); err != nil {
		logger.Error("failed to start zone", "err", err)
		os.Exit(1)
	}
	defer rt.Setup().StopZone(zone.Handle)

	sourcePort, _ := rt.Registry().PortByName("source.line_in.out")
	sinkPort, _ := rt.Registry().PortByName("zone.main.in")
	if err := rt.Routing().Connect(sourcePort.ID, sinkPort.ID); err != nil {
		logger.Error("failed to connect", "err", err)
		os.Exit(1)
	}

	source, _ := rt.Registry().Device(sourcePort.Owner)
	stop := make(chan struct{})
	defer close(stop)
	go feedSilence(source, stop)

	logger.Info("bar running, draining events for 2 seconds")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rt.Events().WaitForEvent(200 * time.Millisecond) {
			for {
				ev, ok := rt.Events().GetNextEvent()
				if !ok {
					break
				}
				logger.Info("event", "kind", ev.Kind.String())
			}
		}
	}
}

// buildTopology creates a Provided-clock stereo source, a Received-clock
// stereo sink linked to a zone running a one-module gain pipeline — the
// single-stereo-connection scenario of spec §8 scenario 1.
func buildTopology(rt *facade.Runtime) error {
	setup := rt.Setup()

	source, err := setup.CreateSourceDevice("source.line_in", smartx.DeviceParams{
		SampleRate: 48000, PeriodSize: 192, NumPeriods: 4,
		Format: smartx.FormatInt16, NumChannels: 2, Clock: smartx.ClockProvided,
	})
	if err != nil {
		return err
	}
	if _, err := setup.AddPort(source.Handle, "source.line_in.out", 1, 2, 0); err != nil {
		return err
	}

	sink, err := setup.CreateSinkDevice("sink.speakers", smartx.DeviceParams{
		SampleRate: 48000, PeriodSize: 192, NumPeriods: 4,
		Format: smartx.FormatInt16, NumChannels: 2, Clock: smartx.ClockReceived,
	})
	if err != nil {
		return err
	}

	zone, err := setup.CreateZone("zone.main")
	if err != nil {
		return err
	}
	if err := setup.LinkSink(zone.Handle, sink.Handle); err != nil {
		return err
	}
	if _, err := setup.AddZoneInputPort(zone.Handle, "zone.main.in", 1, 2, smartx.FormatFloat32, 192*4); err != nil {
		return err
	}

	pipeline, err := setup.CreatePipeline("pipeline.gain", 48000, 192)
	if err != nil {
		return err
	}
	pipeIn, err := setup.AddPipelinePin(pipeline.Handle, "pipe_in", 2, model.PinPipelineInput)
	if err != nil {
		return err
	}
	pipeOut, err := setup.AddPipelinePin(pipeline.Handle, "pipe_out", 2, model.PinPipelineOutput)
	if err != nil {
		return err
	}
	gain, err := setup.AddModule(pipeline.Handle, gainmodule.TypeName, "gain.main", nil, smartx.Properties{
		"gain_db10": smartx.Int32(-60),
	})
	if err != nil {
		return err
	}
	gainPin, err := setup.AddModulePin(gain.Handle, "gain_io", 2, model.PinModuleInOut)
	if err != nil {
		return err
	}
	if _, err := setup.AddLink(pipeline.Handle, pipeIn.Handle, gainPin.Handle, model.LinkImmediate); err != nil {
		return err
	}
	if _, err := setup.AddLink(pipeline.Handle, gainPin.Handle, pipeOut.Handle, model.LinkImmediate); err != nil {
		return err
	}
	return setup.AttachPipeline(zone.Handle, pipeline.Handle)
}

// Package gainmodule is a minimal spec §6 Module ABI implementation: a
// single in-out pin applying a linear gain, with a command interface that
// sets gain in dB/10 (clamped to [-1440, 0], spec §8's volume boundary
// case) and emits a ModuleEvent whenever the gain changes. Stands in for
// the plug-in loader spec §1 places out of scope, wired directly into
// Setup.RegisterModuleFactory by the demo binary.
package gainmodule

import (
	"math"

	"smartxbar/pkg/smartx"
)

const (
	minGainDeciBel = -1440
	maxGainDeciBel = 0
)

type core struct {
	instanceName string
	typeName     string
	stream       smartx.AudioStream
	events       smartx.EventSink
	gainLinear   float32
}

// Factory is the plug-in entry point registered as TypeName (spec §6
// "create").
const TypeName = "gain"

// Factory builds a gain Core from ctx. Expects exactly one in-out pin
// (declared by the caller when adding the module); a static "gain_db10"
// property (int32, dB/10) seeds the initial gain, defaulting to 0 dB.
func Factory(ctx smartx.CreateContext) (smartx.Core, error) {
	var stream smartx.AudioStream
	for _, s := range ctx.InOutStreams {
		stream = s
		break
	}
	if stream == nil {
		return nil, smartx.NewError(smartx.InvalidParameter, "gain module requires one in-out pin")
	}

	gainDB10 := int32(0)
	if v, ok := ctx.Config["gain_db10"]; ok {
		if i, ok := v.Int32(); ok {
			gainDB10 = i
		}
	}

	return &core{
		instanceName: ctx.InstanceName,
		typeName:     ctx.TypeName,
		stream:       stream,
		events:       ctx.Events,
		gainLinear:   deciBelToLinear(clampDeciBel(gainDB10)),
	}, nil
}

func clampDeciBel(db10 int32) int32 {
	if db10 < minGainDeciBel {
		return minGainDeciBel
	}
	if db10 > maxGainDeciBel {
		return maxGainDeciBel
	}
	return db10
}

func deciBelToLinear(db10 int32) float32 {
	return float32(math.Pow(10, float64(db10)/10/20))
}

func (c *core) Process() error {
	for ch := 0; ch < c.stream.NumChannels(); ch++ {
		samples := c.stream.Channel(ch)
		for i := range samples {
			samples[i] *= c.gainLinear
		}
	}
	return nil
}

// SendCmd handles "set_gain_db10" (int32) -> {} and "get_gain_db10" (none)
// -> {"gain_db10": int32} (spec §4.5 Processing.send_cmd, §8 volume
// clamping boundary case).
func (c *core) SendCmd(cmd smartx.Properties) (smartx.Properties, error) {
	if v, ok := cmd["set_gain_db10"]; ok {
		raw, ok := v.Int32()
		if !ok {
			return nil, smartx.NewError(smartx.InvalidParameter, "set_gain_db10 must be int32")
		}
		clamped := clampDeciBel(raw)
		c.gainLinear = deciBelToLinear(clamped)
		if c.events != nil {
			c.events.EmitModuleEvent(c.instanceName, c.typeName, smartx.Properties{
				"gain_db10": smartx.Int32(clamped),
			})
		}
		return smartx.Properties{}, nil
	}
	if _, ok := cmd["get_gain_db10"]; ok {
		return smartx.Properties{"gain_db10": smartx.Int32(int32(20 * 10 * math.Log10(float64(c.gainLinear))))}, nil
	}
	return nil, smartx.NewError(smartx.InvalidParameter, "unrecognized gain command")
}

func (c *core) Destroy() {}

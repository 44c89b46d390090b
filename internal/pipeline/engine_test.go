package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"smartxbar/internal/model"
	"smartxbar/internal/ringbuffer"
	"smartxbar/pkg/smartx"
)

type gainCore struct {
	stream smartx.AudioStream
	factor float32
}

func (g *gainCore) Process() error {
	for ch := 0; ch < g.stream.NumChannels(); ch++ {
		c := g.stream.Channel(ch)
		for i := range c {
			c[i] *= g.factor
		}
	}
	return nil
}
func (g *gainCore) SendCmd(smartx.Properties) (smartx.Properties, error) { return nil, nil }
func (g *gainCore) Destroy()                                            {}

func gainFactory(factor float32) smartx.Factory {
	return func(ctx smartx.CreateContext) (smartx.Core, error) {
		s, ok := ctx.InOutStreams["io"]
		if !ok {
			return nil, smartx.NewError(smartx.InvalidParameter, "missing io stream")
		}
		return &gainCore{stream: s, factor: factor}, nil
	}
}

func buildLinearPipeline(t *testing.T) (*model.Registry, model.Handle) {
	t.Helper()
	r := model.New()
	p, err := r.CreatePipeline("linear", 48000, 4)
	require.NoError(t, err)

	in, err := r.AddPipelinePin(p.Handle, "in", 1, model.PinPipelineInput)
	require.NoError(t, err)
	out, err := r.AddPipelinePin(p.Handle, "out", 1, model.PinPipelineOutput)
	require.NoError(t, err)

	m, err := r.AddModule(p.Handle, "gain", "gain0", nil, smartx.Properties{})
	require.NoError(t, err)
	io, err := r.AddModulePin(m.Handle, "io", 1, model.PinModuleInOut)
	require.NoError(t, err)

	_, err = r.AddLink(p.Handle, in.Handle, io.Handle, model.LinkImmediate)
	require.NoError(t, err)
	_, err = r.AddLink(p.Handle, io.Handle, out.Handle, model.LinkImmediate)
	require.NoError(t, err)

	return r, p.Handle
}

func TestEngineLinearPassthroughDoublesSignal(t *testing.T) {
	r, ph := buildLinearPipeline(t)
	e := New(r, ph, 4, nil)

	err := e.Initialize(map[string]smartx.Factory{"gain": gainFactory(2)}, nil)
	require.NoError(t, err)

	srcRing := ringbuffer.New(4, 1, smartx.FormatFloat32, ringbuffer.Interleaved)
	areas, _, granted := srcRing.BeginAccess(ringbuffer.Write, 4)
	require.Equal(t, 4, granted)
	raw := srcRing.RawPlane(0)
	for i, v := range []float64{0.1, 0.2, -0.3, 0.4} {
		ringbuffer.WriteSample(raw, areas[0], i, smartx.FormatFloat32, v)
	}
	srcRing.EndAccess(ringbuffer.Write, 4)

	require.NoError(t, e.ProvideInputData(map[string]*ringbuffer.Buffer{"in": srcRing}, 4))
	require.NoError(t, e.Process())

	dstRing := ringbuffer.New(4, 1, smartx.FormatFloat32, ringbuffer.Interleaved)
	require.NoError(t, e.RetrieveOutputData(map[string]*ringbuffer.Buffer{"out": dstRing}, 4))

	dAreas, _, granted := dstRing.BeginAccess(ringbuffer.Read, 4)
	require.Equal(t, 4, granted)
	rawOut := dstRing.RawPlane(0)
	want := []float64{0.2, 0.4, -0.6, 0.8}
	for i, w := range want {
		got := ringbuffer.ReadSample(rawOut, dAreas[0], i, smartx.FormatFloat32)
		assert.InDelta(t, w, got, 1e-6)
	}
}

func TestInitializeRejectsCycleWithoutDelay(t *testing.T) {
	r := model.New()
	p, err := r.CreatePipeline("cyclic", 48000, 4)
	require.NoError(t, err)

	m1, err := r.AddModule(p.Handle, "passthrough", "m1", nil, smartx.Properties{})
	require.NoError(t, err)
	m1in, err := r.AddModulePin(m1.Handle, "in", 1, model.PinModuleInput)
	require.NoError(t, err)
	m1out, err := r.AddModulePin(m1.Handle, "out", 1, model.PinModuleOutput)
	require.NoError(t, err)

	m2, err := r.AddModule(p.Handle, "passthrough", "m2", nil, smartx.Properties{})
	require.NoError(t, err)
	m2in, err := r.AddModulePin(m2.Handle, "in", 1, model.PinModuleInput)
	require.NoError(t, err)
	m2out, err := r.AddModulePin(m2.Handle, "out", 1, model.PinModuleOutput)
	require.NoError(t, err)

	_, err = r.AddLink(p.Handle, m1out.Handle, m2in.Handle, model.LinkImmediate)
	require.NoError(t, err)
	_, err = r.AddLink(p.Handle, m2out.Handle, m1in.Handle, model.LinkImmediate)
	require.NoError(t, err)

	e := New(r, p.Handle, 4, nil)
	err = e.Initialize(map[string]smartx.Factory{"passthrough": gainFactory(1)}, nil)
	assert.ErrorIs(t, err, smartx.ErrIllFormedPipeline)
}

func TestInitializeAcceptsCycleWithDelayedLink(t *testing.T) {
	r := model.New()
	p, err := r.CreatePipeline("cyclic-delayed", 48000, 4)
	require.NoError(t, err)

	m1, err := r.AddModule(p.Handle, "passthrough", "m1", nil, smartx.Properties{})
	require.NoError(t, err)
	m1in, err := r.AddModulePin(m1.Handle, "in", 1, model.PinModuleInput)
	require.NoError(t, err)
	m1out, err := r.AddModulePin(m1.Handle, "out", 1, model.PinModuleOutput)
	require.NoError(t, err)

	m2, err := r.AddModule(p.Handle, "passthrough", "m2", nil, smartx.Properties{})
	require.NoError(t, err)
	m2in, err := r.AddModulePin(m2.Handle, "in", 1, model.PinModuleInput)
	require.NoError(t, err)
	m2out, err := r.AddModulePin(m2.Handle, "out", 1, model.PinModuleOutput)
	require.NoError(t, err)

	_, err = r.AddLink(p.Handle, m1out.Handle, m2in.Handle, model.LinkImmediate)
	require.NoError(t, err)
	_, err = r.AddLink(p.Handle, m2out.Handle, m1in.Handle, model.LinkDelayed)
	require.NoError(t, err)

	e := New(r, p.Handle, 4, nil)
	// These modules have separate input/output pins and no "io" in-out pin,
	// so they need a factory that does not look one up.
	passthrough := func(smartx.CreateContext) (smartx.Core, error) { return &gainCore{factor: 1}, nil }
	err = e.Initialize(map[string]smartx.Factory{"passthrough": passthrough}, nil)
	assert.NoError(t, err, "a delayed back-edge must break the cycle for scheduling purposes")
}

func TestInitializeRejectsUnlinkedPipelineBoundaryPin(t *testing.T) {
	r := model.New()
	p, err := r.CreatePipeline("dangling", 48000, 4)
	require.NoError(t, err)
	_, err = r.AddPipelinePin(p.Handle, "in", 1, model.PinPipelineInput)
	require.NoError(t, err)

	e := New(r, p.Handle, 4, nil)
	err = e.Initialize(nil, nil)
	assert.ErrorIs(t, err, smartx.ErrIllFormedPipeline)
}

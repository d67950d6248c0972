package testbed

import (
	"encoding/binary"
	"math"

	"github.com/lumen-engine/lumen/engine"
	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer"
)

// vertex is position (vec2) followed by color (vec3), tightly packed.
const vertexStride = 5 * 4

type gameState struct {
	eng *engine.Engine

	vertexBuffer renderer.Handle
	pipeline     renderer.Handle

	elapsed float64
}

type TestGame struct {
	*engine.Game
}

func New() *TestGame {
	state := &gameState{}
	tg := &TestGame{
		Game: &engine.Game{
			State: state,
		},
	}

	tg.FnInitialize = tg.initialize
	tg.FnUpdate = tg.update
	tg.FnRender = tg.render
	tg.FnOnResize = tg.onResize
	tg.FnShaderReload = tg.onShaderReload

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) initialize(e *engine.Engine) error {
	s := g.state()
	s.eng = e

	vertices := triangleVertices()
	vb, err := e.Renderer().CreateBuffer(uint64(len(vertices)), renderer.BufferUsageVertex, vertices)
	if err != nil {
		return err
	}
	s.vertexBuffer = vb

	pipeline, err := g.buildPipeline()
	if err != nil {
		return err
	}
	s.pipeline = pipeline

	core.LogInfo("Testbed initialized.")
	return nil
}

func (g *TestGame) buildPipeline() (renderer.Handle, error) {
	s := g.state()

	vert, err := s.eng.Assets().LoadShader("triangle.vert")
	if err != nil {
		return renderer.NilHandle, err
	}
	frag, err := s.eng.Assets().LoadShader("triangle.frag")
	if err != nil {
		return renderer.NilHandle, err
	}

	return s.eng.Renderer().CreatePipeline(renderer.PipelineConfig{
		VertexShader:   vert,
		FragmentShader: frag,
		VertexLayout: renderer.VertexLayout{
			Stride: vertexStride,
			Attributes: []renderer.VertexAttribute{
				{Location: 0, Offset: 0, Format: renderer.FormatRG32Sfloat},
				{Location: 1, Offset: 2 * 4, Format: renderer.FormatRGB32Sfloat},
			},
		},
		DepthTest:        false,
		DepthWrite:       false,
		SampleCount:      1,
		Blend:            renderer.BlendNone,
		SurfaceDependent: true,
	})
}

func (g *TestGame) update(deltaTime float64) error {
	g.state().elapsed += deltaTime
	return nil
}

func (g *TestGame) render(r *renderer.Renderer, deltaTime float64) error {
	s := g.state()

	// A slow pulse, pushed to the fragment shader each frame.
	pulse := float32(0.5 + 0.5*math.Sin(s.elapsed))
	push := make([]byte, 16)
	binary.LittleEndian.PutUint32(push[0:], math.Float32bits(pulse))
	binary.LittleEndian.PutUint32(push[4:], math.Float32bits(float32(s.elapsed)))

	return r.Draw(renderer.DrawCommand{
		Pipeline:      s.pipeline,
		Resources:     []renderer.Handle{s.vertexBuffer},
		PushConstants: push,
		VertexCount:   3,
	})
}

func (g *TestGame) onResize(width, height uint32) error {
	core.LogDebug("Testbed resized to %dx%d.", width, height)
	return nil
}

// onShaderReload swaps in a freshly built pipeline; the old one is retired
// and reclaimed once no in-flight frame references it.
func (g *TestGame) onShaderReload(name string) error {
	if name != "triangle.vert" && name != "triangle.frag" {
		return nil
	}
	s := g.state()

	pipeline, err := g.buildPipeline()
	if err != nil {
		return err
	}
	if err := s.eng.Renderer().Destroy(s.pipeline); err != nil {
		return err
	}
	s.pipeline = pipeline
	core.LogInfo("Pipeline rebuilt after %s changed.", name)
	return nil
}

func triangleVertices() []byte {
	floats := []float32{
		0.0, -0.5, 1.0, 0.0, 0.0,
		0.5, 0.5, 0.0, 1.0, 0.0,
		-0.5, 0.5, 0.0, 0.0, 1.0,
	}
	out := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

package engine

import "github.com/lumen-engine/lumen/engine/renderer"

// Game is the set of callbacks the engine drives. All callbacks run on the
// main thread.
type Game struct {
	State interface{}

	FnInitialize func(e *Engine) error
	FnUpdate     func(deltaTime float64) error
	// FnRender records the frame's draw commands. BeginFrame has already
	// succeeded when it runs.
	FnRender   func(r *renderer.Renderer, deltaTime float64) error
	FnOnResize func(width, height uint32) error
	// FnShaderReload fires when a watched SPIR-V blob changes on disk.
	// Optional.
	FnShaderReload func(name string) error
	FnShutdown     func() error
}

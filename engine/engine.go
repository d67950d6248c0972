package engine

import (
	"errors"
	"fmt"

	"github.com/lumen-engine/lumen/engine/assets"
	"github.com/lumen-engine/lumen/engine/config"
	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/platform"
	"github.com/lumen-engine/lumen/engine/renderer"
	"github.com/lumen-engine/lumen/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state.
	EngineStageUninitialized Stage = iota
	// Engine initialization is complete.
	EngineStageInitialized
	// Engine is currently running.
	EngineStageRunning
	// Engine is in the process of shutting down.
	EngineStageShuttingDown
)

// metricsLogInterval is how often, in seconds, the frame loop reports
// frame metrics to the log.
const metricsLogInterval = 5.0

// Engine wires the platform window, the asset watcher, the Vulkan backend
// and the renderer together and drives the game's frame loop.
type Engine struct {
	currentStage Stage
	cfg          *config.Config
	gameInstance *Game

	platform     *platform.Platform
	assetManager *assets.Manager
	backend      *vulkan.Backend
	renderer     *renderer.Renderer
	clock        *core.Clock

	isRunning   bool
	isSuspended bool
	lastTime    float64
	// Last time frame metrics were written to the log.
	lastMetricsLog float64

	// Set by the resize callback, consumed at the top of the frame loop.
	pendingResize *renderer.Extent
}

func New(cfg *config.Config, g *Game) (*Engine, error) {
	p, err := platform.New()
	if err != nil {
		return nil, err
	}

	am, err := assets.NewManager(cfg.Renderer.ShaderDir)
	if err != nil {
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		cfg:          cfg,
		gameInstance: g,
		platform:     p,
		assetManager: am,
		backend:      vulkan.New(p),
		clock:        core.NewClock(),
		isRunning:    true,
	}, nil
}

func (e *Engine) Initialize() error {
	if err := e.platform.Startup(e.cfg.AppName, e.cfg.StartPosX, e.cfg.StartPosY, e.cfg.StartWidth, e.cfg.StartHeight); err != nil {
		return err
	}
	e.platform.OnResize = e.onResized

	if err := e.assetManager.Initialize(); err != nil {
		return err
	}

	if err := e.backend.Initialize(e.cfg); err != nil {
		return err
	}

	r, err := renderer.New(e.backend, e.cfg.Renderer)
	if err != nil {
		return err
	}
	e.renderer = r

	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Renderer is the rendering facade, valid after Initialize.
func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

// Assets is the shader asset manager, valid after Initialize.
func (e *Engine) Assets() *assets.Manager {
	return e.assetManager
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine must be initialized before running")
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.ElapsedSeconds()

	for e.isRunning && !e.platform.ShouldClose() {
		e.platform.PumpMessages()
		e.applyPendingResize()
		e.drainShaderReloads()

		if e.isSuspended {
			continue
		}

		e.clock.Update()
		currentTime := e.clock.ElapsedSeconds()
		delta := currentTime - e.lastTime
		e.lastTime = currentTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err.Error())
				e.isRunning = false
				break
			}
		}

		if err := e.renderFrame(delta); err != nil {
			core.LogError("frame failed, shutting down: %s", err.Error())
			e.isRunning = false
			break
		}

		frameSeconds := e.clock.ElapsedSeconds() - currentTime
		core.MetricsUpdate(frameSeconds)
		if currentTime-e.lastMetricsLog >= metricsLogInterval {
			e.lastMetricsLog = currentTime
			core.LogDebug("%.0f fps, %.2f ms avg frame time", core.MetricsFPS(), core.MetricsFrameTime())
		}
	}

	e.isRunning = false
	return nil
}

func (e *Engine) renderFrame(delta float64) error {
	err := e.renderer.BeginFrame()
	if errors.Is(err, core.ErrSurfaceStale) {
		return e.resizeToFramebuffer()
	}
	if err != nil {
		return err
	}

	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(e.renderer, delta); err != nil {
			e.renderer.AbortFrame()
			return err
		}
	}

	err = e.renderer.EndFrame()
	if errors.Is(err, core.ErrSurfaceStale) {
		return e.resizeToFramebuffer()
	}
	return err
}

// Stop requests a clean exit at the end of the current frame.
func (e *Engine) Stop() {
	e.isRunning = false
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("game shutdown failed: %s", err.Error())
		}
	}

	if e.renderer != nil {
		if err := e.renderer.Shutdown(); err != nil {
			core.LogError("renderer shutdown failed: %s", err.Error())
		}
	}
	if e.backend != nil {
		e.backend.Shutdown()
	}
	e.assetManager.Shutdown()
	return e.platform.Shutdown()
}

func (e *Engine) applyPendingResize() {
	if e.pendingResize == nil {
		return
	}
	extent := *e.pendingResize
	e.pendingResize = nil

	if extent.Width == 0 || extent.Height == 0 {
		core.LogInfo("Window minimized, suspending rendering.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming rendering.")
		e.isSuspended = false
	}

	if err := e.renderer.Resize(extent); err != nil {
		core.LogError("resize to %dx%d failed: %s", extent.Width, extent.Height, err.Error())
		return
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(extent.Width, extent.Height); err != nil {
			core.LogError("game resize handler failed: %s", err.Error())
		}
	}
}

// resizeToFramebuffer recovers from a stale surface using the window's
// current drawable size.
func (e *Engine) resizeToFramebuffer() error {
	width, height := e.platform.FramebufferSize()
	if width == 0 || height == 0 {
		e.isSuspended = true
		return nil
	}
	return e.renderer.Resize(renderer.Extent{Width: width, Height: height})
}

func (e *Engine) drainShaderReloads() {
	for {
		select {
		case name, ok := <-e.assetManager.Reloads():
			if !ok {
				return
			}
			core.LogInfo("Shader changed on disk: %s", name)
			if e.gameInstance.FnShaderReload != nil {
				if err := e.gameInstance.FnShaderReload(name); err != nil {
					core.LogError("shader reload of %s failed: %s", name, err.Error())
				}
			}
		default:
			return
		}
	}
}

// onResized runs inside glfw.PollEvents on the main thread.
func (e *Engine) onResized(width, height uint32) {
	e.pendingResize = &renderer.Extent{Width: width, Height: height}
}

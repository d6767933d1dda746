package main

import (
	"flag"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/sponza/internal/config"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/gpu/vulkan"
	"github.com/vkngwrapper/sponza/internal/logging"
	"github.com/vkngwrapper/sponza/internal/renderer"
	"github.com/vkngwrapper/sponza/internal/scene"
)

const (
	orbitSpeed = 0.25
	dollySpeed = 0.5
)

type SponzaApplication struct {
	cfg    config.Config
	window *sdl.Window

	instance  *vulkan.Instance
	device    *vulkan.Device
	swapchain *vulkan.Swapchain
	renderer  *renderer.Renderer
}

func (app *SponzaApplication) Run() error {
	err := app.initWindow()
	if err != nil {
		return err
	}
	defer app.cleanup()

	err = app.initVulkan()
	if err != nil {
		return err
	}

	return app.mainLoop()
}

func (app *SponzaApplication) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow(app.cfg.Window.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(app.cfg.Window.Width), int32(app.cfg.Window.Height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	app.window = window
	return nil
}

func (app *SponzaApplication) drawableExtent() gpu.Extent {
	w, h := app.window.VulkanGetDrawableSize()
	return gpu.Extent{Width: int(w), Height: int(h)}
}

func (app *SponzaApplication) initVulkan() error {
	var err error
	app.instance, err = vulkan.NewInstance(app.window, app.cfg.Window.Title, app.cfg.Validation)
	if err != nil {
		return err
	}

	app.device, err = app.instance.CreateDevice()
	if err != nil {
		return err
	}

	app.swapchain, err = vulkan.NewSwapchain(app.device, app.drawableExtent())
	if err != nil {
		return err
	}

	s, err := scene.LoadOBJ(app.cfg.Scene.OBJ, app.cfg.Scene.MTL)
	if errors.Is(err, scene.ErrAssetLoad) {
		logging.Logger().Error("scene not loaded, rendering an empty scene", "err", err)
		s = scene.Empty()
	} else if err != nil {
		return err
	}

	app.renderer, err = renderer.New(app.device, app.swapchain, app.cfg, s)
	return err
}

func (app *SponzaApplication) handleKey(key sdl.Keycode) (quit bool, err error) {
	switch key {
	case sdl.K_ESCAPE:
		return true, nil
	case sdl.K_F1:
		err = app.renderer.ToggleDebugView()
	case sdl.K_F2:
		err = app.renderer.ToggleSSAO()
	case sdl.K_F3:
		app.renderer.ToggleLightsFollowCamera()
	case sdl.K_F4:
		app.renderer.ToggleSSAOBlur()
	case sdl.K_F5:
		app.renderer.ToggleSSAOOnly()
	}
	return false, err
}

func (app *SponzaApplication) mainLoop() error {
	rendering := true
	last := hrtime.Now()

appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.KeyboardEvent:
				if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
					continue
				}
				quit, err := app.handleKey(e.Keysym.Sym)
				if err != nil {
					return err
				}
				if quit {
					break appLoop
				}
			case *sdl.MouseMotionEvent:
				if e.State&(1<<(sdl.BUTTON_LEFT-1)) != 0 {
					app.renderer.Camera().Orbit(float32(e.XRel)*orbitSpeed, float32(e.YRel)*orbitSpeed)
				}
			case *sdl.MouseWheelEvent:
				app.renderer.Camera().Dolly(float32(e.Y) * dollySpeed)
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_RESIZED:
					extent := app.drawableExtent()
					if extent.Empty() || app.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
						rendering = false
						continue
					}
					rendering = true
					if err := app.renderer.Resize(extent); err != nil {
						return err
					}
				}
			}
		}

		now := hrtime.Now()
		app.renderer.Update(now - last)
		last = now

		if !rendering {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err := app.renderer.DrawFrame(); err != nil {
			return err
		}
	}

	logging.Logger().Info("exiting",
		"frames", app.renderer.Frames(),
		"lastFrame", app.renderer.FrameTime())
	return app.device.WaitIdle()
}

func (app *SponzaApplication) cleanup() {
	if app.renderer != nil {
		app.renderer.Destroy()
	}
	if app.swapchain != nil {
		app.swapchain.Destroy()
	}
	if app.device != nil {
		app.device.Destroy()
	}
	if app.instance != nil {
		app.instance.Destroy()
	}
	if app.window != nil {
		app.window.Destroy()
	}
	sdl.Quit()
}

func main() {
	runtime.LockOSThread()

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])
	logging.SetLogger(logging.New(flags.LogLevel, os.Stderr))

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
	flags.Apply(fs, &cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%+v\n", err)
	}
	logging.SetLogger(logging.New(cfg.LogLevel, os.Stderr))

	app := &SponzaApplication{cfg: cfg}
	if err := app.Run(); err != nil {
		logging.Logger().Error("fatal", "err", err, "fatal", gpu.IsFatal(err))
		log.Fatalf("%+v\n", err)
	}
}

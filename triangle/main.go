// Command triangle opens a window and draws one colored triangle per frame until the
// window is closed.
package main

import (
	"embed"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/triangle/config"
	"github.com/vkngwrapper/triangle/gfx/vulkan"
	"github.com/vkngwrapper/triangle/renderer"
	"github.com/vkngwrapper/triangle/shader"
)

//go:embed shaders
var fileSystem embed.FS

type TriangleApplication struct {
	cfg    config.Config
	logger *slog.Logger

	window  *sdl.Window
	factory *vulkan.Factory
	context *renderer.Context
}

func (app *TriangleApplication) Run() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}
	defer app.cleanup()

	err := app.initWindow()
	if err != nil {
		return err
	}

	err = app.initRenderer()
	if err != nil {
		return err
	}

	return app.mainLoop()
}

func (app *TriangleApplication) initWindow() error {
	// The swap chain is never rebuilt, so the window keeps its size.
	window, err := sdl.CreateWindow(app.cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(app.cfg.Width), int32(app.cfg.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	app.window = window

	app.factory, err = vulkan.NewFactory(window, app.cfg.Title, app.logger)
	return err
}

// shaderCompiler reads the configured shader directory when it exists and falls back to
// the copies built into the binary.
func (app *TriangleApplication) shaderCompiler() (*shader.Compiler, error) {
	if info, err := os.Stat(app.cfg.ShaderDir); err == nil && info.IsDir() {
		return shader.NewCompiler(app.cfg.ShaderDir, app.cfg.VertexShader, app.cfg.PixelShader), nil
	}

	embedded, err := fs.Sub(fileSystem, "shaders")
	if err != nil {
		return nil, err
	}
	app.logger.Debug("using embedded shaders", slog.String("missing", app.cfg.ShaderDir))
	return &shader.Compiler{
		FS:     embedded,
		Vertex: app.cfg.VertexShader,
		Pixel:  app.cfg.PixelShader,
	}, nil
}

func (app *TriangleApplication) initRenderer() error {
	compiler, err := app.shaderCompiler()
	if err != nil {
		return err
	}

	app.context, err = renderer.Initialize(app.factory, vulkan.Window{Window: app.window}, compiler, renderer.Options{
		Debug:         app.cfg.Debug,
		Logger:        app.logger,
		StatsInterval: app.cfg.StatsInterval,
		ClearColor:    &app.cfg.ClearColor,
	})
	return err
}

func (app *TriangleApplication) mainLoop() error {
appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			}
		}

		err := app.context.RenderFrame()
		if err != nil {
			return err
		}
	}

	return app.context.Close()
}

func (app *TriangleApplication) cleanup() {
	if app.context != nil {
		if err := app.context.Close(); err != nil {
			app.logger.Error("close render context", slog.Any("error", err))
		}
	}

	if app.factory != nil {
		app.factory.Release()
	}

	if app.window != nil {
		_ = app.window.Destroy()
	}
	sdl.Quit()
}

func main() {
	runtime.LockOSThread()

	cfg := config.Default()
	err := cfg.ProcessCommandLineArgs(os.Args[1:], os.Stdout)
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("%+v\n", err)
	}

	level, err := cfg.Level()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}

	app := &TriangleApplication{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}

	err = app.Run()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}

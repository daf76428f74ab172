package renderer

import (
	"log/slog"

	"github.com/vkngwrapper/triangle/gfx"
)

func (c *Context) initDevice(factory gfx.Factory) error {
	if c.opts.Debug {
		err := factory.EnableDebugLayer()
		if err != nil {
			return initError("EnableDebugLayer", err)
		}
		c.log.Debug("debug layer enabled")
	}

	adapters, err := factory.Adapters()
	if err != nil {
		return initError("EnumAdapters", err)
	}
	if len(adapters) == 0 {
		return initError("EnumAdapters", gfx.ErrNoAdapters)
	}
	c.adapter = adapters[0]
	c.log.Debug("adapter selected", slog.String("adapter", c.adapter.Description()), slog.Int("available", len(adapters)))

	c.device, err = factory.CreateDevice(c.adapter)
	if err != nil {
		return initError("CreateDevice", err)
	}

	c.queue, err = c.device.CreateCommandQueue(gfx.CommandListDirect)
	if err != nil {
		return initError("CreateCommandQueue", err)
	}

	return nil
}

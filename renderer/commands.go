package renderer

import "github.com/vkngwrapper/triangle/gfx"

func (c *Context) createCommandInfrastructure() error {
	var err error
	c.allocator, err = c.device.CreateCommandAllocator(gfx.CommandListDirect)
	if err != nil {
		return initError("CreateCommandAllocator", err)
	}

	c.commandList, err = c.device.CreateCommandList(gfx.CommandListDirect, c.allocator, c.pipelineState)
	if err != nil {
		return initError("CreateCommandList", err)
	}

	// Lists are created recording; every frame starts with a Reset, which needs it closed.
	err = c.commandList.Close()
	if err != nil {
		return initError("CloseCommandList", err)
	}

	return nil
}

package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/triangle/gfx"
)

// CommandList records into one primary command buffer. Render target clears are
// deferred until the render pass they belong to is opened: a clear followed by a draw
// becomes a single pass with a clearing load op, a clear with no draw becomes an empty
// clearing pass.
type CommandList struct {
	device    *Device
	buffer    core1_0.CommandBuffer
	allocator *CommandAllocator
	recording bool

	pipeline      *PipelineState
	rootSignature *RootSignature
	viewport      *core1_0.Viewport
	scissor       *core1_0.Rect2D
	target        *renderTargetView
	vertexBuffers []gfx.VertexBufferView

	clear        bool
	clearColor   [4]float32
	inRenderPass bool

	// transitioned holds the swap chain images this recording moved out of their
	// initial layout. They count as initialized once the list is submitted.
	transitioned []*swapImage

	// misuse is the first recording error; it is returned by Close.
	misuse error
}

var _ gfx.GraphicsCommandList = (*CommandList)(nil)

func (l *CommandList) begin(allocator *CommandAllocator, initial gfx.PipelineState) error {
	pipeline, ok := initial.(*PipelineState)
	if initial != nil && !ok {
		return errors.Errorf("vulkan: foreign pipeline state %T", initial)
	}

	_, err := l.device.driver.BeginCommandBuffer(l.buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "begin command buffer")
	}

	l.allocator = allocator
	l.pipeline = pipeline
	l.rootSignature = nil
	l.viewport = nil
	l.scissor = nil
	l.target = nil
	l.vertexBuffers = nil
	l.clear = false
	l.inRenderPass = false
	l.transitioned = l.transitioned[:0]
	l.misuse = nil
	l.recording = true
	allocator.recording++
	return nil
}

func (l *CommandList) fail(err error) {
	if l.misuse == nil {
		l.misuse = err
	}
}

func (l *CommandList) check(op string) bool {
	if !l.recording {
		l.fail(errors.Wrapf(gfx.ErrListClosed, "vulkan: %s recorded into a closed list", op))
		return false
	}
	return true
}

func (l *CommandList) Reset(alloc gfx.CommandAllocator, initial gfx.PipelineState) error {
	allocator, ok := alloc.(*CommandAllocator)
	if !ok {
		return errors.Errorf("vulkan: foreign allocator %T", alloc)
	}
	if l.recording {
		return gfx.ErrListNotClosed
	}
	return l.begin(allocator, initial)
}

func (l *CommandList) Close() error {
	if !l.recording {
		return gfx.ErrListClosed
	}

	l.endRenderPass()
	if l.clear {
		l.flushClear()
	}

	l.recording = false
	l.allocator.recording--

	_, err := l.device.driver.EndCommandBuffer(l.buffer)
	if err != nil {
		return errors.Wrap(err, "end command buffer")
	}
	return l.misuse
}

func (l *CommandList) SetGraphicsRootSignature(rs gfx.RootSignature) {
	if !l.check("SetGraphicsRootSignature") {
		return
	}
	root, ok := rs.(*RootSignature)
	if !ok {
		l.fail(errors.Errorf("vulkan: foreign root signature %T", rs))
		return
	}
	l.rootSignature = root
}

func (l *CommandList) SetViewports(viewports ...gfx.Viewport) {
	if !l.check("SetViewports") {
		return
	}
	if len(viewports) != 1 {
		l.fail(errors.Errorf("vulkan: expected one viewport, got %d", len(viewports)))
		return
	}

	v := viewports[0]
	l.viewport = &core1_0.Viewport{
		X:        v.TopLeftX,
		Y:        v.TopLeftY,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}
	if l.inRenderPass {
		l.device.driver.CmdSetViewport(l.buffer, *l.viewport)
	}
}

func (l *CommandList) SetScissorRects(rects ...gfx.Rect) {
	if !l.check("SetScissorRects") {
		return
	}
	if len(rects) != 1 {
		l.fail(errors.Errorf("vulkan: expected one scissor rect, got %d", len(rects)))
		return
	}

	r := rects[0]
	l.scissor = &core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: r.Left, Y: r.Top},
		Extent: core1_0.Extent2D{Width: r.Width(), Height: r.Height()},
	}
	if l.inRenderPass {
		l.device.driver.CmdSetScissor(l.buffer, *l.scissor)
	}
}

func (l *CommandList) ResourceBarrier(barriers ...gfx.TransitionBarrier) {
	if !l.check("ResourceBarrier") {
		return
	}

	// Layout transitions are not allowed inside a render pass, and a pending clear
	// targets the layout the image has before the barrier.
	l.endRenderPass()
	if l.clear {
		l.flushClear()
	}

	for _, b := range barriers {
		err := l.transition(b)
		if err != nil {
			l.fail(err)
			return
		}
	}
}

func (l *CommandList) transition(b gfx.TransitionBarrier) error {
	back, ok := b.Resource.(*BackBuffer)
	if !ok {
		return errors.Errorf("vulkan: barrier on unsupported resource %T", b.Resource)
	}

	oldLayout, err := imageLayout(b.StateBefore)
	if err != nil {
		return err
	}
	newLayout, err := imageLayout(b.StateAfter)
	if err != nil {
		return err
	}
	if !back.image.initialized && !l.hasTransitioned(back.image) {
		oldLayout = core1_0.ImageLayoutUndefined
	}

	var (
		srcStage, dstStage   core1_0.PipelineStageFlags
		srcAccess, dstAccess core1_0.AccessFlags
	)
	if newLayout == core1_0.ImageLayoutColorAttachmentOptimal {
		srcStage = core1_0.PipelineStageColorAttachmentOutput
		dstStage = core1_0.PipelineStageColorAttachmentOutput
		dstAccess = core1_0.AccessColorAttachmentWrite
	} else {
		srcStage = core1_0.PipelineStageColorAttachmentOutput
		dstStage = core1_0.PipelineStageBottomOfPipe
		srcAccess = core1_0.AccessColorAttachmentWrite
	}

	err = l.device.driver.CmdPipelineBarrier(l.buffer, srcStage, dstStage, 0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				Image:               back.image.handle,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				SubresourceRange: core1_0.ImageSubresourceRange{
					AspectMask:     core1_0.ImageAspectColor,
					BaseMipLevel:   0,
					LevelCount:     1,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				OldLayout:     oldLayout,
				NewLayout:     newLayout,
				SrcAccessMask: srcAccess,
				DstAccessMask: dstAccess,
			},
		})
	if err != nil {
		return errors.Wrap(err, "pipeline barrier")
	}

	if !l.hasTransitioned(back.image) {
		l.transitioned = append(l.transitioned, back.image)
	}
	return nil
}

func (l *CommandList) hasTransitioned(image *swapImage) bool {
	for _, img := range l.transitioned {
		if img == image {
			return true
		}
	}
	return false
}

func (l *CommandList) SetRenderTargets(handles ...gfx.CPUDescriptorHandle) {
	if !l.check("SetRenderTargets") {
		return
	}
	if len(handles) != 1 {
		l.fail(errors.Errorf("vulkan: expected one render target, got %d", len(handles)))
		return
	}

	view, err := l.view(handles[0])
	if err != nil {
		l.fail(err)
		return
	}
	if view != l.target {
		l.endRenderPass()
	}
	l.target = view
}

func (l *CommandList) view(handle gfx.CPUDescriptorHandle) (*renderTargetView, error) {
	heap, ok := handle.Heap.(*DescriptorHeap)
	if !ok {
		return nil, errors.Errorf("vulkan: foreign descriptor heap %T", handle.Heap)
	}
	return heap.view(handle)
}

func (l *CommandList) ClearRenderTargetView(handle gfx.CPUDescriptorHandle, color [4]float32) {
	if !l.check("ClearRenderTargetView") {
		return
	}

	view, err := l.view(handle)
	if err != nil {
		l.fail(err)
		return
	}
	if view != l.target {
		l.fail(errors.New("vulkan: only the bound render target can be cleared"))
		return
	}

	// A clear after a draw must not reorder behind it.
	l.endRenderPass()
	l.clear = true
	l.clearColor = color
}

func (l *CommandList) SetPrimitiveTopology(topology gfx.PrimitiveTopology) {
	if !l.check("SetPrimitiveTopology") {
		return
	}
	if topology != gfx.PrimitiveTopologyTriangleList {
		l.fail(errors.Errorf("vulkan: unsupported primitive topology %d", topology))
	}
}

func (l *CommandList) SetVertexBuffers(startSlot int, views ...gfx.VertexBufferView) {
	if !l.check("SetVertexBuffers") {
		return
	}
	if startSlot != 0 || len(views) != 1 {
		l.fail(errors.New("vulkan: exactly one vertex buffer in slot 0 is supported"))
		return
	}
	l.vertexBuffers = append(l.vertexBuffers[:0], views...)
}

func (l *CommandList) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance int) {
	if !l.check("DrawInstanced") {
		return
	}

	switch {
	case l.pipeline == nil:
		l.fail(errors.New("vulkan: draw without a pipeline state"))
		return
	case l.rootSignature == nil:
		l.fail(errors.New("vulkan: draw without a root signature"))
		return
	case l.viewport == nil || l.scissor == nil:
		l.fail(errors.New("vulkan: draw without viewport and scissor"))
		return
	case len(l.vertexBuffers) == 0:
		l.fail(errors.New("vulkan: draw without a vertex buffer"))
		return
	case l.target == nil:
		l.fail(errors.New("vulkan: draw without a render target"))
		return
	}

	vb := l.vertexBuffers[0]
	buf, offset, ok := l.device.buffer(vb.BufferLocation)
	if !ok {
		l.fail(errors.Errorf("vulkan: vertex buffer address %#x is not a live buffer", vb.BufferLocation))
		return
	}

	if !l.inRenderPass {
		err := l.beginRenderPass()
		if err != nil {
			l.fail(err)
			return
		}
	}

	l.device.driver.CmdBindPipeline(l.buffer, core1_0.PipelineBindPointGraphics, l.pipeline.pipeline)
	l.device.driver.CmdSetViewport(l.buffer, *l.viewport)
	l.device.driver.CmdSetScissor(l.buffer, *l.scissor)
	l.device.driver.CmdBindVertexBuffers(l.buffer, 0, []core1_0.Buffer{buf.buffer}, []int{int(offset)})
	l.device.driver.CmdDraw(l.buffer, vertexCountPerInstance, instanceCount, uint32(startVertex), uint32(startInstance))
}

func (l *CommandList) beginRenderPass() error {
	pass, err := l.device.renderPass(l.target.format, l.clear)
	if err != nil {
		return err
	}

	var clearValues []core1_0.ClearValue
	if l.clear {
		clearValues = []core1_0.ClearValue{core1_0.ClearValueFloat(l.clearColor)}
	}

	err = l.device.driver.CmdBeginRenderPass(l.buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  pass,
			Framebuffer: l.target.framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: l.target.extent,
			},
			ClearValues: clearValues,
		})
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	l.clear = false
	l.inRenderPass = true
	return nil
}

// flushClear records an empty clearing pass for a clear no draw consumed.
func (l *CommandList) flushClear() {
	if l.target == nil {
		l.clear = false
		return
	}
	err := l.beginRenderPass()
	if err != nil {
		l.fail(err)
		l.clear = false
		return
	}
	l.endRenderPass()
}

func (l *CommandList) endRenderPass() {
	if !l.inRenderPass {
		return
	}
	l.device.driver.CmdEndRenderPass(l.buffer)
	l.inRenderPass = false
}

func (l *CommandList) Release() {
	if !l.buffer.Initialized() {
		return
	}
	if l.recording {
		l.endRenderPass()
		_, _ = l.device.driver.EndCommandBuffer(l.buffer)
		l.recording = false
		l.allocator.recording--
	}
	l.device.driver.FreeCommandBuffers(l.buffer)
	l.buffer = core1_0.CommandBuffer{}
}

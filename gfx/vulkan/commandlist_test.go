package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"go.uber.org/mock/gomock"

	"github.com/vkngwrapper/triangle/gfx"
)

type mockRig struct {
	driver    *mocks1_0.MockCoreDeviceDriver
	handle    core1_0.Device
	device    *Device
	allocator *CommandAllocator
	list      *CommandList
}

// newMockRig builds a device around a mocked driver with one allocator and one closed
// command list.
func newMockRig(t *testing.T) *mockRig {
	ctrl := gomock.NewController(t)
	driver := mocks1_0.NewMockCoreDeviceDriver(ctrl)
	handle := mocks.NewDummyDevice(common.Vulkan1_2, []string{})

	family := 0
	device := newDevice(nil, &adapter{indices: queueFamilyIndices{GraphicsFamily: &family, PresentFamily: &family}}, driver)
	pool := mocks.NewDummyCommandPool(handle)

	return &mockRig{
		driver:    driver,
		handle:    handle,
		device:    device,
		allocator: &CommandAllocator{device: device, pool: pool},
		list:      &CommandList{device: device, buffer: mocks.NewDummyCommandBuffer(pool, handle)},
	}
}

func (r *mockRig) expectBegin() {
	r.driver.EXPECT().BeginCommandBuffer(r.list.buffer, gomock.Any()).Return(core1_0.VKSuccess, nil)
}

func (r *mockRig) expectEnd() {
	r.driver.EXPECT().EndCommandBuffer(r.list.buffer).Return(core1_0.VKSuccess, nil)
}

func (r *mockRig) backBuffer() *BackBuffer {
	return &BackBuffer{image: &swapImage{handle: mocks.NewDummyImage(r.handle)}}
}

// recordBarrier records one transition and returns the old layout the barrier used.
func (r *mockRig) recordBarrier(t *testing.T, res *BackBuffer, before, after gfx.ResourceState) core1_0.ImageLayout {
	var oldLayout core1_0.ImageLayout
	r.driver.EXPECT().CmdPipelineBarrier(r.list.buffer, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Nil(), gomock.Nil(), gomock.Len(1)).DoAndReturn(
		func(commandBuffer core1_0.CommandBuffer, srcStageMask, dstStageMask core1_0.PipelineStageFlags, dependencies core1_0.DependencyFlags, memoryBarriers []core1_0.MemoryBarrier, bufferMemoryBarriers []core1_0.BufferMemoryBarrier, imageMemoryBarriers []core1_0.ImageMemoryBarrier) error {
			assert.Equal(t, res.image.handle, imageMemoryBarriers[0].Image)
			oldLayout = imageMemoryBarriers[0].OldLayout
			return nil
		})

	r.list.ResourceBarrier(gfx.Transition(res, before, after))
	return oldLayout
}

func TestCommandAllocator_ResetResetsPool(t *testing.T) {
	r := newMockRig(t)

	r.driver.EXPECT().ResetCommandPool(r.allocator.pool, core1_0.CommandPoolResetFlags(0)).Return(core1_0.VKSuccess, nil)
	require.NoError(t, r.allocator.Reset())

	r.expectBegin()
	require.NoError(t, r.list.Reset(r.allocator, nil))

	// No pool reset reaches the driver while the list records.
	assert.Error(t, r.allocator.Reset())
}

func TestCommandList_ResetBeginsRecording(t *testing.T) {
	r := newMockRig(t)

	r.expectBegin()
	require.NoError(t, r.list.Reset(r.allocator, nil))
	assert.True(t, r.list.recording)
	assert.Equal(t, 1, r.allocator.recording)
	assert.ErrorIs(t, r.list.Reset(r.allocator, nil), gfx.ErrListNotClosed)

	r.expectEnd()
	require.NoError(t, r.list.Close())
	assert.Equal(t, 0, r.allocator.recording)

	r.expectBegin()
	require.NoError(t, r.list.Reset(r.allocator, nil))
}

func TestCommandList_DrawInstancedForwardsVertexRange(t *testing.T) {
	r := newMockRig(t)
	format := core1_0.FormatR8G8B8A8UnsignedNormalized
	r.device.renderPasses[renderPassKey{format: format}] = mocks.NewDummyRenderPass(r.handle)

	heap := &DescriptorHeap{device: r.device, views: []*renderTargetView{{
		device:      r.device,
		format:      format,
		extent:      core1_0.Extent2D{Width: 800, Height: 600},
		framebuffer: mocks.NewDummyFramebuffer(r.handle),
	}}}
	vertices := &Buffer{device: r.device, buffer: mocks.NewDummyBuffer(r.handle), size: 256, address: 0x10000}
	r.device.buffers[vertices.address] = vertices

	r.expectBegin()
	require.NoError(t, r.list.Reset(r.allocator, &PipelineState{device: r.device, pipeline: mocks.NewDummyPipeline(r.handle)}))
	r.list.SetGraphicsRootSignature(&RootSignature{device: r.device})
	r.list.SetViewports(gfx.Viewport{Width: 800, Height: 600, MaxDepth: 1})
	r.list.SetScissorRects(gfx.Rect{Right: 800, Bottom: 600})
	r.list.SetRenderTargets(heap.CPUHandle(0))
	r.list.SetPrimitiveTopology(gfx.PrimitiveTopologyTriangleList)
	r.list.SetVertexBuffers(0, gfx.VertexBufferView{BufferLocation: vertices.address + 28, StrideInBytes: 28, SizeInBytes: 84})

	gomock.InOrder(
		r.driver.EXPECT().CmdBeginRenderPass(r.list.buffer, core1_0.SubpassContentsInline, gomock.Any()).Return(nil),
		r.driver.EXPECT().CmdBindPipeline(r.list.buffer, core1_0.PipelineBindPointGraphics, gomock.Any()),
		r.driver.EXPECT().CmdSetViewport(r.list.buffer, gomock.Any()),
		r.driver.EXPECT().CmdSetScissor(r.list.buffer, gomock.Any()),
		r.driver.EXPECT().CmdBindVertexBuffers(r.list.buffer, 0, []core1_0.Buffer{vertices.buffer}, []int{28}),
		r.driver.EXPECT().CmdDraw(r.list.buffer, 3, 1, uint32(2), uint32(0)),
		r.driver.EXPECT().CmdEndRenderPass(r.list.buffer),
	)
	r.list.DrawInstanced(3, 1, 2, 0)

	r.expectEnd()
	require.NoError(t, r.list.Close())
}

func TestCommandList_ImageInitializedOnSubmit(t *testing.T) {
	r := newMockRig(t)
	back := r.backBuffer()

	r.expectBegin()
	require.NoError(t, r.list.Reset(r.allocator, nil))
	assert.Equal(t, core1_0.ImageLayoutUndefined, r.recordBarrier(t, back, gfx.ResourceStatePresent, gfx.ResourceStateRenderTarget))
	assert.Equal(t, core1_0.ImageLayoutColorAttachmentOptimal, r.recordBarrier(t, back, gfx.ResourceStateRenderTarget, gfx.ResourceStatePresent))
	r.expectEnd()
	require.NoError(t, r.list.Close())
	assert.False(t, back.image.initialized, "recording alone must not change the image")

	// A recording that was never submitted leaves the image undefined for the next one.
	r.expectBegin()
	require.NoError(t, r.list.Reset(r.allocator, nil))
	assert.Equal(t, core1_0.ImageLayoutUndefined, r.recordBarrier(t, back, gfx.ResourceStatePresent, gfx.ResourceStateRenderTarget))
	r.expectEnd()
	require.NoError(t, r.list.Close())

	queue := &Queue{device: r.device, graphics: mocks.NewDummyQueue(r.handle)}
	queue.present = queue.graphics
	r.driver.EXPECT().QueueSubmit(queue.graphics, gomock.Nil(), gomock.Any()).Return(core1_0.VKSuccess, nil)
	require.NoError(t, queue.ExecuteCommandLists(r.list))
	assert.True(t, back.image.initialized)

	r.expectBegin()
	require.NoError(t, r.list.Reset(r.allocator, nil))
	assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, r.recordBarrier(t, back, gfx.ResourceStatePresent, gfx.ResourceStateRenderTarget))
}

func TestQueue_FailedSubmitLeavesImageUndefined(t *testing.T) {
	r := newMockRig(t)
	back := r.backBuffer()

	r.expectBegin()
	require.NoError(t, r.list.Reset(r.allocator, nil))
	r.recordBarrier(t, back, gfx.ResourceStatePresent, gfx.ResourceStateRenderTarget)
	r.expectEnd()
	require.NoError(t, r.list.Close())

	queue := &Queue{device: r.device, graphics: mocks.NewDummyQueue(r.handle)}
	queue.present = queue.graphics
	r.driver.EXPECT().QueueSubmit(queue.graphics, gomock.Nil(), gomock.Any()).Return(core1_0.VKErrorDeviceLost, core1_0.VKErrorDeviceLost.ToError())
	require.Error(t, queue.ExecuteCommandLists(r.list))
	assert.False(t, back.image.initialized)
}

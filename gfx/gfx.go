// Package gfx is the device-level graphics interface the renderer is written against.
//
// Its shape follows an explicit API: a factory enumerates adapters and creates devices
// and swap chains, a device creates every other object, command lists are recorded
// against an allocator and executed on a queue, and a fence carrying a monotonically
// increasing value tells the CPU when submitted work has retired.
//
// Every object is exclusively owned by whoever created it and must be released
// explicitly, children before the device that created them.
package gfx

import "time"

// Window is the host window the swap chain presents into.
type Window interface {
	ClientSize() (width, height int)
}

type Releaser interface {
	Release()
}

type Factory interface {
	Releaser

	// EnableDebugLayer turns on API validation. It only takes effect before the first
	// call to Adapters and returns ErrDebugLayerTooLate afterwards.
	EnableDebugLayer() error
	Adapters() ([]Adapter, error)
	CreateDevice(adapter Adapter) (Device, error)
	CreateSwapChain(queue CommandQueue, window Window, desc SwapChainDesc) (SwapChain, error)
}

type Adapter interface {
	Description() string
}

type Device interface {
	Releaser

	CreateCommandQueue(kind CommandListType) (CommandQueue, error)
	CreateDescriptorHeap(desc DescriptorHeapDesc) (DescriptorHeap, error)
	CreateRenderTargetView(res Resource, handle CPUDescriptorHandle) error
	CreateRootSignature(desc RootSignatureDesc) (RootSignature, error)
	CreateGraphicsPipelineState(desc GraphicsPipelineDesc) (PipelineState, error)
	CreateCommandAllocator(kind CommandListType) (CommandAllocator, error)
	// CreateCommandList returns a list that is already in the recording state.
	CreateCommandList(kind CommandListType, alloc CommandAllocator, initial PipelineState) (GraphicsCommandList, error)
	CreateCommittedResource(desc BufferDesc) (Resource, error)
	CreateFence(initialValue uint64) (Fence, error)
	CreateFenceEvent(name string) (Event, error)
}

type CommandQueue interface {
	Releaser

	ExecuteCommandLists(lists ...GraphicsCommandList) error
	// Signal enqueues a fence update to value behind all previously submitted work.
	Signal(fence Fence, value uint64) error
	// WaitIdle blocks until every submission on the queue has completed. It does not
	// go through a fence, so it still works once fence signalling has failed.
	WaitIdle() error
}

type SwapChain interface {
	Releaser

	Desc() SwapChainDesc
	GetBuffer(index int) (Resource, error)
	CurrentBackBufferIndex() int
	Present(syncInterval int, flags uint32) error
}

type DescriptorHeap interface {
	Releaser

	Desc() DescriptorHeapDesc
	CPUHandle(slot int) CPUDescriptorHandle
}

type RootSignature interface {
	Releaser
}

type PipelineState interface {
	Releaser
}

type CommandAllocator interface {
	Releaser

	// Reset reclaims the memory of every list recorded against the allocator. The GPU
	// must have finished with those lists.
	Reset() error
}

type GraphicsCommandList interface {
	Releaser

	Reset(alloc CommandAllocator, initial PipelineState) error
	Close() error

	SetGraphicsRootSignature(rs RootSignature)
	SetViewports(viewports ...Viewport)
	SetScissorRects(rects ...Rect)
	ResourceBarrier(barriers ...TransitionBarrier)
	SetRenderTargets(handles ...CPUDescriptorHandle)
	ClearRenderTargetView(handle CPUDescriptorHandle, color [4]float32)
	SetPrimitiveTopology(topology PrimitiveTopology)
	SetVertexBuffers(startSlot int, views ...VertexBufferView)
	DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance int)
}

type Resource interface {
	Releaser

	GPUVirtualAddress() uint64
	// Map exposes the resource memory to the CPU. readRange declares what the CPU is
	// going to read; nil means everything.
	Map(readRange *Range) ([]byte, error)
	// Unmap ends a mapping. writtenRange declares what the CPU wrote; nil means everything.
	Unmap(writtenRange *Range)
}

type Fence interface {
	Releaser

	CompletedValue() uint64
	SetEventOnCompletion(value uint64, event Event) error
}

// Event is a CPU wait handle a fence signals once it reaches a registered value.
type Event interface {
	Releaser

	// Wait blocks until the event is signalled. A timeout of Infinite never expires;
	// otherwise ErrWaitTimeout is returned when it does.
	Wait(timeout time.Duration) error
}

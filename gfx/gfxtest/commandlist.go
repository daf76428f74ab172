package gfxtest

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/triangle/gfx"
)

type Op string

const (
	OpSetGraphicsRootSignature Op = "SetGraphicsRootSignature"
	OpSetViewports             Op = "SetViewports"
	OpSetScissorRects          Op = "SetScissorRects"
	OpResourceBarrier          Op = "ResourceBarrier"
	OpSetRenderTargets         Op = "SetRenderTargets"
	OpClearRenderTargetView    Op = "ClearRenderTargetView"
	OpSetPrimitiveTopology     Op = "SetPrimitiveTopology"
	OpSetVertexBuffers         Op = "SetVertexBuffers"
	OpDrawInstanced            Op = "DrawInstanced"
)

// Command is one recorded call. Only the fields relevant to Op are set.
type Command struct {
	Op            Op
	RootSignature gfx.RootSignature
	Viewports     []gfx.Viewport
	Rects         []gfx.Rect
	Barriers      []gfx.TransitionBarrier
	Targets       []gfx.CPUDescriptorHandle
	Color         [4]float32
	Topology      gfx.PrimitiveTopology
	VertexBuffers []gfx.VertexBufferView
	// Draw holds vertex count, instance count, start vertex and start instance.
	Draw [4]int
}

type CommandList struct {
	device *Device
	kind   gfx.CommandListType

	mu        sync.Mutex
	alloc     *CommandAllocator
	pipeline  gfx.PipelineState
	commands  []Command
	recording bool
	misuse    error
	closes    int
	inFlight  int
	released  bool
}

var _ gfx.GraphicsCommandList = (*CommandList)(nil)

func (l *CommandList) begin(alloc *CommandAllocator, initial gfx.PipelineState) {
	l.alloc = alloc
	l.pipeline = initial
	l.commands = nil
	l.recording = true
	alloc.addRecording(1)
}

func (l *CommandList) allocator() *CommandAllocator {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alloc
}

// Closed reports whether the list is ready for submission.
func (l *CommandList) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.recording
}

// Closes is the number of successful Close calls.
func (l *CommandList) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// Commands returns a copy of the commands recorded since the last reset.
func (l *CommandList) Commands() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Command(nil), l.commands...)
}

func (l *CommandList) Reset(alloc gfx.CommandAllocator, initial gfx.PipelineState) error {
	if err := l.device.gpu.fail("CommandList.Reset"); err != nil {
		return err
	}

	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return errors.Errorf("gfxtest: foreign allocator %T", alloc)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recording {
		return gfx.ErrListNotClosed
	}
	l.misuse = nil
	l.begin(a, initial)
	return nil
}

func (l *CommandList) Close() error {
	if err := l.device.gpu.fail("CommandList.Close"); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.recording {
		return gfx.ErrListClosed
	}
	l.recording = false
	l.alloc.addRecording(-1)
	if l.misuse != nil {
		return l.misuse
	}
	l.closes++
	return nil
}

func (l *CommandList) record(cmd Command) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.recording {
		if l.misuse == nil {
			l.misuse = errors.Wrapf(gfx.ErrListClosed, "gfxtest: %s recorded into a closed list", cmd.Op)
		}
		return
	}
	l.commands = append(l.commands, cmd)
}

func (l *CommandList) SetGraphicsRootSignature(rs gfx.RootSignature) {
	l.record(Command{Op: OpSetGraphicsRootSignature, RootSignature: rs})
}

func (l *CommandList) SetViewports(viewports ...gfx.Viewport) {
	l.record(Command{Op: OpSetViewports, Viewports: append([]gfx.Viewport(nil), viewports...)})
}

func (l *CommandList) SetScissorRects(rects ...gfx.Rect) {
	l.record(Command{Op: OpSetScissorRects, Rects: append([]gfx.Rect(nil), rects...)})
}

func (l *CommandList) ResourceBarrier(barriers ...gfx.TransitionBarrier) {
	l.record(Command{Op: OpResourceBarrier, Barriers: append([]gfx.TransitionBarrier(nil), barriers...)})
}

func (l *CommandList) SetRenderTargets(handles ...gfx.CPUDescriptorHandle) {
	l.record(Command{Op: OpSetRenderTargets, Targets: append([]gfx.CPUDescriptorHandle(nil), handles...)})
}

func (l *CommandList) ClearRenderTargetView(handle gfx.CPUDescriptorHandle, color [4]float32) {
	l.record(Command{Op: OpClearRenderTargetView, Targets: []gfx.CPUDescriptorHandle{handle}, Color: color})
}

func (l *CommandList) SetPrimitiveTopology(topology gfx.PrimitiveTopology) {
	l.record(Command{Op: OpSetPrimitiveTopology, Topology: topology})
}

func (l *CommandList) SetVertexBuffers(startSlot int, views ...gfx.VertexBufferView) {
	l.record(Command{Op: OpSetVertexBuffers, VertexBuffers: append([]gfx.VertexBufferView(nil), views...)})
}

func (l *CommandList) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance int) {
	l.record(Command{Op: OpDrawInstanced, Draw: [4]int{vertexCountPerInstance, instanceCount, startVertex, startInstance}})
}

func (l *CommandList) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	if l.recording {
		l.alloc.addRecording(-1)
		l.recording = false
	}
	if l.inFlight > 0 {
		l.device.gpu.violate("command list released with %d submission(s) in flight", l.inFlight)
	}
	l.device.gpu.untrack("CommandList")
}

func (l *CommandList) addInFlight(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight += n
}

func targetImage(handle gfx.CPUDescriptorHandle) (*image, error) {
	heap, ok := handle.Heap.(*DescriptorHeap)
	if !ok {
		return nil, errors.Errorf("gfxtest: foreign descriptor heap %T", handle.Heap)
	}
	if handle.Slot < 0 || handle.Slot >= len(heap.views) || heap.views[handle.Slot] == nil {
		return nil, errors.Errorf("gfxtest: no render target view in slot %d", handle.Slot)
	}
	return heap.views[handle.Slot].img, nil
}

// execute replays the list against resource state the way a validation layer would.
// It returns the buffers the draws read.
func (l *CommandList) execute() ([]*Buffer, error) {
	l.mu.Lock()
	commands := l.commands
	pipeline := l.pipeline
	l.mu.Unlock()

	var (
		rootSignature gfx.RootSignature
		viewports     bool
		scissors      bool
		topology      bool
		vertexBuffer  *gfx.VertexBufferView
		target        *image
		read          []*Buffer
	)

	for i, cmd := range commands {
		switch cmd.Op {
		case OpSetGraphicsRootSignature:
			rootSignature = cmd.RootSignature
		case OpSetViewports:
			viewports = len(cmd.Viewports) > 0
		case OpSetScissorRects:
			scissors = len(cmd.Rects) > 0
		case OpSetPrimitiveTopology:
			topology = true
		case OpSetVertexBuffers:
			if len(cmd.VertexBuffers) > 0 {
				vb := cmd.VertexBuffers[0]
				vertexBuffer = &vb
			}
		case OpResourceBarrier:
			for _, b := range cmd.Barriers {
				bb, ok := b.Resource.(*BackBuffer)
				if !ok {
					return nil, errors.Errorf("gfxtest: command %d: barrier on unsupported resource %T", i, b.Resource)
				}
				if !bb.img.transition(b.StateBefore, b.StateAfter) {
					return nil, errors.Wrapf(gfx.ErrInvalidState, "gfxtest: command %d: buffer %d is %s, barrier expects %s",
						i, bb.img.index, bb.img.State(), b.StateBefore)
				}
			}
		case OpSetRenderTargets:
			if len(cmd.Targets) != 1 {
				return nil, errors.Errorf("gfxtest: command %d: expected one render target, got %d", i, len(cmd.Targets))
			}
			img, err := targetImage(cmd.Targets[0])
			if err != nil {
				return nil, errors.Wrapf(err, "gfxtest: command %d", i)
			}
			target = img
		case OpClearRenderTargetView:
			img, err := targetImage(cmd.Targets[0])
			if err != nil {
				return nil, errors.Wrapf(err, "gfxtest: command %d", i)
			}
			if st := img.State(); st != gfx.ResourceStateRenderTarget {
				return nil, errors.Wrapf(gfx.ErrInvalidState, "gfxtest: command %d: clearing buffer %d in state %s", i, img.index, st)
			}
		case OpDrawInstanced:
			switch {
			case pipeline == nil:
				return nil, errors.Errorf("gfxtest: command %d: draw without a pipeline state", i)
			case rootSignature == nil:
				return nil, errors.Errorf("gfxtest: command %d: draw without a root signature", i)
			case !viewports || !scissors:
				return nil, errors.Errorf("gfxtest: command %d: draw without viewport and scissor", i)
			case !topology:
				return nil, errors.Errorf("gfxtest: command %d: draw without a primitive topology", i)
			case vertexBuffer == nil:
				return nil, errors.Errorf("gfxtest: command %d: draw without a vertex buffer", i)
			case target == nil:
				return nil, errors.Errorf("gfxtest: command %d: draw without a render target", i)
			}
			if st := target.State(); st != gfx.ResourceStateRenderTarget {
				return nil, errors.Wrapf(gfx.ErrInvalidState, "gfxtest: command %d: drawing into buffer %d in state %s", i, target.index, st)
			}
			buf, ok := l.device.buffer(vertexBuffer.BufferLocation)
			if !ok {
				return nil, errors.Errorf("gfxtest: command %d: vertex buffer address %#x is not a live buffer", i, vertexBuffer.BufferLocation)
			}
			used := cmd.Draw[0] * vertexBuffer.StrideInBytes
			if used > vertexBuffer.SizeInBytes || vertexBuffer.SizeInBytes > len(buf.Bytes()) {
				return nil, errors.Errorf("gfxtest: command %d: draw reads %d bytes from a %d byte view", i, used, vertexBuffer.SizeInBytes)
			}
			read = append(read, buf)
		}
	}
	return read, nil
}

package renderer

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/triangle/gfx"
	"github.com/vkngwrapper/triangle/gfx/gfxtest"
)

func TestRenderFrame_AlternatesBackBuffers(t *testing.T) {
	tests := []struct {
		name  string
		start int
		want  []int
	}{
		{name: "start at 0", start: 0, want: []int{0, 1, 0}},
		{name: "start at 1", start: 1, want: []int{1, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gpu := gfxtest.New(gfxtest.WithStartIndex(tt.start))
			ctx := newTestContext(t, gpu)

			var used []int
			for i := 0; i < 3; i++ {
				used = append(used, ctx.FrameIndex())
				require.NoError(t, ctx.RenderFrame())
			}

			assert.Equal(t, tt.want, used)
			assert.Equal(t, tt.want, gpu.SwapChain(0).Presents())
		})
	}
}

func TestRenderFrame_BarriersUseSameBuffer(t *testing.T) {
	gpu := gfxtest.New(gfxtest.WithStartIndex(1))
	ctx := newTestContext(t, gpu)

	for i := 0; i < 4; i++ {
		require.NoError(t, ctx.RenderFrame())
	}

	presents := gpu.SwapChain(0).Presents()
	submissions := gpu.Queue(0).Submissions()
	require.Len(t, submissions, 4)

	for i, sub := range submissions {
		var barriers []gfx.TransitionBarrier
		for _, cmd := range sub.Commands {
			if cmd.Op == gfxtest.OpResourceBarrier {
				barriers = append(barriers, cmd.Barriers...)
			}
		}
		require.Len(t, barriers, 2, "frame %d", i)

		assert.Equal(t, gfx.ResourceStatePresent, barriers[0].StateBefore)
		assert.Equal(t, gfx.ResourceStateRenderTarget, barriers[0].StateAfter)
		assert.Equal(t, gfx.ResourceStateRenderTarget, barriers[1].StateBefore)
		assert.Equal(t, gfx.ResourceStatePresent, barriers[1].StateAfter)

		first := gfxtest.BackBufferIndex(barriers[0].Resource)
		assert.Equal(t, first, gfxtest.BackBufferIndex(barriers[1].Resource), "frame %d", i)
		assert.Equal(t, presents[i], first, "frame %d", i)
	}

	assert.Equal(t, gfx.ResourceStatePresent, gpu.SwapChain(0).BufferState(0))
	assert.Equal(t, gfx.ResourceStatePresent, gpu.SwapChain(0).BufferState(1))
}

func TestRenderFrame_CommandOrder(t *testing.T) {
	gpu := gfxtest.New()
	ctx := newTestContext(t, gpu)

	require.NoError(t, ctx.RenderFrame())

	submissions := gpu.Queue(0).Submissions()
	require.Len(t, submissions, 1)

	var ops []gfxtest.Op
	for _, cmd := range submissions[0].Commands {
		ops = append(ops, cmd.Op)
	}
	assert.Equal(t, []gfxtest.Op{
		gfxtest.OpSetGraphicsRootSignature,
		gfxtest.OpSetViewports,
		gfxtest.OpSetScissorRects,
		gfxtest.OpResourceBarrier,
		gfxtest.OpSetRenderTargets,
		gfxtest.OpClearRenderTargetView,
		gfxtest.OpSetPrimitiveTopology,
		gfxtest.OpSetVertexBuffers,
		gfxtest.OpDrawInstanced,
		gfxtest.OpResourceBarrier,
	}, ops)

	commands := submissions[0].Commands
	assert.Equal(t, [4]float32{0, 0, 0, 1}, commands[5].Color)
	assert.Equal(t, gfx.PrimitiveTopologyTriangleList, commands[6].Topology)
	assert.Equal(t, []gfx.VertexBufferView{ctx.VertexBufferView()}, commands[7].VertexBuffers)
	assert.Equal(t, [4]int{3, 1, 0, 0}, commands[8].Draw)
	assert.Equal(t, []gfx.Viewport{ctx.Viewport()}, commands[1].Viewports)
	assert.Equal(t, []gfx.Rect{ctx.ScissorRect()}, commands[2].Rects)
}

func TestRenderFrame_FenceCounter(t *testing.T) {
	gpu := gfxtest.New()
	ctx := newTestContext(t, gpu)

	for i := 0; i < 3; i++ {
		before := ctx.FenceValue()
		require.NoError(t, ctx.RenderFrame())
		assert.Equal(t, before+1, ctx.FenceValue())
	}

	assert.Equal(t, []uint64{1, 2, 3, 4}, gpu.Queue(0).Signals())
}

func TestRenderFrame_WaitRetiresFrame(t *testing.T) {
	gpu := gfxtest.New(gfxtest.WithLatency(2 * time.Millisecond))
	ctx := newTestContext(t, gpu)

	for i := 0; i < 3; i++ {
		target := ctx.FenceValue()
		require.NoError(t, ctx.RenderFrame())
		assert.GreaterOrEqual(t, ctx.fence.CompletedValue(), target)
	}

	stats := ctx.Stats()
	assert.Equal(t, uint64(3), stats.Frames)
	assert.Equal(t, 4, stats.BlockedWaits+stats.SkippedWaits)
	assert.Positive(t, stats.BlockedWaits)
	assert.Equal(t, stats.BlockedWaits, ctx.fenceEvent.(*gfxtest.Event).Waits())
	assert.Equal(t, 3, stats.Total.Count)
	assert.LessOrEqual(t, stats.Total.Min, stats.Total.Max)
}

func TestRenderFrame_ResetsAllocatorEachFrame(t *testing.T) {
	gpu := gfxtest.New()
	ctx := newTestContext(t, gpu)

	for i := 0; i < 5; i++ {
		require.NoError(t, ctx.RenderFrame())
		assert.Equal(t, StateIdle, ctx.State())
	}

	assert.Equal(t, 5, ctx.allocator.(*gfxtest.CommandAllocator).Resets())
	assert.True(t, ctx.device.(*gfxtest.Device).CommandList(0).Closed())
}

func TestRenderFrame_VertexDataUnchanged(t *testing.T) {
	ctx := newTestContext(t, gfxtest.New())

	initial, err := ctx.VertexData()
	require.NoError(t, err)
	require.Len(t, initial, 84)

	for i := 0; i < 3; i++ {
		require.NoError(t, ctx.RenderFrame())

		data, err := ctx.VertexData()
		require.NoError(t, err)
		assert.Equal(t, initial, data, "frame %d", i)
	}
}

func TestRenderFrame_UnclosedListRejected(t *testing.T) {
	ctx := newTestContext(t, gfxtest.New())

	require.NoError(t, ctx.commandList.Reset(ctx.allocator, ctx.pipelineState))
	err := ctx.queue.ExecuteCommandLists(ctx.commandList)
	assert.ErrorIs(t, err, gfx.ErrListNotClosed)
	require.NoError(t, ctx.commandList.Close())
}

func TestRenderFrame_Failures(t *testing.T) {
	tests := []struct {
		fail    string
		kind    Kind
		wantOp  string
		state   State
		latency time.Duration
	}{
		{fail: "CommandAllocator.Reset", kind: KindCommandRecording, wantOp: "ResetCommandAllocator", state: StateRecording},
		{fail: "CommandList.Reset", kind: KindCommandRecording, wantOp: "ResetCommandList", state: StateRecording},
		{fail: "CommandList.Close", kind: KindCommandRecording, wantOp: "CloseCommandList", state: StateRecording},
		{fail: "ExecuteCommandLists", kind: KindCommandRecording, wantOp: "ExecuteCommandLists", state: StateRecording},
		// The GPU is still busy with the submitted list when Present fails.
		{fail: "Present", kind: KindCommandRecording, wantOp: "Present", state: StateSubmitted, latency: 5 * time.Millisecond},
		{fail: "Signal", kind: KindSynchronization, wantOp: "Signal", state: StatePresented, latency: 5 * time.Millisecond},
		// Latency keeps the fence behind its target so the wait has to block.
		{fail: "SetEventOnCompletion", kind: KindSynchronization, wantOp: "SetEventOnCompletion", state: StatePresented, latency: 5 * time.Millisecond},
		{fail: "Wait", kind: KindSynchronization, wantOp: "Wait", state: StatePresented, latency: 5 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.fail, func(t *testing.T) {
			gpu := gfxtest.New(gfxtest.WithLatency(tt.latency))
			ctx, err := Initialize(gpu, testWindow, stubShaders{}, testOptions())
			require.NoError(t, err)

			require.NoError(t, ctx.RenderFrame())
			gpu.FailOn(tt.fail, errors.New("injected failure"))

			err = ctx.RenderFrame()
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "got %v", err)

			var re *Error
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.wantOp, re.Op)
			assert.Equal(t, tt.state, ctx.State())

			assert.ErrorIs(t, ctx.RenderFrame(), ErrContextFailed)

			require.NoError(t, ctx.Close())
			assert.Empty(t, gpu.Live(), "leaked %v", gpu.LiveKinds())
			assert.Empty(t, gpu.Violations())
		})
	}
}

func TestClose_IdleFailureAfterFenceFailure(t *testing.T) {
	gpu := gfxtest.New(gfxtest.WithLatency(5 * time.Millisecond))
	ctx, err := Initialize(gpu, testWindow, stubShaders{}, testOptions())
	require.NoError(t, err)

	gpu.FailOn("Wait", errors.New("injected failure"))
	require.Error(t, ctx.RenderFrame())

	gpu.FailOn("WaitIdle", errors.New("injected failure"))
	err = ctx.Close()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindSynchronization), "got %v", err)

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "WaitIdle", re.Op)
	assert.Empty(t, gpu.Live(), "leaked %v", gpu.LiveKinds())
}

func TestRenderFrame_ClearColor(t *testing.T) {
	gpu := gfxtest.New()
	opts := testOptions()
	opts.ClearColor = &math32.Color4{R: 0.1, G: 0.2, B: 0.3, A: 1}

	ctx, err := Initialize(gpu, testWindow, stubShaders{}, opts)
	require.NoError(t, err)
	defer ctx.Close()

	assert.Equal(t, *opts.ClearColor, ctx.ClearColor())
	require.NoError(t, ctx.RenderFrame())

	submissions := gpu.Queue(0).Submissions()
	require.Len(t, submissions, 1)
	for _, cmd := range submissions[0].Commands {
		if cmd.Op == gfxtest.OpClearRenderTargetView {
			assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, cmd.Color)
		}
	}
}

// recordHandler keeps every record it handles.
type recordHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func TestRenderFrame_FailureLogged(t *testing.T) {
	handler := &recordHandler{}
	gpu := gfxtest.New()
	opts := testOptions()
	opts.Logger = slog.New(handler)

	ctx, err := Initialize(gpu, testWindow, stubShaders{}, opts)
	require.NoError(t, err)
	defer ctx.Close()

	gpu.FailOn("CommandList.Close", errors.New("injected failure"))
	require.Error(t, ctx.RenderFrame())

	handler.mu.Lock()
	defer handler.mu.Unlock()
	var found bool
	for _, r := range handler.records {
		if r.Message != "frame failed" {
			continue
		}
		found = true
		assert.Equal(t, slog.LevelError, r.Level)
		attrs := map[string]slog.Value{}
		r.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value
			return true
		})
		require.Contains(t, attrs, "frame")
		assert.Equal(t, slog.KindUint64, attrs["frame"].Kind())
		require.Contains(t, attrs, "error")
		logged, ok := attrs["error"].Any().(error)
		require.True(t, ok)
		assert.Contains(t, logged.Error(), "injected failure")
	}
	assert.True(t, found, "no frame failure record")
}

package renderer

import (
	"log/slog"
	"time"
)

// DurationStats accumulates the min, max and mean of a series of durations.
type DurationStats struct {
	Count int
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

func (s *DurationStats) Add(d time.Duration) {
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Count++
	s.Total += d
}

func (s DurationStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

func (s DurationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("min", s.Min),
		slog.Duration("mean", s.Mean()),
		slog.Duration("max", s.Max))
}

// FrameStats times the phases of RenderFrame. Wait also covers the drains run by
// Initialize and Close.
type FrameStats struct {
	Frames  uint64
	Record  DurationStats
	Present DurationStats
	Wait    DurationStats
	Total   DurationStats

	// SkippedWaits counts fence waits that found the GPU already done.
	SkippedWaits int
	BlockedWaits int
}

func (c *Context) logStats() {
	interval := c.opts.StatsInterval
	if interval <= 0 || c.stats.Frames%uint64(interval) != 0 {
		return
	}

	c.log.Debug("frame statistics",
		slog.Uint64("frames", c.stats.Frames),
		slog.Any("record", c.stats.Record),
		slog.Any("present", c.stats.Present),
		slog.Any("wait", c.stats.Wait),
		slog.Any("total", c.stats.Total),
		slog.Int("skippedWaits", c.stats.SkippedWaits),
		slog.Int("blockedWaits", c.stats.BlockedWaits))
}

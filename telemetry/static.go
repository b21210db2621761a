package telemetry

import (
	"context"
	"sync"
)

// StaticCollector returns fixed values. Set Gate to make Snapshot block
// until the channel is closed or receives.
type StaticCollector struct {
	Info HostInfo
	Snap Snapshot
	Err  error
	Gate chan struct{}

	mu    sync.Mutex
	calls int
}

var _ Collector = (*StaticCollector)(nil)

// HostInfo implements Collector.
func (c *StaticCollector) HostInfo(ctx context.Context) (HostInfo, error) {
	if c.Err != nil {
		return HostInfo{}, c.Err
	}
	return c.Info, nil
}

// Snapshot implements Collector.
func (c *StaticCollector) Snapshot(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	c.calls++
	gate := c.Gate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
	if c.Err != nil {
		return Snapshot{}, c.Err
	}
	snap := c.Snap
	snap.HostInfo = c.Info
	return snap, nil
}

// Calls returns how many times Snapshot was called.
func (c *StaticCollector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

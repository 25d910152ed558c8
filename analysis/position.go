package analysis

import (
	"sync"

	"github.com/jacokyle01/live-analysis/models"
)

// PositionCell holds the current position and a version bumped by every
// Set. One goroutine sets it; the scheduler reads coherent snapshots.
type PositionCell struct {
	mu      sync.Mutex
	pos     models.Position
	version uint64
	changed chan struct{}
}

// NewPositionCell returns a cell holding pos at version 1.
func NewPositionCell(pos models.Position) *PositionCell {
	return &PositionCell{
		pos:     pos.Clone(),
		version: 1,
		changed: make(chan struct{}),
	}
}

// Set replaces the position and returns the new version. It never blocks
// on readers.
func (c *PositionCell) Set(pos models.Position) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = pos.Clone()
	c.version++
	close(c.changed)
	c.changed = make(chan struct{})
	return c.version
}

// Snapshot returns the position and its version.
func (c *PositionCell) Snapshot() (models.Position, uint64) {
	pos, version, _ := c.Watch()
	return pos, version
}

// Watch returns the position, its version and a channel closed by the next Set.
func (c *PositionCell) Watch() (models.Position, uint64, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos.Clone(), c.version, c.changed
}

// Version returns the current version.
func (c *PositionCell) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

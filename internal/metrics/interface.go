package metrics

import (
	"context"
	"time"
)

// Collector records readings and mode changes
type Collector interface {
	RecordReading(ctx context.Context, snapshot *ReadingSnapshot) error
	RecordModeChange(ctx context.Context, change *ModeChange) error
	Close() error
}

// Repository defines the interface for metrics data storage
type Repository interface {
	RecordReading(snapshot *ReadingSnapshot) error
	RecordModeChange(change *ModeChange) error
	Close() error
}

// ReadingSnapshot is one published device reading. Unavailable fields are
// stored as NULL.
type ReadingSnapshot struct {
	Timestamp       time.Time
	CPUFrequencyMHz int
	CPUFrequencyOK  bool
	TemperatureC    float64
	TemperatureOK   bool
}

// ModeChange summarizes one mode application
type ModeChange struct {
	Timestamp time.Time
	Mode      string
	Steps     int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Succeeded reports whether every step of the change ran and succeeded
func (c *ModeChange) Succeeded() bool {
	return c.Failed == 0 && c.Skipped == 0
}

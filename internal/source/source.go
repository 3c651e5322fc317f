// Package source implements the telemetry sources polled by the scheduler.
// Every source turns one read of its upstream into normalized points and
// reports failures as errors; it never panics or exits the process.
package source

import (
	"context"
	"time"

	"codeberg.org/mutker/energymon/internal/telemetry"
)

// Source is one independently scheduled telemetry source.
type Source interface {
	// Name identifies the source in logs, metrics and cadence tables.
	Name() string
	// Collect reads the upstream once. An error means no data this cycle.
	Collect(ctx context.Context) ([]telemetry.Point, error)
}

// Clock returns the observation time stamped on collected points.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

package telemetry

import "context"

// Sink durably stores batches of points. A call to Write is one atomic
// write from the caller's point of view.
type Sink interface {
	Name() string
	Write(ctx context.Context, points []Point) error
	Close() error
}

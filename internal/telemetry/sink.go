package telemetry

import (
	"context"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
)

// MultiSink writes every batch to all of its sinks in order. A failing sink
// does not prevent the remaining ones from receiving the batch.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (*MultiSink) Name() string { return "multi" }

func (m *MultiSink) Write(ctx context.Context, points []Point) error {
	errFactory := errors.New()

	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, points); err != nil {
			errs = append(errs, errFactory.Wrap(ErrSinkWrite, err).WithData(s.Name()))
		}
	}

	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// LogSink logs points instead of storing them.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (*LogSink) Name() string { return "log" }

func (*LogSink) Write(_ context.Context, points []Point) error {
	for _, p := range points {
		ev := logger.Info().Str("series", p.SeriesKey()).Time("time", p.Time)
		for name, v := range p.Fields {
			ev = ev.Float64(name, v)
		}
		ev.Msg("point")
	}

	return nil
}

func (*LogSink) Close() error { return nil }

package telemetry_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoint(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tags := telemetry.Tags{"phase": "L1"}
	fields := telemetry.Fields{"value": 230.1}

	p, err := telemetry.NewPoint("voltage", tags, fields, ts)
	require.NoError(t, err)

	assert.Equal(t, "voltage", p.Measurement)
	assert.Equal(t, "L1", p.Tags["phase"])
	assert.Equal(t, ts, p.Time)

	// Point owns copies of its maps.
	tags["phase"] = "L2"
	fields["value"] = 0
	assert.Equal(t, "L1", p.Tags["phase"])
	v, ok := p.Value()
	assert.True(t, ok)
	assert.InDelta(t, 230.1, v, 1e-9)
}

func TestNewPointValidation(t *testing.T) {
	ts := time.Now()

	_, err := telemetry.NewPoint("", nil, telemetry.Fields{"value": 1}, ts)
	assert.True(t, errors.HasCode(err, telemetry.ErrEmptyMeasurement))

	_, err = telemetry.NewPoint("voltage", nil, nil, ts)
	assert.True(t, errors.HasCode(err, telemetry.ErrNoFields))

	_, err = telemetry.NewPoint("voltage", nil, telemetry.Fields{"value": math.NaN()}, ts)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidField))
}

func TestSeriesKey(t *testing.T) {
	p, err := telemetry.NewValuePoint("voltage", telemetry.Tags{"phase": "L1", "location": "Lab"}, 1, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "voltage,location=Lab,phase=L1", p.SeriesKey())
}

func TestMergeTags(t *testing.T) {
	base := telemetry.Tags{"phase": "L1"}
	merged := telemetry.MergeTags(base, telemetry.Tags{"location": "Lab"})

	assert.Equal(t, telemetry.Tags{"phase": "L1", "location": "Lab"}, merged)
	assert.Len(t, base, 1)
}

type recordingSink struct {
	name    string
	err     error
	batches [][]telemetry.Point
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, points []telemetry.Point) error {
	s.batches = append(s.batches, points)
	return s.err
}

func (*recordingSink) Close() error { return nil }

func TestMultiSinkContinuesAfterFailure(t *testing.T) {
	failing := &recordingSink{name: "influx", err: fmt.Errorf("connection refused")}
	ok := &recordingSink{name: "sqlite"}

	p, err := telemetry.NewValuePoint("voltage", nil, 230, time.Now())
	require.NoError(t, err)

	err = telemetry.NewMultiSink(failing, ok).Write(context.Background(), []telemetry.Point{p})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "influx")
	assert.Len(t, failing.batches, 1)
	assert.Len(t, ok.batches, 1)
}

package telemetry

import (
	"math"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"golang.org/x/exp/maps"
)

// ValueField is the field name used by single-valued points.
const ValueField = "value"

type (
	Tags   map[string]string
	Fields map[string]float64
)

// Point is one normalized observation. Build it with NewPoint; a Point is
// not modified after construction.
type Point struct {
	Measurement string
	Tags        Tags
	Fields      Fields
	Time        time.Time
}

// NewPoint validates and copies its inputs. Measurement must be non-empty
// and fields must contain at least one finite value.
func NewPoint(measurement string, tags Tags, fields Fields, ts time.Time) (Point, error) {
	errFactory := errors.New()

	if strings.TrimSpace(measurement) == "" {
		return Point{}, errFactory.New(ErrEmptyMeasurement)
	}
	if len(fields) == 0 {
		return Point{}, errFactory.WithData(ErrNoFields, measurement)
	}
	for name, v := range fields {
		if name == "" || math.IsNaN(v) || math.IsInf(v, 0) {
			return Point{}, errFactory.WithData(ErrInvalidField, struct {
				Measurement string
				Field       string
				Value       float64
			}{measurement, name, v})
		}
	}

	return Point{
		Measurement: measurement,
		Tags:        maps.Clone(tags),
		Fields:      maps.Clone(fields),
		Time:        ts.UTC(),
	}, nil
}

// NewValuePoint builds a point with the single field "value".
func NewValuePoint(measurement string, tags Tags, value float64, ts time.Time) (Point, error) {
	return NewPoint(measurement, tags, Fields{ValueField: value}, ts)
}

// Value returns the "value" field.
func (p Point) Value() (float64, bool) {
	v, ok := p.Fields[ValueField]
	return v, ok
}

// SeriesKey identifies the logical series: measurement followed by the tags
// in key order, e.g. "voltage,location=Lab,phase=L1".
func (p Point) SeriesKey() string {
	keys := maps.Keys(p.Tags)
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(p.Measurement)
	for _, k := range keys {
		b.WriteByte(',')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.Tags[k])
	}

	return b.String()
}

// MergeTags returns a new tag set with extra applied over base.
func MergeTags(base Tags, extra Tags) Tags {
	out := make(Tags, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}

	return out
}

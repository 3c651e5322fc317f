// Package influx writes point batches to an InfluxDB 2.x bucket.
package influx

import (
	"context"
	"net/url"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
	"codeberg.org/mutker/energymon/internal/telemetry"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrWrite         = errors.ErrorCode("influx_write_failed")
)

const defaultTimeout = 10 * time.Second

type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return errFactory.Wrap(ErrInvalidConfig, err)
	}
	if c.Org == "" || c.Bucket == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "influx org and bucket are required")
	}
	return nil
}

// Sink implements telemetry.Sink.
type Sink struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	bucket string
}

func New(cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(timeout.Seconds())).
		SetPrecision(time.Nanosecond)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	logger.Debug().
		Str("url", cfg.URL).
		Str("org", cfg.Org).
		Str("bucket", cfg.Bucket).
		Msg("InfluxDB sink configured")

	return &Sink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket: cfg.Bucket,
	}, nil
}

func (s *Sink) Name() string { return "influx/" + s.bucket }

// Write sends the batch in a single request.
func (s *Sink) Write(ctx context.Context, points []telemetry.Point) error {
	if len(points) == 0 {
		return nil
	}

	batch := make([]*write.Point, 0, len(points))
	for _, p := range points {
		batch = append(batch, toWritePoint(p))
	}

	if err := s.writer.WritePoint(ctx, batch...); err != nil {
		return errors.New().Wrap(ErrWrite, err)
	}

	return nil
}

func (s *Sink) Close() error {
	s.client.Close()
	return nil
}

func toWritePoint(p telemetry.Point) *write.Point {
	fields := make(map[string]interface{}, len(p.Fields))
	for name, v := range p.Fields {
		fields[name] = v
	}

	return write.NewPoint(p.Measurement, p.Tags, fields, p.Time)
}

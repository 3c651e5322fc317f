package source_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/source"
	"codeberg.org/mutker/energymon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySource struct {
	errs  []error
	calls int
}

func (*flakySource) Name() string { return "flaky" }

func (f *flakySource) Collect(context.Context) ([]telemetry.Point, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	p, err := telemetry.NewValuePoint("voltage", nil, 230, time.Now())
	return []telemetry.Point{p}, err
}

var fastPolicy = source.RetryPolicy{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}

func TestRetryingRecovers(t *testing.T) {
	f := errors.New()
	flaky := &flakySource{errs: []error{f.New(errors.ErrTransport), f.New(errors.ErrBadStatus)}}

	points, err := source.Retrying(flaky, fastPolicy).Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, points, 1)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingIsBounded(t *testing.T) {
	f := errors.New()
	flaky := &flakySource{errs: []error{
		f.New(errors.ErrTransport), f.New(errors.ErrTransport), f.New(errors.ErrTransport), f.New(errors.ErrTransport),
	}}

	_, err := source.Retrying(flaky, fastPolicy).Collect(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingSkipsPermanentFailures(t *testing.T) {
	flaky := &flakySource{errs: []error{errors.New().New(errors.ErrDecode)}}

	src := source.Retrying(flaky, fastPolicy)
	assert.Equal(t, "flaky", src.Name())

	_, err := src.Collect(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, flaky.calls)
}

func TestRetryingStopsOnCancel(t *testing.T) {
	flaky := &flakySource{errs: []error{fmt.Errorf("dial: %w", context.DeadlineExceeded), nil}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := source.Retrying(flaky, source.RetryPolicy{Attempts: 5, Initial: time.Hour, Max: time.Hour}).Collect(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, flaky.calls)
}

func TestBackoff(t *testing.T) {
	p := source.RetryPolicy{Initial: 100 * time.Millisecond, Max: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(4))
	assert.Equal(t, time.Second, p.Backoff(5))
	assert.Equal(t, time.Second, p.Backoff(30))
}

// Package scheduler polls sources on independent cadences and hands the
// points of each tick to a sink in one write.
//
// Every due source is collected in its own goroutine, so a slow or failing
// source never delays the others. A source is never polled again while a
// previous poll of it is still running. Polls that outlive their tick are
// not lost: their points join the batch of the tick in which they arrive.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
	"codeberg.org/mutker/energymon/internal/metrics"
	"codeberg.org/mutker/energymon/internal/source"
	"codeberg.org/mutker/energymon/internal/telemetry"
)

// jitterSlack is the fraction of a tick by which a poll may come early.
const jitterSlack = 10

// Job pairs a source with its minimum interval between polls.
type Job struct {
	Source  source.Source
	Cadence time.Duration
}

type jobState struct {
	Job
	name     string
	lastPoll time.Time
	polled   bool
	inFlight bool
}

type result struct {
	job    *jobState
	points []telemetry.Point
	err    error
	took   time.Duration
	at     time.Time
	tick   uint64
}

type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithRecorder(rec metrics.Recorder) Option {
	return func(s *Scheduler) { s.rec = rec }
}

// Scheduler is not safe for concurrent use: Tick, RunOnce and Run must be
// called from one goroutine.
type Scheduler struct {
	cfg      Config
	jobs     []*jobState
	sink     telemetry.Sink
	rec      metrics.Recorder
	now      func() time.Time
	results  chan result
	pending  []telemetry.Point
	inFlight int
	ticks    uint64
}

func New(cfg Config, sink telemetry.Sink, jobs []Job, opts ...Option) (*Scheduler, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "sink is required")
	}

	seen := make(map[string]bool, len(jobs))
	states := make([]*jobState, 0, len(jobs))
	for i, j := range jobs {
		if j.Source == nil {
			return nil, errFactory.WithData(ErrInvalidJob, fmt.Sprintf("job %d has no source", i))
		}
		name := j.Source.Name()
		if j.Cadence < cfg.Tick {
			return nil, errFactory.WithData(ErrInvalidJob, struct {
				Source  string
				Cadence time.Duration
				Tick    time.Duration
			}{name, j.Cadence, cfg.Tick})
		}
		if seen[name] {
			return nil, errFactory.WithData(ErrDuplicateSource, name)
		}
		seen[name] = true
		states = append(states, &jobState{Job: j, name: name})
	}

	s := &Scheduler{
		cfg:  cfg,
		jobs: states,
		sink: sink,
		rec:  metrics.Nop(),
		now:  time.Now,
		// One slot per job: a job has at most one poll in flight, so senders
		// never block.
		results: make(chan result, len(states)),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Tick runs one scheduling step: due sources are polled, their results are
// awaited until the next tick would start, and everything collected so far
// is written. The returned error is the sink's; poll failures are only
// logged and counted.
func (s *Scheduler) Tick(ctx context.Context) error {
	return s.tick(ctx, ctx, s.cfg.Tick, false)
}

// RunOnce polls every source regardless of cadence, waits up to the poll
// timeout for all of them and writes the batch.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.tick(ctx, ctx, s.cfg.PollTimeout, true)
}

// Run ticks until ctx is cancelled. It then stops launching polls, gives
// in-flight polls the shutdown grace to finish, aborts the rest and writes
// the final batch.
func (s *Scheduler) Run(ctx context.Context) error {
	// Polls outlive ctx by up to the grace period.
	pollCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	defer abort()

	logger.Info().
		Int("sources", len(s.jobs)).
		Dur("tick", s.cfg.Tick).
		Msg("Scheduler started")

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return s.shutdown(abort)
		}

		// Sink failures are logged inside tick; the loop keeps going.
		_ = s.tick(pollCtx, ctx, s.cfg.Tick, false)

		select {
		case <-ctx.Done():
			return s.shutdown(abort)
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(pollCtx, waitCtx context.Context, wait time.Duration, force bool) error {
	s.ticks++
	s.drain()

	now := s.now()

	launched := 0
	for _, j := range s.jobs {
		if !force && !s.due(j, now) {
			continue
		}
		if j.inFlight {
			s.rec.PollSkipped(j.name)
			logger.Debug().Str("source", j.name).Msg("Previous poll still running, skipping")
			continue
		}

		j.lastPoll = now
		j.polled = true
		s.launch(pollCtx, j)
		launched++
	}

	s.await(waitCtx, launched, wait)

	return s.flush(waitCtx)
}

// due reports whether the cadence has elapsed since the last poll. A tenth
// of a tick absorbs timer jitter; a late tick never makes a source early by
// more than that.
func (s *Scheduler) due(j *jobState, now time.Time) bool {
	return !j.polled || now.Sub(j.lastPoll) >= j.Cadence-s.cfg.Tick/jitterSlack
}

func (s *Scheduler) launch(ctx context.Context, j *jobState) {
	j.inFlight = true
	s.inFlight++
	tick := s.ticks

	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		defer cancel()

		started := time.Now()
		points, err := collect(ctx, j.Source)
		s.results <- result{
			job:    j,
			points: points,
			err:    err,
			took:   time.Since(started),
			at:     s.now(),
			tick:   tick,
		}
	}()
}

// collect turns a panicking source into a failed poll.
func collect(ctx context.Context, src source.Source) (points []telemetry.Point, err error) {
	defer func() {
		if r := recover(); r != nil {
			points = nil
			err = errors.New().WithData(ErrPollPanic, fmt.Sprint(r))
		}
	}()

	return src.Collect(ctx)
}

// await receives results until every poll launched in the current tick has
// reported, the wait expires or ctx is done. Results of earlier ticks that
// arrive meanwhile are accepted as well.
func (s *Scheduler) await(ctx context.Context, launched int, wait time.Duration) {
	if launched == 0 {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for launched > 0 {
		select {
		case r := <-s.results:
			if r.tick == s.ticks {
				launched--
			}
			s.handle(r)
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain accepts results that are already waiting.
func (s *Scheduler) drain() {
	for {
		select {
		case r := <-s.results:
			s.handle(r)
		default:
			return
		}
	}
}

func (s *Scheduler) handle(r result) {
	r.job.inFlight = false
	s.inFlight--

	if r.err != nil {
		s.rec.PollFailed(r.job.name, r.took)
		logger.WarnWithCode(r.err).
			Str("source", r.job.name).
			Dur("took", r.took).
			Msg("Poll failed")
		return
	}

	s.rec.PollSucceeded(r.job.name, len(r.points), r.took, r.at)
	logger.Debug().
		Str("source", r.job.name).
		Int("points", len(r.points)).
		Dur("took", r.took).
		Msg("Poll succeeded")

	s.pending = append(s.pending, r.points...)
}

// flush hands the pending points to the sink in a single write. A failed
// batch is dropped.
func (s *Scheduler) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	batch := s.pending
	s.pending = nil

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()

	err := s.sink.Write(ctx, batch)
	s.rec.SinkWrite(err)
	if err != nil {
		logger.ErrorWithCode(err).
			Str("sink", s.sink.Name()).
			Int("points", len(batch)).
			Msg("Failed to write batch")
		return errors.New().Wrap(ErrSinkWrite, err)
	}

	logger.Debug().
		Str("sink", s.sink.Name()).
		Int("points", len(batch)).
		Msg("Batch written")

	return nil
}

func (s *Scheduler) shutdown(abort context.CancelFunc) error {
	logger.Info().Int("in_flight", s.inFlight).Msg("Scheduler stopping")

	if s.inFlight > 0 {
		timer := time.NewTimer(s.cfg.ShutdownGrace)
	wait:
		for s.inFlight > 0 {
			select {
			case r := <-s.results:
				s.handle(r)
			case <-timer.C:
				break wait
			}
		}
		timer.Stop()
	}

	if s.inFlight > 0 {
		logger.Warn().Int("in_flight", s.inFlight).Msg("Aborting polls after shutdown grace")
	}
	abort()

	err := s.flush(context.Background())
	logger.Info().Msg("Scheduler stopped")

	return err
}

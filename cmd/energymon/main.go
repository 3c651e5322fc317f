package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/energymon/internal/config"
	"codeberg.org/mutker/energymon/internal/logger"
	"codeberg.org/mutker/energymon/internal/metrics"
	"codeberg.org/mutker/energymon/internal/pid"
	"codeberg.org/mutker/energymon/internal/scheduler"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		for _, ve := range config.Errors(err) {
			fmt.Fprintf(os.Stderr, "  %s = %v: %s\n", ve.Field(), ve.Value(), ve.Reason())
		}
		os.Exit(1)
	}

	logFile := logger.InitWithFile(cfg.EffectiveLogLevel(), logger.IsService(), logger.FileConfig{
		Path:       cfg.LogFile.Path,
		MaxSizeMB:  cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAgeDays: cfg.LogFile.MaxAgeDays,
	})
	logger.Debug().Str("config", cfg.ConfigFile).Msg("Config loaded")

	err = run(cfg)
	if err != nil {
		logger.ErrorWithCode(err).Msg("energymon stopped")
	}
	_ = logFile.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := pid.Write(cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.WarnWithCode(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec metrics.Recorder = metrics.Nop()
	if cfg.Metrics.Enabled {
		m := metrics.New()
		rec = m
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logger.ErrorWithCode(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	sink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.WarnWithCode(err).Str("sink", sink.Name()).Msg("Failed to close sink")
		}
	}()

	jobs, closeSources, err := buildJobs(cfg)
	if err != nil {
		return err
	}
	defer closeSources()

	sched, err := scheduler.New(scheduler.Config{
		Tick:          cfg.Scheduler.Tick,
		PollTimeout:   cfg.Scheduler.PollTimeout,
		WriteTimeout:  cfg.Scheduler.WriteTimeout,
		ShutdownGrace: cfg.Scheduler.ShutdownGrace,
	}, sink, jobs, scheduler.WithRecorder(rec))
	if err != nil {
		return err
	}

	if cfg.Once {
		logger.Info().Int("sources", len(jobs)).Msg("Polling every source once")
		return sched.RunOnce(ctx)
	}

	return sched.Run(ctx)
}

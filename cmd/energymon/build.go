package main

import (
	"net/http"

	"codeberg.org/mutker/energymon/internal/config"
	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/influx"
	"codeberg.org/mutker/energymon/internal/logger"
	"codeberg.org/mutker/energymon/internal/modbus"
	"codeberg.org/mutker/energymon/internal/portal"
	"codeberg.org/mutker/energymon/internal/scheduler"
	"codeberg.org/mutker/energymon/internal/source"
	"codeberg.org/mutker/energymon/internal/store"
	"codeberg.org/mutker/energymon/internal/telemetry"
)

func buildSink(cfg *config.Config) (telemetry.Sink, error) {
	if cfg.DryRun {
		logger.Info().Msg("Dry run: points are logged, not stored")
		return telemetry.NewLogSink(), nil
	}

	var sinks []telemetry.Sink

	if cfg.Influx.Enabled {
		s, err := influx.New(influx.Config{
			URL:     cfg.Influx.URL,
			Token:   cfg.Influx.Token,
			Org:     cfg.Influx.Org,
			Bucket:  cfg.Influx.Bucket,
			Timeout: cfg.Scheduler.WriteTimeout,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	if cfg.Store.Enabled {
		s, err := store.Open(store.Config{
			DBPath:    cfg.Store.Path,
			BackupDir: cfg.Store.BackupDir,
			Enabled:   true,
		}, logger.Default())
		if err != nil {
			for _, opened := range sinks {
				_ = opened.Close()
			}
			return nil, err
		}
		sinks = append(sinks, s)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return telemetry.NewMultiSink(sinks...), nil
}

// buildJobs constructs every enabled source. The returned func releases
// resources held by sources, such as the serial port.
func buildJobs(cfg *config.Config) ([]scheduler.Job, func(), error) {
	var (
		jobs    []scheduler.Job
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	client := &http.Client{Timeout: cfg.Scheduler.PollTimeout}
	policy := source.RetryPolicy{
		Attempts: cfg.Retry.Attempts,
		Initial:  cfg.Retry.Initial,
		Max:      cfg.Retry.Max,
	}
	addJob := func(src source.Source, job scheduler.Job) {
		job.Source = source.Retrying(src, policy)
		jobs = append(jobs, job)
		logger.Info().
			Str("source", src.Name()).
			Dur("cadence", job.Cadence).
			Msg("Source configured")
	}

	if cc := cfg.Carbon; cc.Enabled {
		for _, zone := range cc.Zones {
			src, err := source.NewCarbonIntensity(source.CarbonIntensityConfig{
				URL:    cc.URL,
				Token:  cc.Token,
				Zone:   zone,
				Client: client,
			})
			if err != nil {
				return nil, nil, err
			}
			addJob(src, scheduler.Job{Cadence: cc.Cadence})
		}
	}

	if cm := cfg.CloudMeter; cm.Enabled {
		for _, d := range cm.Devices {
			src, err := source.NewCloudMeter(source.CloudMeterConfig{
				URL:      cm.URL,
				Token:    cm.Token,
				DeviceID: d.ID,
				Location: d.Location,
				Client:   client,
			})
			if err != nil {
				return nil, nil, err
			}
			addJob(src, scheduler.Job{Cadence: cm.Cadence})
		}
	}

	if inv := cfg.Inverter; inv.Enabled {
		session, err := portal.New(portal.Config{
			BaseURL:  inv.URL,
			Username: inv.Username,
			Password: inv.Password,
			Client:   client,
		})
		if err != nil {
			return nil, nil, err
		}
		src, err := source.NewPortalInverter(source.PortalInverterConfig{
			Session:  session,
			Location: inv.Location,
		})
		if err != nil {
			return nil, nil, err
		}
		addJob(src, scheduler.Job{Cadence: inv.Cadence})
	}

	if m := cfg.Modbus; m.Enabled {
		src, closeBus, err := buildModbusMeter(m)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, closeBus)
		addJob(src, scheduler.Job{Cadence: m.Cadence})
	}

	return jobs, closeAll, nil
}

func buildModbusMeter(m config.ModbusConfig) (source.Source, func(), error) {
	regs := modbus.DefaultRegisterMap()
	if m.RegisterMap != "" {
		loaded, err := modbus.LoadRegisterMap(m.RegisterMap)
		if err != nil {
			return nil, nil, err
		}
		regs = loaded
	}

	plan, err := modbus.BuildPlan(regs, modbus.DefaultPassThrough)
	if err != nil {
		return nil, nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
	}

	bus, err := modbus.OpenRTU(modbus.SerialConfig{
		Port:     m.Port,
		BaudRate: m.BaudRate,
		DataBits: m.DataBits,
		Parity:   m.Parity,
		StopBits: m.StopBits,
		Timeout:  m.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	closeBus := func() {
		if err := bus.Close(); err != nil {
			logger.WarnWithCode(err).Str("port", m.Port).Msg("Failed to close Modbus port")
		}
	}

	src, err := source.NewModbusMeter(source.ModbusMeterConfig{
		Bus:      bus,
		Slave:    byte(m.Slave),
		Plan:     plan,
		Location: m.Location,
	})
	if err != nil {
		closeBus()
		return nil, nil, err
	}

	logger.Debug().
		Int("slave", m.Slave).
		Int("registers", len(plan.Registers())).
		Int("derivations", len(plan.Derivations())).
		Msg("Modbus register plan built")

	return src, closeBus, nil
}

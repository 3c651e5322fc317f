package source

import (
	"context"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
	"codeberg.org/mutker/energymon/internal/modbus"
	"codeberg.org/mutker/energymon/internal/telemetry"
)

type ModbusMeterConfig struct {
	Bus      *modbus.Bus
	Slave    byte
	Plan     *modbus.Plan
	Location string
	Clock    Clock
}

// ModbusMeter polls a power meter on a shared RTU bus. All registers of a
// cycle are read inside one bus transaction before any derivation runs.
type ModbusMeter struct {
	cfg ModbusMeterConfig
}

func NewModbusMeter(cfg ModbusMeterConfig) (*ModbusMeter, error) {
	if cfg.Bus == nil || cfg.Plan == nil || cfg.Location == "" {
		return nil, errors.New().WithData(ErrInvalidSource, struct {
			Source string
			Reason string
		}{"modbus", "bus, plan and location are required"})
	}

	for _, w := range cfg.Plan.Warnings() {
		logger.Warn().Str("location", cfg.Location).Msg(w)
	}

	return &ModbusMeter{cfg: cfg}, nil
}

func (m *ModbusMeter) Name() string {
	return "modbus/" + m.cfg.Location
}

// Collect returns the derivable points of this cycle. Registers that fail
// to decode drop only the points depending on them; the cycle fails as a
// whole only when nothing could be read.
func (m *ModbusMeter) Collect(ctx context.Context) ([]telemetry.Point, error) {
	errFactory := errors.New()

	registers := m.cfg.Plan.Registers()
	readings := make(map[string]modbus.Reading, len(registers))
	addresses := make(map[string]uint16, len(registers))
	for _, reg := range registers {
		addresses[reg.Key] = reg.Address
	}

	var firstErr error
	failed := 0
	err := m.cfg.Bus.Transaction(ctx, m.cfg.Slave, func(r modbus.RegisterReader) error {
		for _, reg := range registers {
			if err := ctx.Err(); err != nil {
				return err
			}

			v, err := reg.Read(r)
			readings[reg.Key] = modbus.Reading{Value: v, Err: err}
			if err != nil {
				failed++
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			logger.Debug().
				Str("source", m.Name()).
				Str("key", reg.Key).
				Uint16("address", reg.Address).
				Float64("value", v).
				Msg("Register read")
		}
		return nil
	})
	if err != nil {
		return nil, errFactory.Wrap(ErrMeter, err)
	}
	if len(registers) > 0 && failed == len(registers) {
		return nil, errFactory.Wrap(ErrMeter, firstErr)
	}

	points, problems := m.cfg.Plan.Evaluate(readings, telemetry.Tags{"location": m.cfg.Location}, m.cfg.Clock.now())
	for _, p := range problems {
		ev := logger.WarnWithCode(p).Str("source", m.Name())
		var derr *modbus.DerivationError
		if errors.As(p, &derr) {
			ev = ev.Str("key", derr.Key).
				Uint16("address", addresses[derr.Key]).
				Str("derivation", derr.Derivation.Kind.String())
		}
		ev.Msg("Dropped derived measurement")
	}

	return points, nil
}

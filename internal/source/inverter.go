package source

import (
	"context"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/telemetry"
)

const kiloToUnit = 1000.0

// PowerStatus is the inverter plant status reported by the portal.
type PowerStatus struct {
	CurrentPowerKW float64
	EnergyKWh      float64
}

// PortalSession is an authenticated session with an inverter portal.
type PortalSession interface {
	PowerStatus(ctx context.Context) (PowerStatus, error)
}

type PortalInverterConfig struct {
	Session  PortalSession
	Location string
	Clock    Clock
}

// PortalInverter reports a solar inverter's output in W and Wh.
type PortalInverter struct {
	cfg PortalInverterConfig
}

func NewPortalInverter(cfg PortalInverterConfig) (*PortalInverter, error) {
	if cfg.Session == nil || cfg.Location == "" {
		return nil, errors.New().WithData(ErrInvalidSource, struct {
			Source string
			Reason string
		}{"portal_inverter", "session and location are required"})
	}

	return &PortalInverter{cfg: cfg}, nil
}

func (i *PortalInverter) Name() string {
	return "portal_inverter/" + i.cfg.Location
}

// Collect converts the portal status to points. Any session failure
// (login, parsing, transport) is returned as ErrPortal.
func (i *PortalInverter) Collect(ctx context.Context) ([]telemetry.Point, error) {
	errFactory := errors.New()

	status, err := i.cfg.Session.PowerStatus(ctx)
	if err != nil {
		return nil, errFactory.Wrap(ErrPortal, err)
	}

	ts := i.cfg.Clock.now()
	tags := telemetry.Tags{"location": i.cfg.Location}

	power, err := telemetry.NewValuePoint(MeasurementActivePower, tags, status.CurrentPowerKW*kiloToUnit, ts)
	if err != nil {
		return nil, errFactory.Wrap(ErrDecode, err)
	}
	energy, err := telemetry.NewValuePoint(MeasurementActiveEnergy, tags, status.EnergyKWh*kiloToUnit, ts)
	if err != nil {
		return nil, errFactory.Wrap(ErrDecode, err)
	}

	return []telemetry.Point{power, energy}, nil
}

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/telemetry"
)

const (
	MeasurementVoltage      = "voltage"
	MeasurementActivePower  = "active_power"
	MeasurementPowerFactor  = "power_factor"
	MeasurementActiveEnergy = "active_energy"
)

type CloudMeterConfig struct {
	URL      string
	Token    string
	DeviceID string
	Location string
	Client   *http.Client
	Clock    Clock
}

// CloudMeter reads a cloud-connected three-phase energy meter. Each phase
// object in the response yields voltage, active power, power factor and
// active energy points tagged L1, L2, ... in response order.
type CloudMeter struct {
	cfg    CloudMeterConfig
	client *http.Client
}

type emeter struct {
	Voltage *float64 `json:"voltage"`
	Power   *float64 `json:"power"`
	PF      *float64 `json:"pf"`
	Total   *float64 `json:"total"`
}

type cloudMeterResponse struct {
	Data *struct {
		DeviceStatus *struct {
			Emeters []emeter `json:"emeters"`
		} `json:"device_status"`
	} `json:"data"`
}

func NewCloudMeter(cfg CloudMeterConfig) (*CloudMeter, error) {
	if cfg.URL == "" || cfg.DeviceID == "" || cfg.Location == "" {
		return nil, errors.New().WithData(ErrInvalidSource, struct {
			Source string
			Reason string
		}{"cloud_meter", "url, device id and location are required"})
	}

	return &CloudMeter{cfg: cfg, client: defaultClient(cfg.Client)}, nil
}

func (m *CloudMeter) Name() string {
	return "cloud_meter/" + m.cfg.Location
}

func (m *CloudMeter) Collect(ctx context.Context) ([]telemetry.Point, error) {
	errFactory := errors.New()

	form := url.Values{}
	form.Set("auth_key", m.cfg.Token)
	form.Set("id", m.cfg.DeviceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidSource, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body cloudMeterResponse
	if err := doJSON(m.client, req, &body); err != nil {
		return nil, err
	}

	if body.Data == nil || body.Data.DeviceStatus == nil {
		return nil, missingField(m.Name(), "data.device_status")
	}
	emeters := body.Data.DeviceStatus.Emeters
	if emeters == nil {
		return nil, missingField(m.Name(), "data.device_status.emeters")
	}
	if len(emeters) == 0 {
		return nil, nil
	}

	ts := m.cfg.Clock.now()
	points := make([]telemetry.Point, 0, 4*len(emeters))
	for i, em := range emeters {
		phase := fmt.Sprintf("L%d", i+1)
		values := []struct {
			measurement string
			field       string
			value       *float64
		}{
			{MeasurementVoltage, "voltage", em.Voltage},
			{MeasurementActivePower, "power", em.Power},
			{MeasurementPowerFactor, "pf", em.PF},
			{MeasurementActiveEnergy, "total", em.Total},
		}

		tags := telemetry.Tags{"location": m.cfg.Location, "phase": phase}
		for _, v := range values {
			if v.value == nil {
				return nil, missingField(m.Name(), fmt.Sprintf("emeters[%d].%s", i, v.field))
			}
			p, err := telemetry.NewValuePoint(v.measurement, tags, *v.value, ts)
			if err != nil {
				return nil, errFactory.Wrap(ErrDecode, err)
			}
			points = append(points, p)
		}
	}

	return points, nil
}

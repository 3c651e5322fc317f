package source

import (
	"context"
	"net/http"
	"net/url"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/telemetry"
)

const (
	MeasurementCarbonIntensity      = "carbon_intensity"
	MeasurementFossilFuelPercentage = "fossil_fuel_percentage"

	carbonTokenHeader = "auth-token"
)

type CarbonIntensityConfig struct {
	URL    string
	Token  string
	Zone   string
	Client *http.Client
	Clock  Clock
}

// CarbonIntensity reads the grid carbon intensity of one zone.
type CarbonIntensity struct {
	cfg    CarbonIntensityConfig
	client *http.Client
}

type carbonResponse struct {
	Data *struct {
		CarbonIntensity      *float64 `json:"carbonIntensity"`
		FossilFuelPercentage *float64 `json:"fossilFuelPercentage"`
	} `json:"data"`
}

func NewCarbonIntensity(cfg CarbonIntensityConfig) (*CarbonIntensity, error) {
	if cfg.URL == "" || cfg.Zone == "" {
		return nil, errors.New().WithData(ErrInvalidSource, struct {
			Source string
			Reason string
		}{MeasurementCarbonIntensity, "url and zone are required"})
	}

	return &CarbonIntensity{cfg: cfg, client: defaultClient(cfg.Client)}, nil
}

func (c *CarbonIntensity) Name() string {
	return MeasurementCarbonIntensity + "/" + c.cfg.Zone
}

func (c *CarbonIntensity) Collect(ctx context.Context) ([]telemetry.Point, error) {
	errFactory := errors.New()

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidSource, err)
	}
	q := u.Query()
	q.Set("countryCode", c.cfg.Zone)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidSource, err)
	}
	req.Header.Set(carbonTokenHeader, c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	var body carbonResponse
	if err := doJSON(c.client, req, &body); err != nil {
		return nil, err
	}

	switch {
	case body.Data == nil:
		return nil, missingField(c.Name(), "data")
	case body.Data.CarbonIntensity == nil:
		return nil, missingField(c.Name(), "data.carbonIntensity")
	case body.Data.FossilFuelPercentage == nil:
		return nil, missingField(c.Name(), "data.fossilFuelPercentage")
	}

	ts := c.cfg.Clock.now()
	tags := telemetry.Tags{"zone_code": c.cfg.Zone}

	intensity, err := telemetry.NewValuePoint(MeasurementCarbonIntensity, tags, *body.Data.CarbonIntensity, ts)
	if err != nil {
		return nil, errFactory.Wrap(ErrDecode, err)
	}
	fossil, err := telemetry.NewValuePoint(MeasurementFossilFuelPercentage, tags, *body.Data.FossilFuelPercentage, ts)
	if err != nil {
		return nil, errFactory.Wrap(ErrDecode, err)
	}

	return []telemetry.Point{intensity, fossil}, nil
}

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/energymon/internal/config"
	"codeberg.org/mutker/energymon/internal/influx"
	"codeberg.org/mutker/energymon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{
			Tick:          time.Second,
			PollTimeout:   time.Second,
			WriteTimeout:  time.Second,
			ShutdownGrace: time.Second,
		},
		Retry: config.RetryConfig{
			Attempts: 3,
			Initial:  time.Millisecond,
			Max:      2 * time.Millisecond,
		},
	}
}

func TestBuildSinkDryRun(t *testing.T) {
	cfg := baseConfig()
	cfg.DryRun = true
	cfg.Influx = config.InfluxConfig{Enabled: true, URL: "http://localhost:8086", Org: "home", Bucket: "energy"}

	sink, err := buildSink(cfg)
	require.NoError(t, err)
	defer sink.Close()

	assert.IsType(t, &telemetry.LogSink{}, sink, "dry run ignores configured sinks")
}

func TestBuildSinkSelection(t *testing.T) {
	cfg := baseConfig()
	cfg.Influx = config.InfluxConfig{Enabled: true, URL: "http://localhost:8086", Org: "home", Bucket: "energy"}

	sink, err := buildSink(cfg)
	require.NoError(t, err)
	assert.IsType(t, &influx.Sink{}, sink, "a single sink is used directly")
	require.NoError(t, sink.Close())

	cfg.Store = config.StoreConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "points.db")}
	sink, err = buildSink(cfg)
	require.NoError(t, err)
	defer sink.Close()
	assert.IsType(t, &telemetry.MultiSink{}, sink)
}

func TestBuildJobsOnePerZoneAndDevice(t *testing.T) {
	cfg := baseConfig()
	cfg.Carbon = config.CarbonConfig{
		Enabled: true, URL: "http://carbon.example/v1/latest", Token: "t",
		Zones: []string{"DE", "FR"}, Cadence: time.Hour,
	}
	cfg.CloudMeter = config.CloudMeterConfig{
		Enabled: true, URL: "http://cloud.example/status", Token: "t",
		Devices: []config.Device{{ID: "a", Location: "Kitchen"}, {ID: "b", Location: "Garage"}},
		Cadence: time.Second,
	}
	cfg.Inverter = config.InverterConfig{
		Enabled: true, URL: "http://portal.example", Username: "u", Password: "p",
		Location: "Roof", Cadence: 5 * time.Minute,
	}

	jobs, closeAll, err := buildJobs(cfg)
	require.NoError(t, err)
	defer closeAll()

	cadences := map[string]time.Duration{}
	for _, j := range jobs {
		cadences[j.Source.Name()] = j.Cadence
	}
	assert.Equal(t, map[string]time.Duration{
		"carbon_intensity/DE":  time.Hour,
		"carbon_intensity/FR":  time.Hour,
		"cloud_meter/Kitchen":  time.Second,
		"cloud_meter/Garage":   time.Second,
		"portal_inverter/Roof": 5 * time.Minute,
	}, cadences)
}

func TestBuildJobsRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"carbonIntensity":312,"fossilFuelPercentage":44.7}}`))
	}))
	defer srv.Close()

	cfg := baseConfig()
	cfg.Carbon = config.CarbonConfig{
		Enabled: true, URL: srv.URL, Token: "t", Zones: []string{"DE"}, Cadence: time.Hour,
	}

	jobs, closeAll, err := buildJobs(cfg)
	require.NoError(t, err)
	defer closeAll()
	require.Len(t, jobs, 1)

	points, err := jobs[0].Source.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, points, 2)
	assert.Equal(t, int32(2), hits.Load())
}

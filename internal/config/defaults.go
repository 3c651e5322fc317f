package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = LogLevelInfo
	envPrefix       = "ENERGYMON"
	configName      = "energymon"
)

var defaults = map[string]interface{}{
	"log_level": string(DefaultLogLevel),
	"pid_file":  filepath.Join(os.TempDir(), "energymon.pid"),

	"log_file.path":         "",
	"log_file.max_size_mb":  10,
	"log_file.max_backups":  5,
	"log_file.max_age_days": 30,

	"scheduler.tick":           time.Second,
	"scheduler.poll_timeout":   10 * time.Second,
	"scheduler.write_timeout":  10 * time.Second,
	"scheduler.shutdown_grace": 5 * time.Second,

	"retry.attempts": 3,
	"retry.initial":  200 * time.Millisecond,
	"retry.max":      2 * time.Second,

	"carbon.enabled": false,
	"carbon.url":     "https://api.co2signal.com/v1/latest",
	"carbon.token":   "",
	"carbon.zones":   []string{},
	"carbon.cadence": time.Hour,

	"cloud_meter.enabled": false,
	"cloud_meter.url":     "",
	"cloud_meter.token":   "",
	"cloud_meter.cadence": time.Second,

	"inverter.enabled":  false,
	"inverter.url":      "",
	"inverter.username": "",
	"inverter.password": "",
	"inverter.location": "",
	"inverter.cadence":  5 * time.Minute,

	"modbus.enabled":      false,
	"modbus.port":         "/dev/ttyUSB0",
	"modbus.baud_rate":    19200,
	"modbus.data_bits":    8,
	"modbus.parity":       "E",
	"modbus.stop_bits":    1,
	"modbus.slave":        5,
	"modbus.timeout":      time.Second,
	"modbus.location":     "Laboratory",
	"modbus.cadence":      time.Second,
	"modbus.register_map": "",

	"influx.enabled": false,
	"influx.url":     "http://localhost:8086",
	"influx.token":   "",
	"influx.org":     "",
	"influx.bucket":  "",

	"store.enabled":    false,
	"store.path":       "/var/lib/energymon/points.db",
	"store.backup_dir": "",

	"metrics.enabled": false,
	"metrics.listen":  ":9464",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

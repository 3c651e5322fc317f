package telemetry

import "codeberg.org/mutker/energymon/internal/errors"

const (
	ErrEmptyMeasurement = errors.ErrorCode("telemetry_empty_measurement")
	ErrNoFields         = errors.ErrorCode("telemetry_no_fields")
	ErrInvalidField     = errors.ErrorCode("telemetry_invalid_field")
	ErrSinkWrite        = errors.ErrSinkWrite
)

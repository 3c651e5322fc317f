package modbus

import "codeberg.org/mutker/energymon/internal/errors"

const (
	// Configuration errors
	ErrInvalidRegisterMap = errors.ErrorCode("modbus_invalid_register_map")
	ErrLoadRegisterMap    = errors.ErrorCode("modbus_load_register_map_failed")

	// Decode errors
	ErrUnknownKind    = errors.ErrorCode("modbus_unknown_kind")
	ErrShortResponse  = errors.ErrorCode("modbus_short_response")
	ErrSignOutOfRange = errors.ErrorCode("modbus_sign_out_of_range")
	ErrMissingReading = errors.ErrorCode("modbus_missing_reading")

	// Transport errors
	ErrRead     = errors.ErrorCode("modbus_read_failed")
	ErrOpenPort = errors.ErrorCode("modbus_open_port_failed")
	ErrBusBusy  = errors.ErrorCode("modbus_bus_wait_aborted")
)

func init() {
	errors.MarkRetryable(ErrRead)
}

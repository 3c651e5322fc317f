package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
	ErrCanceled        ErrorCode = "operation_canceled"

	// Collection errors
	ErrTransport    ErrorCode = "transport_failed"
	ErrBadStatus    ErrorCode = "bad_status"
	ErrDecode       ErrorCode = "decode_failed"
	ErrSinkWrite    ErrorCode = "sink_write_failed"
	ErrInvalidPoint ErrorCode = "invalid_point"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrUnavailable:     "Service unavailable",
	ErrInvalidConfig:   "Invalid configuration",
	ErrMissingConfig:   "Missing configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrReadConfig:      "Failed to read configuration",
	ErrInvalidInterval: "Invalid interval value",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrOperationFailed: "Operation failed",
	ErrTimeout:         "Operation timed out",
	ErrCanceled:        "Operation canceled",
	ErrTransport:       "Transport failure",
	ErrBadStatus:       "Unexpected response status",
	ErrDecode:          "Failed to decode response",
	ErrSinkWrite:       "Failed to write batch",
	ErrInvalidPoint:    "Invalid point",
}

// retryable lists the codes worth another attempt within the same cycle.
var retryable = map[ErrorCode]bool{
	ErrTransport:   true,
	ErrBadStatus:   true,
	ErrTimeout:     true,
	ErrUnavailable: true,
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}

// MarkRetryable registers an additional code as retryable. Packages call it
// from init for their own transport-level codes.
func MarkRetryable(codes ...ErrorCode) {
	for _, code := range codes {
		retryable[code] = true
	}
}

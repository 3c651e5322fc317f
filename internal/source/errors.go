package source

import "codeberg.org/mutker/energymon/internal/errors"

const (
	ErrTransport     = errors.ErrTransport
	ErrBadStatus     = errors.ErrBadStatus
	ErrRejected      = errors.ErrorCode("source_request_rejected")
	ErrDecode        = errors.ErrDecode
	ErrMissingField  = errors.ErrorCode("source_missing_field")
	ErrPortal        = errors.ErrorCode("source_portal_failed")
	ErrMeter         = errors.ErrorCode("source_meter_unreachable")
	ErrInvalidSource = errors.ErrorCode("source_invalid_config")
)

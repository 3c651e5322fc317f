package scheduler

import "codeberg.org/mutker/energymon/internal/errors"

const (
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrInvalidJob      = errors.ErrorCode("scheduler_invalid_job")
	ErrDuplicateSource = errors.ErrorCode("scheduler_duplicate_source")
	ErrPollPanic       = errors.ErrorCode("scheduler_poll_panic")
	ErrSinkWrite       = errors.ErrSinkWrite
)

package core

import (
	"errors"
)

var (
	ErrDeviceLost        = errors.New("device lost")
	ErrFenceTimeout      = errors.New("fence wait timed out")
	ErrSubmissionFailed  = errors.New("queue submission failed")
	ErrQueueNotAvailable = errors.New("queue family not available on this device")
	ErrUnknown           = errors.New("unknown")
)

package gfx

import "github.com/cockroachdb/errors"

var (
	ErrDebugLayerTooLate = errors.New("debug layer must be enabled before the first adapter enumeration")
	ErrNoAdapters        = errors.New("no graphics adapters found")
	ErrListNotClosed     = errors.New("command list is still recording")
	ErrListClosed        = errors.New("command list is closed")
	ErrWaitTimeout       = errors.New("wait timed out")
	ErrReleased          = errors.New("object has been released")
	ErrNotMappable       = errors.New("resource is not CPU visible")
	ErrInvalidState      = errors.New("resource state mismatch")
)

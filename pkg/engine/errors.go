package engine

import "errors"

var (
	// ErrEngineClosed is returned when operations are performed on a closed engine
	ErrEngineClosed = errors.New("engine is closed")
	// ErrKeyNotFound is returned when a key was never written or is deleted
	ErrKeyNotFound = errors.New("key not found")
	// ErrReservedValue is returned when a value equals the on-disk deletion marker
	ErrReservedValue = errors.New("value is reserved for deletion markers")
	// ErrInvalidRange is returned when a scan's lower bound exceeds its upper bound
	ErrInvalidRange = errors.New("invalid key range")
)

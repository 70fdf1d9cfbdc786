package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device name does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose name is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty, too long or
	// contains the signal key separator.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidDeviceType is returned when a device type is not recognised.
	ErrInvalidDeviceType = errors.New("device: invalid type")

	// ErrInvalidTag is returned when a tag fails identity or field checks.
	ErrInvalidTag = errors.New("device: invalid tag")

	// ErrImportNotSupported is returned when discovery import is requested
	// for a protocol whose tags are only entered by hand.
	ErrImportNotSupported = errors.New("device: import not supported for device type")
)

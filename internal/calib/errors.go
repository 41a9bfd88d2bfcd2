package calib

import "errors"

var (
	// ErrInconsistentFlags is returned when FirstID and LastID disagree on the
	// MC or AdHoc flag.
	ErrInconsistentFlags = errors.New("inconsistent flags for FirstID/LastID")
	// ErrEmptyIdentifier is returned for a blank calibration ID.
	ErrEmptyIdentifier = errors.New("calibration ID is empty")
	// ErrInvalidIdentifier is returned for a calibration ID that is not a
	// single visible path element.
	ErrInvalidIdentifier = errors.New("invalid calibration ID")
	// ErrInvalidRange is returned when the bounds of an insertion are missing
	// or inverted.
	ErrInvalidRange = errors.New("invalid range")
	// ErrConflictingRange is returned when a strict range overlaps an existing
	// range with different bounds.
	ErrConflictingRange = errors.New("range conflicts with existing entry")
	// ErrBrokenLink is returned when a current link points to nothing.
	ErrBrokenLink = errors.New("broken link")
	// ErrUnreadableFile is returned when an existing payload cannot be read or
	// decoded.
	ErrUnreadableFile = errors.New("cannot load calibration data")
)

package manifest

import "errors"

var (
	// ErrIncompatibleVersion is returned when the manifest version is not supported.
	ErrIncompatibleVersion = errors.New("manifest: incompatible manifest version")

	// ErrNotFound is returned when nothing has been published yet.
	ErrNotFound = errors.New("manifest: not found")

	// ErrChecksumMismatch is returned when a blob does not match its manifest.
	ErrChecksumMismatch = errors.New("manifest: checksum mismatch")
)

package domain

import "errors"

// Filesystem errors
var (
	// ErrNotFound indicates the requested path does not exist
	ErrNotFound = errors.New("path not found")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyExists indicates the destination already exists
	ErrAlreadyExists = errors.New("path already exists")

	// ErrNotRegular indicates a candidate is not a regular file
	ErrNotRegular = errors.New("not a regular file")
)

// Enumeration errors
var (
	// ErrEndOfSource signals normal exhaustion of an input source
	ErrEndOfSource = errors.New("end of source")

	// ErrZeroLength indicates a zero-length candidate file
	ErrZeroLength = errors.New("zero-length file")
)

// Classification errors
var (
	// ErrUnclassifiable indicates a candidate file could not be
	// classified, usually because its metadata was unreadable
	ErrUnclassifiable = errors.New("file could not be classified")

	// ErrFacetUnresolved indicates a template references an unknown facet
	ErrFacetUnresolved = errors.New("unresolved facet in template")
)

// Mapfile errors
var (
	// ErrDatasetConflict indicates one base name mapped to two datasets.
	// This is a fatal configuration error detected at mapfile load time.
	ErrDatasetConflict = errors.New("base name mapped to multiple datasets")

	// ErrMapfileInvalid indicates a malformed mapfile line
	ErrMapfileInvalid = errors.New("invalid mapfile")
)

// Config errors
var (
	// ErrConfigNotFound indicates no config file could be located
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates the config file is malformed
	ErrConfigInvalid = errors.New("invalid config")

	// ErrProjectNotFound indicates the named project is not configured
	ErrProjectNotFound = errors.New("project not found")

	// ErrFormatNotFound indicates an unknown directory format name
	ErrFormatNotFound = errors.New("directory format not found")
)

package domain

import (
	"path/filepath"
	"time"
)

// FileRecord describes one candidate file yielded by an input source.
// Records are immutable once yielded and are never retained across
// iterations of the transfer loop.
type FileRecord struct {
	// Path is the resolved source path of the candidate
	Path string

	// Size in bytes at enumeration time
	Size int64

	// ModTime is the last modification time at enumeration time
	ModTime time.Time

	// Token is the identity token extracted from the file's internal
	// metadata (empty when the backing source does not read descriptors)
	Token string

	// Checksum is an externally supplied content checksum, hex encoded
	// (empty when the backing source does not carry one inline)
	Checksum string
}

// Base returns the base name of the record's path. Archive placement is
// keyed by base name, so two records with the same Base compete for the
// same slot family under a destination root.
func (r FileRecord) Base() string {
	return filepath.Base(r.Path)
}

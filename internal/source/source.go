// Package source produces the stream of candidate files for one
// archival run.
//
// Three variants exist: a recursive directory scan, a line-list file
// and a mapfile. All yield domain.FileRecord values one at a time and
// return domain.ErrEndOfSource on exhaustion. Per-file problems are
// logged with a sequential record counter and skipped; they never
// abort enumeration.
package source

import (
	"context"

	"ncvault/internal/domain"
)

// Source yields candidate file records
type Source interface {
	// Next returns the next record, or domain.ErrEndOfSource once the
	// sequence is exhausted. Sequences are finite, single-pass and
	// non-restartable.
	Next(ctx context.Context) (domain.FileRecord, error)

	// Close releases resources held by the source
	Close() error
}

// TokenReader extracts the identity token from a file's internal
// metadata
type TokenReader interface {
	ReadToken(path string) (string, error)
}

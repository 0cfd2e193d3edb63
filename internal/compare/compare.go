// Package compare decides whether an archive occupant holds the same
// content as a candidate file.
package compare

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
)

// Options configures the comparator
type Options struct {
	// Strict compares file contents byte for byte when sizes match.
	// When off, matching size alone counts as equal.
	Strict bool

	// BufferSize: size of buffer for streaming reads
	// Default: 32KB
	BufferSize int
}

// DefaultOptions returns the recommended default options
func DefaultOptions() Options {
	return Options{
		BufferSize: 32 * 1024, // 32KB
	}
}

// Comparator reports whether the occupant of an archive slot equals a
// candidate file
type Comparator interface {
	// Equal compares the candidate (whose size is already known from
	// its stat) against the occupant path
	Equal(ctx context.Context, candidatePath, occupantPath string, size int64) (bool, error)
}

// DefaultComparator implements Comparator with streaming support
type DefaultComparator struct {
	opts Options
}

// NewComparator creates a new comparator with the given options
func NewComparator(opts Options) *DefaultComparator {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	return &DefaultComparator{opts: opts}
}

// NewDefaultComparator creates a size-only comparator
func NewDefaultComparator() *DefaultComparator {
	return NewComparator(DefaultOptions())
}

// Equal implements the Comparator interface
func (c *DefaultComparator) Equal(ctx context.Context, candidatePath, occupantPath string, size int64) (bool, error) {
	occInfo, err := os.Stat(occupantPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", occupantPath, err)
	}
	if !occInfo.Mode().IsRegular() {
		return false, nil
	}
	if occInfo.Size() != size {
		return false, nil
	}

	candInfo, err := os.Stat(candidatePath)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", candidatePath, err)
	}
	// the same inode needs no content check
	if os.SameFile(candInfo, occInfo) {
		return true, nil
	}

	if !c.opts.Strict {
		return true, nil
	}
	return c.contentEqual(ctx, candidatePath, occupantPath)
}

// contentEqual streams both files and compares chunk by chunk
func (c *DefaultComparator) contentEqual(ctx context.Context, pathA, pathB string) (bool, error) {
	fa, err := os.Open(pathA)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", pathA, err)
	}
	defer fa.Close()

	fb, err := os.Open(pathB)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", pathB, err)
	}
	defer fb.Close()

	bufA := make([]byte, c.opts.BufferSize)
	bufB := make([]byte, c.opts.BufferSize)

	for {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		na, errA := readChunk(fa, bufA)
		if errA != nil && errA != io.EOF {
			return false, fmt.Errorf("read %s: %w", pathA, errA)
		}
		nb, errB := readChunk(fb, bufB)
		if errB != nil && errB != io.EOF {
			return false, fmt.Errorf("read %s: %w", pathB, errB)
		}

		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if errA == io.EOF || errB == io.EOF {
			return errA == errB, nil
		}
	}
}

// readChunk fills buf as far as the stream allows, reporting io.EOF
// only once the stream is exhausted
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF {
		return n, io.EOF
	}
	return n, err
}

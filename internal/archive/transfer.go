package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"ncvault/internal/progress"
)

// tmpSuffix marks in-flight copies so an interrupted run leaves no
// file at its final name with partial content
const tmpSuffix = ".ncvault.tmp"

// Transferrer moves file content into the archive tree
type Transferrer interface {
	// EnsureDir creates the destination directory and any parents
	EnsureDir(dir string) error

	// Transfer copies or moves src to dest, preserving the source
	// modification time
	Transfer(ctx context.Context, src, dest string) error
}

// DefaultTransferrer implements Transferrer with atomic writes
type DefaultTransferrer struct {
	move     bool
	reporter progress.Reporter
}

// NewDefaultTransferrer creates a transferrer. With move set, sources
// are renamed away instead of copied.
func NewDefaultTransferrer(move bool, reporter progress.Reporter) *DefaultTransferrer {
	if reporter == nil {
		reporter = progress.NullReporter{}
	}
	return &DefaultTransferrer{move: move, reporter: reporter}
}

// EnsureDir implements the Transferrer interface
func (t *DefaultTransferrer) EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, mapError(err))
	}
	return nil
}

// Transfer implements the Transferrer interface
func (t *DefaultTransferrer) Transfer(ctx context.Context, src, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !t.move {
		return t.copyFile(ctx, src, dest)
	}

	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	// rename cannot cross filesystems; copy then remove covers that
	if err := t.copyFile(ctx, src, dest); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %s: %w", src, mapError(err))
	}
	return nil
}

// copyFile writes dest through a temp file and renames it into place
func (t *DefaultTransferrer) copyFile(ctx context.Context, src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, mapError(err))
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, mapError(err))
	}

	var reader io.Reader = progress.NewProgressReader(in, t.reporter)

	tempPath := dest + tmpSuffix
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", tempPath, mapError(err))
	}

	_, copyErr := io.Copy(out, reader)
	closeErr := out.Close()

	if copyErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("copy %s: %w", src, copyErr)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close %s: %w", tempPath, closeErr)
	}

	// the archive keeps the source's modification time
	if err := os.Chtimes(tempPath, time.Now(), info.ModTime()); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("chtimes %s: %w", tempPath, mapError(err))
	}

	// Atomic rename
	if err := os.Rename(tempPath, dest); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s: %w", tempPath, mapError(err))
	}

	return nil
}

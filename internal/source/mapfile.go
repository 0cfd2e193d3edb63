package source

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

	"ncvault/internal/domain"
	"ncvault/internal/logger"
	"ncvault/internal/manifest"
)

// MapSource yields the files named by a parsed mapfile. Size and
// modification time are re-read from the filesystem unless the source
// is told to trust the declared values.
type MapSource struct {
	lines     []manifest.Line
	idx       int
	filter    *regexp.Regexp
	trustSize bool
	seq       int
	log       logger.Logger
}

// NewMapSource creates a mapfile source. The filter applies to base
// names, the same as for the directory scan.
func NewMapSource(m *manifest.Mapfile, filter *regexp.Regexp, trustSize bool) *MapSource {
	return &MapSource{
		lines:     m.Lines,
		filter:    filter,
		trustSize: trustSize,
		log:       logger.Get(),
	}
}

// Next implements the Source interface
func (s *MapSource) Next(ctx context.Context) (domain.FileRecord, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.FileRecord{}, ctx.Err()
		default:
		}

		if s.idx >= len(s.lines) {
			return domain.FileRecord{}, domain.ErrEndOfSource
		}
		line := s.lines[s.idx]
		s.idx++

		if s.filter != nil && !s.filter.MatchString(filepath.Base(line.Path)) {
			continue
		}
		s.seq++

		rec := domain.FileRecord{
			Path:     line.Path,
			Size:     line.Size,
			ModTime:  line.ModTime,
			Checksum: line.Checksum,
		}
		if !s.trustSize {
			info, err := os.Stat(line.Path)
			if err != nil {
				s.log.Warn("skipping record", "seq", s.seq, "path", line.Path, "error", err)
				continue
			}
			rec.Size = info.Size()
			rec.ModTime = info.ModTime()
		}
		return rec, nil
	}
}

// Close implements the Source interface
func (s *MapSource) Close() error { return nil }

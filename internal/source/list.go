package source

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ncvault/internal/domain"
	"ncvault/internal/logger"
)

// ListSource reads candidate paths from a text file, one per line in
// the form path[|checksum]. Blank lines and #-prefixed lines are
// ignored. This is the only variant that reads identity tokens itself.
type ListSource struct {
	f          *os.File
	scanner    *bufio.Scanner
	path       string
	prefix     string
	ignoreZero bool
	tok        TokenReader
	seq        int
	log        logger.Logger
}

// NewListSource opens a line-list source. Relative entries are joined
// under prefix when one is given. A nil TokenReader disables
// descriptor reading.
func NewListSource(path, prefix string, ignoreZeroLength bool, tok TokenReader) (*ListSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open filelist %s: %w", path, err)
	}
	return &ListSource{
		f:          f,
		scanner:    bufio.NewScanner(f),
		path:       path,
		prefix:     prefix,
		ignoreZero: ignoreZeroLength,
		tok:        tok,
		log:        logger.Get(),
	}, nil
}

// Next implements the Source interface
func (s *ListSource) Next(ctx context.Context) (domain.FileRecord, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.FileRecord{}, ctx.Err()
		default:
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return domain.FileRecord{}, fmt.Errorf("read filelist %s: %w", s.path, err)
			}
			return domain.FileRecord{}, domain.ErrEndOfSource
		}

		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		s.seq++

		pathPart, checksum, _ := strings.Cut(text, "|")
		candidate := strings.TrimSpace(pathPart)
		checksum = strings.TrimSpace(checksum)
		if s.prefix != "" && !filepath.IsAbs(candidate) {
			candidate = filepath.Join(s.prefix, candidate)
		}

		info, err := os.Stat(candidate)
		if err != nil {
			s.log.Warn("skipping record", "seq", s.seq, "path", candidate, "error", err)
			continue
		}
		if !info.Mode().IsRegular() {
			s.log.Warn("skipping record", "seq", s.seq, "path", candidate, "error", domain.ErrNotRegular)
			continue
		}

		if info.Size() == 0 {
			if s.ignoreZero {
				s.log.Debug("ignoring zero-length file", "seq", s.seq, "path", candidate)
			} else {
				s.log.Warn("skipping record", "seq", s.seq, "path", candidate, "error", domain.ErrZeroLength)
			}
			continue
		}

		var token string
		if s.tok != nil {
			token, err = s.tok.ReadToken(candidate)
			if err != nil {
				s.log.Warn("skipping record", "seq", s.seq, "path", candidate, "error", err)
				continue
			}
		}

		return domain.FileRecord{
			Path:     candidate,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Token:    token,
			Checksum: checksum,
		}, nil
	}
}

// Close implements the Source interface
func (s *ListSource) Close() error { return s.f.Close() }

package source

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

	"ncvault/internal/domain"
	"ncvault/internal/logger"
)

// ScanSource walks one or more directory trees depth first, yielding
// regular files whose base name matches the filter. Symbolic links are
// followed; a visited set over canonical directory paths guards
// against link cycles.
type ScanSource struct {
	filter  *regexp.Regexp
	dirs    []string
	queue   []domain.FileRecord
	visited map[string]bool
	seq     int
	log     logger.Logger
}

// NewScanSource creates a directory-tree source over the given roots.
// A nil filter matches every base name.
func NewScanSource(roots []string, filter *regexp.Regexp) *ScanSource {
	s := &ScanSource{
		filter:  filter,
		visited: make(map[string]bool),
		log:     logger.Get(),
	}
	// stack order: reverse so the first root is walked first
	for i := len(roots) - 1; i >= 0; i-- {
		s.dirs = append(s.dirs, roots[i])
	}
	return s
}

// Next implements the Source interface
func (s *ScanSource) Next(ctx context.Context) (domain.FileRecord, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.FileRecord{}, ctx.Err()
		default:
		}

		if len(s.queue) > 0 {
			rec := s.queue[0]
			s.queue = s.queue[1:]
			return rec, nil
		}
		if len(s.dirs) == 0 {
			return domain.FileRecord{}, domain.ErrEndOfSource
		}

		dir := s.dirs[len(s.dirs)-1]
		s.dirs = s.dirs[:len(s.dirs)-1]
		s.walkDir(dir)
	}
}

// Close implements the Source interface
func (s *ScanSource) Close() error { return nil }

// walkDir lists one directory, queueing matching files and pushing
// subdirectories for later visits
func (s *ScanSource) walkDir(dir string) {
	canonical, err := filepath.EvalSymlinks(dir)
	if err != nil {
		s.log.Warn("skipping directory", "path", dir, "error", err)
		return
	}
	if s.visited[canonical] {
		s.log.Debug("directory already visited", "path", dir)
		return
	}
	s.visited[canonical] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Warn("skipping unreadable directory", "path", dir, "error", err)
		return
	}

	var subdirs []string
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())

		// Stat follows symlinks; broken links and irregular files are
		// silently skipped
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if info.IsDir() {
			subdirs = append(subdirs, full)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if s.filter != nil && !s.filter.MatchString(entry.Name()) {
			continue
		}

		s.seq++
		s.queue = append(s.queue, domain.FileRecord{
			Path:    full,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	// reverse push keeps subdirectories in listing order
	for i := len(subdirs) - 1; i >= 0; i-- {
		s.dirs = append(s.dirs, subdirs[i])
	}
}

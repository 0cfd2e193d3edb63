// Package manifest reads and writes the pipe-separated dataset
// manifest format:
//
//	datasetId | path | size | mod_time=<float>[ | checksum=<v> | checksum_type=MD5]
//
// The same format serves as the output manifest of a run and as the
// mapfile input source.
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ncvault/internal/domain"
)

// Line is one manifest record
type Line struct {
	DatasetID    string
	Path         string
	Size         int64
	ModTime      time.Time
	Checksum     string
	ChecksumType string
}

// FormatLine renders a Line in the pipe format. A checksum without an
// explicit type is labelled MD5.
func FormatLine(l Line) string {
	s := fmt.Sprintf("%s | %s | %d | mod_time=%.6f",
		l.DatasetID, l.Path, l.Size, epochSeconds(l.ModTime))
	if l.Checksum != "" {
		ctype := l.ChecksumType
		if ctype == "" {
			ctype = "MD5"
		}
		s += fmt.Sprintf(" | checksum=%s | checksum_type=%s", l.Checksum, ctype)
	}
	return s
}

// ParseLine parses one pipe-format record. Fields beyond the third are
// key=value pairs; unknown keys are ignored.
func ParseLine(s string) (Line, error) {
	parts := strings.Split(s, "|")
	if len(parts) < 3 {
		return Line{}, fmt.Errorf("%w: need at least dataset, path and size: %q", domain.ErrMapfileInvalid, s)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	size, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Line{}, fmt.Errorf("%w: bad size %q", domain.ErrMapfileInvalid, parts[2])
	}

	line := Line{DatasetID: parts[0], Path: parts[1], Size: size}
	for _, field := range parts[3:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Line{}, fmt.Errorf("%w: field %q is not key=value", domain.ErrMapfileInvalid, field)
		}
		switch key {
		case "mod_time":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Line{}, fmt.Errorf("%w: bad mod_time %q", domain.ErrMapfileInvalid, value)
			}
			line.ModTime = timeFromEpoch(f)
		case "checksum":
			line.Checksum = value
		case "checksum_type":
			line.ChecksumType = value
		}
	}
	return line, nil
}

// epochSeconds converts a time to fractional seconds since the epoch
func epochSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

// timeFromEpoch converts fractional epoch seconds to a time
func timeFromEpoch(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Writer appends manifest lines to a file, or to standard output when
// the path is "-"
type Writer struct {
	file *os.File
	buf  *bufio.Writer
}

// NewWriter opens the manifest for writing, truncating an existing
// file
func NewWriter(path string) (*Writer, error) {
	if path == "-" {
		return &Writer{buf: bufio.NewWriter(os.Stdout)}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create manifest %s: %w", path, err)
	}
	return &Writer{file: f, buf: bufio.NewWriter(f)}, nil
}

// Write appends one line
func (w *Writer) Write(l Line) error {
	if _, err := w.buf.WriteString(FormatLine(l) + "\n"); err != nil {
		return fmt.Errorf("write manifest line: %w", err)
	}
	return nil
}

// Close flushes buffered lines and closes the underlying file. Closing
// a stdout writer only flushes.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush manifest: %w", err)
	}
	if w.file == nil {
		return nil
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	return nil
}

// Mapfile is a parsed manifest used as an input source
type Mapfile struct {
	// Lines holds the records in file order
	Lines []Line

	// datasets maps each basename to its single dataset id
	datasets map[string]string
}

// LoadMapfile parses a manifest file. A basename mapped to two
// different dataset ids is a configuration error and fails the load
// immediately.
func LoadMapfile(path string) (*Mapfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapfile %s: %w", path, err)
	}
	defer f.Close()

	m := &Mapfile{datasets: make(map[string]string)}
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		line, err := ParseLine(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineno, err)
		}

		base := filepath.Base(line.Path)
		if existing, ok := m.datasets[base]; ok && existing != line.DatasetID {
			return nil, fmt.Errorf("%w: %s appears under both %s and %s",
				domain.ErrDatasetConflict, base, existing, line.DatasetID)
		}
		m.datasets[base] = line.DatasetID
		m.Lines = append(m.Lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read mapfile %s: %w", path, err)
	}
	return m, nil
}

// DatasetFor returns the dataset id owning a path's basename
func (m *Mapfile) DatasetFor(path string) (string, bool) {
	id, ok := m.datasets[filepath.Base(path)]
	return id, ok
}

// LoadDict parses a key|value file, one pair per line. Blank lines and
// #-prefixed lines are ignored. Checksum and version lists use this
// format.
func LoadDict(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dict := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		key, value, ok := strings.Cut(text, "|")
		if !ok {
			return nil, fmt.Errorf("%s:%d: %w: expected key|value", path, lineno, domain.ErrMapfileInvalid)
		}
		dict[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return dict, nil
}

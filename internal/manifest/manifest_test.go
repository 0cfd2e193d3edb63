package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ncvault/internal/domain"
)

// TestFormatLine tests rendering with and without checksum fields
func TestFormatLine(t *testing.T) {
	mod := time.Unix(1672531200, 500000000)

	l := Line{
		DatasetID: "cmip5.output1.INM.inmcm4.historical",
		Path:      "/archive/cmip5/1/tas.nc",
		Size:      1048576,
		ModTime:   mod,
	}
	got := FormatLine(l)
	want := "cmip5.output1.INM.inmcm4.historical | /archive/cmip5/1/tas.nc | 1048576 | mod_time=1672531200.500000"
	if got != want {
		t.Errorf("FormatLine = %q, want %q", got, want)
	}

	l.Checksum = "d41d8cd98f00b204e9800998ecf8427e"
	got = FormatLine(l)
	if !strings.HasSuffix(got, " | checksum=d41d8cd98f00b204e9800998ecf8427e | checksum_type=MD5") {
		t.Errorf("FormatLine with checksum = %q", got)
	}
}

// TestParseLine tests field extraction from the pipe format
func TestParseLine(t *testing.T) {
	l, err := ParseLine("cmip5.x.y | /data/tas.nc | 42 | mod_time=1672531200.250000 | checksum=abc123 | checksum_type=MD5")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}

	if l.DatasetID != "cmip5.x.y" {
		t.Errorf("DatasetID = %q", l.DatasetID)
	}
	if l.Path != "/data/tas.nc" {
		t.Errorf("Path = %q", l.Path)
	}
	if l.Size != 42 {
		t.Errorf("Size = %d", l.Size)
	}
	if l.Checksum != "abc123" || l.ChecksumType != "MD5" {
		t.Errorf("checksum = %q type %q", l.Checksum, l.ChecksumType)
	}
	if l.ModTime.Unix() != 1672531200 {
		t.Errorf("ModTime = %v", l.ModTime)
	}
}

// TestParseLineErrors tests malformed records
func TestParseLineErrors(t *testing.T) {
	cases := []string{
		"only-dataset",
		"a | b",
		"a | b | not-a-size",
		"a | b | 10 | orphan-field",
		"a | b | 10 | mod_time=abc",
	}
	for _, c := range cases {
		if _, err := ParseLine(c); !errors.Is(err, domain.ErrMapfileInvalid) {
			t.Errorf("ParseLine(%q) error = %v, want ErrMapfileInvalid", c, err)
		}
	}
}

// TestRoundTrip tests that format and parse preserve every field
func TestRoundTrip(t *testing.T) {
	orig := Line{
		DatasetID:    "obs4MIPs.NASA-JPL.AIRS.mon#20110608",
		Path:         "/archive/obs/3/ta_AIRS_L3_RetStd-v5_200209-201105.nc",
		Size:         123456789,
		ModTime:      time.Unix(1650000000, 123456000),
		Checksum:     "0123456789abcdef0123456789abcdef",
		ChecksumType: "MD5",
	}

	parsed, err := ParseLine(FormatLine(orig))
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if parsed.DatasetID != orig.DatasetID || parsed.Path != orig.Path || parsed.Size != orig.Size {
		t.Errorf("round trip mismatch: %+v", parsed)
	}
	if parsed.Checksum != orig.Checksum || parsed.ChecksumType != orig.ChecksumType {
		t.Errorf("checksum mismatch: %+v", parsed)
	}
	// mod_time carries microsecond precision through the text form
	if d := parsed.ModTime.Sub(orig.ModTime); d > time.Microsecond || d < -time.Microsecond {
		t.Errorf("ModTime drifted by %v", d)
	}
}

// TestWriter tests file output and close flushing
func TestWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.map")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	lines := []Line{
		{DatasetID: "d1", Path: "/a/1/x.nc", Size: 1, ModTime: time.Unix(100, 0)},
		{DatasetID: "d2", Path: "/a/1/y.nc", Size: 2, ModTime: time.Unix(200, 0)},
	}
	for _, l := range lines {
		if err := w.Write(l); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read manifest: %v", err)
	}
	got := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(got), data)
	}
	if !strings.HasPrefix(got[0], "d1 | /a/1/x.nc | 1 | ") {
		t.Errorf("line 1 = %q", got[0])
	}
}

// TestLoadMapfile tests parsing, comments and dataset lookup
func TestLoadMapfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.map")
	content := `# comment line
d1 | /data/x.nc | 10 | mod_time=100.000000

d1 | /data/sub/z.nc | 20 | mod_time=200.000000
d2 | /data/y.nc | 30 | mod_time=300.000000 | checksum=abc | checksum_type=MD5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write mapfile: %v", err)
	}

	m, err := LoadMapfile(path)
	if err != nil {
		t.Fatalf("LoadMapfile failed: %v", err)
	}
	if len(m.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(m.Lines))
	}

	if id, ok := m.DatasetFor("/anywhere/x.nc"); !ok || id != "d1" {
		t.Errorf("DatasetFor(x.nc) = %q, %v", id, ok)
	}
	if id, ok := m.DatasetFor("y.nc"); !ok || id != "d2" {
		t.Errorf("DatasetFor(y.nc) = %q, %v", id, ok)
	}
	if _, ok := m.DatasetFor("unknown.nc"); ok {
		t.Error("DatasetFor(unknown.nc) should miss")
	}
	if m.Lines[2].Checksum != "abc" {
		t.Errorf("checksum not carried: %+v", m.Lines[2])
	}
}

// TestLoadMapfileDuplicateBasename tests that one basename under two
// dataset ids fails the load
func TestLoadMapfileDuplicateBasename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.map")
	content := `d1 | /data/a/x.nc | 10 | mod_time=100.000000
d2 | /data/b/x.nc | 10 | mod_time=100.000000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write mapfile: %v", err)
	}

	_, err := LoadMapfile(path)
	if !errors.Is(err, domain.ErrDatasetConflict) {
		t.Fatalf("LoadMapfile error = %v, want ErrDatasetConflict", err)
	}
	for _, id := range []string{"d1", "d2"} {
		if !strings.Contains(err.Error(), id) {
			t.Errorf("error should name dataset %s: %v", id, err)
		}
	}
}

// TestLoadMapfileSameDatasetTwice tests that repeating a basename
// under one dataset id is allowed
func TestLoadMapfileSameDatasetTwice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "same.map")
	content := `d1 | /data/a/x.nc | 10 | mod_time=100.000000
d1 | /data/b/x.nc | 12 | mod_time=150.000000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write mapfile: %v", err)
	}

	if _, err := LoadMapfile(path); err != nil {
		t.Fatalf("LoadMapfile failed: %v", err)
	}
}

// TestLoadDict tests the key|value list format
func TestLoadDict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checksums.lst")
	content := `# path | md5
/data/x.nc | aaa111
/data/y.nc | bbb222
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write dict: %v", err)
	}

	dict, err := LoadDict(path)
	if err != nil {
		t.Fatalf("LoadDict failed: %v", err)
	}
	if dict["/data/x.nc"] != "aaa111" || dict["/data/y.nc"] != "bbb222" {
		t.Errorf("dict = %v", dict)
	}
}

// TestLoadDictMalformed tests that a line without a separator fails
func TestLoadDictMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.lst")
	if err := os.WriteFile(path, []byte("no-separator-here\n"), 0644); err != nil {
		t.Fatalf("failed to write dict: %v", err)
	}

	if _, err := LoadDict(path); !errors.Is(err, domain.ErrMapfileInvalid) {
		t.Errorf("LoadDict error = %v, want ErrMapfileInvalid", err)
	}
}

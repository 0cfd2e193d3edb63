package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ncvault/internal/compare"
	"ncvault/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func strictLocator() *DefaultLocator {
	return NewDefaultLocator(compare.NewComparator(compare.Options{Strict: true}), nil)
}

// TestLocateEmptyRoot tests that a missing root places into slot 1
func TestLocateEmptyRoot(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.nc")
	writeFile(t, src, "aaaaaaaaaa")

	loc := strictLocator()
	slot, equal, err := loc.Locate(context.Background(), src, filepath.Join(dir, "root"), 10)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if slot != "1" || equal {
		t.Errorf("Locate = (%s, %v), want (1, false)", slot, equal)
	}
}

// TestLocateEqualOccupant tests that an equal occupant reuses its slot
func TestLocateEqualOccupant(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.nc")
	root := filepath.Join(dir, "root")
	writeFile(t, src, "aaaaaaaaaa")
	writeFile(t, filepath.Join(root, "1", "a.nc"), "aaaaaaaaaa")

	loc := strictLocator()
	slot, equal, err := loc.Locate(context.Background(), src, root, 10)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if slot != "1" || !equal {
		t.Errorf("Locate = (%s, %v), want (1, true)", slot, equal)
	}
}

// TestLocateDifferingOccupant tests that a differing occupant promotes
// the candidate to the next slot
func TestLocateDifferingOccupant(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.nc")
	root := filepath.Join(dir, "root")
	writeFile(t, src, "new content")
	writeFile(t, filepath.Join(root, "1", "a.nc"), "old content")

	loc := strictLocator()
	slot, equal, err := loc.Locate(context.Background(), src, root, 11)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if slot != "2" || equal {
		t.Errorf("Locate = (%s, %v), want (2, false)", slot, equal)
	}
}

// TestLocateFirstOccupantDecides tests that the scan stops at the
// highest slot holding the basename, even when lower slots hold it too
func TestLocateFirstOccupantDecides(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.nc")
	root := filepath.Join(dir, "root")
	writeFile(t, src, "version-three")
	writeFile(t, filepath.Join(root, "1", "a.nc"), "version-one!!")
	writeFile(t, filepath.Join(root, "3", "a.nc"), "version-three")

	loc := strictLocator()
	slot, equal, err := loc.Locate(context.Background(), src, root, 13)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if slot != "3" || !equal {
		t.Errorf("Locate = (%s, %v), want (3, true)", slot, equal)
	}
}

// TestLocatePromotesAboveOccupant tests that promotion goes one above
// the deciding occupant, not above the highest existing slot
func TestLocatePromotesAboveOccupant(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.nc")
	root := filepath.Join(dir, "root")
	writeFile(t, src, "new content")
	writeFile(t, filepath.Join(root, "1", "a.nc"), "old content")
	// slot 5 exists but holds an unrelated basename
	writeFile(t, filepath.Join(root, "5", "b.nc"), "other file!")

	loc := strictLocator()
	slot, equal, err := loc.Locate(context.Background(), src, root, 11)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if slot != "2" || equal {
		t.Errorf("Locate = (%s, %v), want (2, false)", slot, equal)
	}
}

// TestLocateMonotonicSlots tests that promotion above the top slot
// never reuses a lower free number
func TestLocateMonotonicSlots(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.nc")
	root := filepath.Join(dir, "root")
	writeFile(t, src, "version-four!")
	writeFile(t, filepath.Join(root, "3", "a.nc"), "version-three")
	// slots 1 and 2 exist but are empty
	if err := os.MkdirAll(filepath.Join(root, "1"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "2"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	loc := strictLocator()
	slot, equal, err := loc.Locate(context.Background(), src, root, 13)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if slot != "4" || equal {
		t.Errorf("Locate = (%s, %v), want (4, false)", slot, equal)
	}
}

// TestLocateSeesSlotsAllocatedThisRun tests that a slot handed out
// earlier in the run participates in later scans of the same root
func TestLocateSeesSlotsAllocatedThisRun(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	writeFile(t, filepath.Join(root, "1", "a.nc"), "version-one")

	first := filepath.Join(dir, "first", "a.nc")
	writeFile(t, first, "version-two")
	second := filepath.Join(dir, "second", "a.nc")
	writeFile(t, second, "version-3!!")

	loc := strictLocator()
	ctx := context.Background()

	slot, equal, err := loc.Locate(ctx, first, root, 11)
	if err != nil {
		t.Fatalf("first Locate failed: %v", err)
	}
	if slot != "2" || equal {
		t.Fatalf("first Locate = (%s, %v), want (2, false)", slot, equal)
	}
	// the pipeline would now transfer into slot 2
	writeFile(t, filepath.Join(root, "2", "a.nc"), "version-two")

	slot, equal, err = loc.Locate(ctx, second, root, 11)
	if err != nil {
		t.Fatalf("second Locate failed: %v", err)
	}
	if slot != "3" || equal {
		t.Errorf("second Locate = (%s, %v), want (3, false)", slot, equal)
	}
}

// TestLocateIgnoresNonNumericEntries tests that only purely numeric
// subdirectories count as slots
func TestLocateIgnoresNonNumericEntries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.nc")
	root := filepath.Join(dir, "root")
	writeFile(t, src, "content")
	writeFile(t, filepath.Join(root, "v7", "a.nc"), "content")
	writeFile(t, filepath.Join(root, "latest", "a.nc"), "content")
	writeFile(t, filepath.Join(root, "README"), "notes")

	loc := strictLocator()
	slot, equal, err := loc.Locate(context.Background(), src, root, 7)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if slot != "1" || equal {
		t.Errorf("Locate = (%s, %v), want (1, false)", slot, equal)
	}
}

// TestLocateSizeOnlyComparator tests slot reuse under the default
// size-only equality
func TestLocateSizeOnlyComparator(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.nc")
	root := filepath.Join(dir, "root")
	writeFile(t, src, "aaaa")
	writeFile(t, filepath.Join(root, "1", "a.nc"), "bbbb")

	loc := NewDefaultLocator(compare.NewDefaultComparator(), nil)
	slot, equal, err := loc.Locate(context.Background(), src, root, 4)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if slot != "1" || !equal {
		t.Errorf("Locate = (%s, %v), want (1, true) under size-only comparison", slot, equal)
	}
}

// TestCanonicalize tests legacy prefix rewriting
func TestCanonicalize(t *testing.T) {
	loc := NewDefaultLocator(compare.NewDefaultComparator(), []config.Rewrite{
		{Prefix: "/css02-cmip5", Replacement: "/cmip5"},
		{Prefix: "/scratch", Replacement: "/archive/scratch"},
	})

	tests := []struct {
		in   string
		want string
	}{
		{"/css02-cmip5/data/output1", "/cmip5/data/output1"},
		{"/scratch/staging", "/archive/scratch/staging"},
		{"/untouched/path", "/untouched/path"},
	}
	for _, tt := range tests {
		if got := loc.Canonicalize(tt.in); got != tt.want {
			t.Errorf("Canonicalize(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

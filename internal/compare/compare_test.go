package compare

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// TestEqualSizeOnly tests that matching size suffices without strict
// comparison
func TestEqualSizeOnly(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.nc", "aaaa")
	b := writeFile(t, dir, "b.nc", "bbbb")

	cmp := NewDefaultComparator()
	equal, err := cmp.Equal(context.Background(), a, b, 4)
	if err != nil {
		t.Fatalf("Equal failed: %v", err)
	}
	if !equal {
		t.Error("same-size files should compare equal without strict mode")
	}
}

// TestEqualSizeMismatch tests that differing sizes never compare equal
func TestEqualSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.nc", "aaaa")
	b := writeFile(t, dir, "b.nc", "bbbbbb")

	for _, strict := range []bool{false, true} {
		cmp := NewComparator(Options{Strict: strict})
		equal, err := cmp.Equal(context.Background(), a, b, 4)
		if err != nil {
			t.Fatalf("Equal(strict=%v) failed: %v", strict, err)
		}
		if equal {
			t.Errorf("Equal(strict=%v) = true for size mismatch", strict)
		}
	}
}

// TestEqualStrict tests byte-for-byte comparison of same-size files
func TestEqualStrict(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.nc", "identical")
	b := writeFile(t, dir, "b.nc", "identical")
	c := writeFile(t, dir, "c.nc", "different")

	cmp := NewComparator(Options{Strict: true})

	equal, err := cmp.Equal(context.Background(), a, b, 9)
	if err != nil {
		t.Fatalf("Equal failed: %v", err)
	}
	if !equal {
		t.Error("identical content should compare equal")
	}

	equal, err = cmp.Equal(context.Background(), a, c, 9)
	if err != nil {
		t.Fatalf("Equal failed: %v", err)
	}
	if equal {
		t.Error("same-size differing content should not compare equal in strict mode")
	}
}

// TestEqualChunkBoundaries tests strict comparison across multiple
// read chunks
func TestEqualChunkBoundaries(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("x", 33)
	a := writeFile(t, dir, "a.nc", content)
	b := writeFile(t, dir, "b.nc", content)
	c := writeFile(t, dir, "c.nc", content[:32]+"y")

	cmp := NewComparator(Options{Strict: true, BufferSize: 8})

	equal, err := cmp.Equal(context.Background(), a, b, 33)
	if err != nil {
		t.Fatalf("Equal failed: %v", err)
	}
	if !equal {
		t.Error("identical multi-chunk content should compare equal")
	}

	equal, err = cmp.Equal(context.Background(), a, c, 33)
	if err != nil {
		t.Fatalf("Equal failed: %v", err)
	}
	if equal {
		t.Error("last-byte difference should not compare equal")
	}
}

// TestEqualMissingOccupant tests that an absent occupant is simply
// not equal
func TestEqualMissingOccupant(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.nc", "aaaa")

	cmp := NewDefaultComparator()
	equal, err := cmp.Equal(context.Background(), a, filepath.Join(dir, "missing.nc"), 4)
	if err != nil {
		t.Fatalf("Equal failed: %v", err)
	}
	if equal {
		t.Error("missing occupant should not compare equal")
	}
}

// TestEqualNonRegularOccupant tests that a directory occupant is not
// equal
func TestEqualNonRegularOccupant(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.nc", "aaaa")
	sub := filepath.Join(dir, "occupant.nc")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	cmp := NewDefaultComparator()
	equal, err := cmp.Equal(context.Background(), a, sub, 4)
	if err != nil {
		t.Fatalf("Equal failed: %v", err)
	}
	if equal {
		t.Error("directory occupant should not compare equal")
	}
}

// TestEqualHardlink tests the same-inode short circuit
func TestEqualHardlink(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.nc", "linked")
	b := filepath.Join(dir, "b.nc")
	if err := os.Link(a, b); err != nil {
		t.Skipf("hard links not supported: %v", err)
	}

	cmp := NewComparator(Options{Strict: true})
	equal, err := cmp.Equal(context.Background(), a, b, 6)
	if err != nil {
		t.Fatalf("Equal failed: %v", err)
	}
	if !equal {
		t.Error("hard-linked paths should compare equal")
	}
}

// TestEqualContextCancellation tests that strict comparison respects
// context cancellation
func TestEqualContextCancellation(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.nc", "same size content")
	b := writeFile(t, dir, "b.nc", "same size content")

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	cmp := NewComparator(Options{Strict: true})
	_, err := cmp.Equal(ctx, a, b, int64(len("same size content")))
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

package testutil

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// CreateTestFile creates a test file with the given content
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	return path
}

// CreateTestFileWithSize creates a test file with random content of the given size
func CreateTestFileWithSize(t *testing.T, dir, name string, size int64) string {
	t.Helper()

	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	defer file.Close()

	// Write random data in chunks
	const chunkSize = 1024 * 1024 // 1MB chunks
	buf := make([]byte, chunkSize)
	remaining := size

	for remaining > 0 {
		writeSize := chunkSize
		if remaining < int64(chunkSize) {
			writeSize = int(remaining)
		}

		rand.Read(buf[:writeSize])
		if _, err := file.Write(buf[:writeSize]); err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}

		remaining -= int64(writeSize)
	}

	return path
}

// NetCDFBytes builds a minimal NetCDF classic (CDF-1) header whose
// global attribute list holds the given character attributes. The
// result parses as a real file but carries no dimensions, variables,
// or data.
func NetCDFBytes(attrs map[string]string) []byte {
	var buf bytes.Buffer
	u32 := func(v uint32) {
		var word [4]byte
		binary.BigEndian.PutUint32(word[:], v)
		buf.Write(word[:])
	}
	padded := func(s string) {
		buf.WriteString(s)
		for i := len(s); i%4 != 0; i++ {
			buf.WriteByte(0)
		}
	}

	buf.WriteString("CDF")
	buf.WriteByte(1)
	u32(0) // numrecs
	u32(0) // dim_list ABSENT
	u32(0)

	if len(attrs) == 0 {
		u32(0) // gatt_list ABSENT
		u32(0)
	} else {
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)

		u32(0x0C) // NC_ATTRIBUTE
		u32(uint32(len(names)))
		for _, name := range names {
			value := attrs[name]
			u32(uint32(len(name)))
			padded(name)
			u32(2) // NC_CHAR
			u32(uint32(len(value)))
			padded(value)
		}
	}

	u32(0) // var_list ABSENT
	u32(0)

	return buf.Bytes()
}

// WriteNetCDF writes a minimal classic file with the given global
// attributes and returns its path
func WriteNetCDF(t *testing.T, dir, name string, attrs map[string]string) string {
	t.Helper()
	return CreateTestFile(t, dir, name, NetCDFBytes(attrs))
}

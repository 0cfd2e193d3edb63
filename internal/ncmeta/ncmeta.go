// Package ncmeta reads the header of NetCDF classic files just far
// enough to expose their global attributes. The tool never needs the
// data section: dataset facets and the tracking identity token all live
// in the global attribute list, which sits at a fixed position near the
// start of the file.
package ncmeta

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// TrackingAttr is the global attribute carrying a file's identity token
const TrackingAttr = "tracking_id"

// ErrNotClassic indicates a file that is not in NetCDF classic format
// (CDF-1 or CDF-2). NetCDF-4/HDF5 containers are rejected with this
// error as well.
var ErrNotClassic = errors.New("not a NetCDF classic file")

// ErrNoToken indicates a well-formed header without a tracking_id
var ErrNoToken = errors.New("no tracking_id attribute")

// header tags from the classic format
const (
	tagDimension = 0x0A
	tagVariable  = 0x0B
	tagAttribute = 0x0C
)

// external type codes from the classic format
const (
	ncByte   = 1
	ncChar   = 2
	ncShort  = 3
	ncInt    = 4
	ncFloat  = 5
	ncDouble = 6
)

// sanity caps: the header of a real file is small, and a corrupt length
// field must not drive a multi-gigabyte allocation
const (
	maxNameLen  = 1 << 16
	maxAttrSize = 1 << 20
	maxElems    = 1 << 20
)

// Header holds the decoded part of a classic file header
type Header struct {
	// Version is 1 (classic) or 2 (64-bit offset)
	Version byte

	// Attrs maps global NC_CHAR attribute names to their values.
	// Numeric attributes are skipped; facets and tracking ids are
	// always character data.
	Attrs map[string]string
}

// Reader extracts tokens and attributes from NetCDF files on disk. The
// zero value is ready to use.
type Reader struct{}

// ReadAttributes returns the global attributes of the file at path
func (Reader) ReadAttributes(path string) (map[string]string, error) {
	h, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return h.Attrs, nil
}

// ReadToken returns the file's tracking_id attribute
func (Reader) ReadToken(path string) (string, error) {
	h, err := ReadFile(path)
	if err != nil {
		return "", err
	}
	token, ok := h.Attrs[TrackingAttr]
	if !ok || token == "" {
		return "", fmt.Errorf("%w: %s", ErrNoToken, path)
	}
	return token, nil
}

// ReadFile opens path and parses its header
func ReadFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := Parse(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// Parse decodes a classic header from r, stopping after the global
// attribute list. The variable section and data are never read.
func Parse(r io.Reader) (*Header, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotClassic, err)
	}
	if magic[0] != 'C' || magic[1] != 'D' || magic[2] != 'F' {
		return nil, ErrNotClassic
	}
	version := magic[3]
	if version != 1 && version != 2 {
		// CDF-5 widens the length fields and NetCDF-4 is HDF5;
		// neither is parseable here
		return nil, fmt.Errorf("%w: unsupported version byte %d", ErrNotClassic, version)
	}

	// numrecs (or the streaming marker); not needed, skip
	if _, err := readUint32(r); err != nil {
		return nil, err
	}

	if err := skipDimList(r); err != nil {
		return nil, err
	}

	attrs, err := parseAttrList(r)
	if err != nil {
		return nil, err
	}

	return &Header{Version: version, Attrs: attrs}, nil
}

// skipDimList consumes the dimension list without retaining it
func skipDimList(r io.Reader) error {
	tag, nelems, err := readListHeader(r)
	if err != nil {
		return err
	}
	if tag == 0 && nelems == 0 {
		return nil // ABSENT
	}
	if tag != tagDimension {
		return fmt.Errorf("corrupt header: expected dimension tag, got 0x%02X", tag)
	}

	for i := uint32(0); i < nelems; i++ {
		if _, err := readName(r); err != nil {
			return err
		}
		// dimension length
		if _, err := readUint32(r); err != nil {
			return err
		}
	}
	return nil
}

// parseAttrList decodes the global attribute list
func parseAttrList(r io.Reader) (map[string]string, error) {
	tag, nelems, err := readListHeader(r)
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]string)
	if tag == 0 && nelems == 0 {
		return attrs, nil // ABSENT
	}
	if tag != tagAttribute {
		return nil, fmt.Errorf("corrupt header: expected attribute tag, got 0x%02X", tag)
	}

	for i := uint32(0); i < nelems; i++ {
		name, err := readName(r)
		if err != nil {
			return nil, err
		}
		ncType, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		count, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		if count > maxElems {
			return nil, fmt.Errorf("corrupt header: attribute %s claims %d elements", name, count)
		}

		width, err := typeWidth(ncType)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		size := int(count) * width
		if size > maxAttrSize {
			return nil, fmt.Errorf("corrupt header: attribute %s claims %d bytes", name, size)
		}

		data := make([]byte, padded(size))
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("corrupt header: attribute %s: %w", name, err)
		}

		if ncType == ncChar {
			attrs[name] = string(data[:size])
		}
	}
	return attrs, nil
}

// readListHeader reads a list tag and element count
func readListHeader(r io.Reader) (uint32, uint32, error) {
	tag, err := readUint32(r)
	if err != nil {
		return 0, 0, err
	}
	nelems, err := readUint32(r)
	if err != nil {
		return 0, 0, err
	}
	return tag, nelems, nil
}

// readName reads a length-prefixed, 4-byte-padded name
func readName(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if n > maxNameLen {
		return "", fmt.Errorf("corrupt header: name length %d", n)
	}
	buf := make([]byte, padded(int(n)))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("corrupt header: %w", err)
	}
	return string(buf[:n]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("corrupt header: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// typeWidth returns the byte width of an external type code
func typeWidth(ncType uint32) (int, error) {
	switch ncType {
	case ncByte, ncChar:
		return 1, nil
	case ncShort:
		return 2, nil
	case ncInt, ncFloat:
		return 4, nil
	case ncDouble:
		return 8, nil
	default:
		return 0, fmt.Errorf("unknown external type %d", ncType)
	}
}

// padded rounds a byte count up to the 4-byte boundary
func padded(n int) int {
	return (n + 3) &^ 3
}

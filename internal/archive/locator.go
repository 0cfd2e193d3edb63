// Package archive resolves destination slots in a version-partitioned
// archive tree and transfers files into them.
//
// The layout under a destination root is root/<n>/<basename> where <n>
// is a positive integer slot. Slot selection guarantees that two files
// with the same basename but different content never share a slot.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ncvault/internal/compare"
	"ncvault/internal/config"
	"ncvault/internal/domain"
)

// Locator resolves the destination slot for one candidate file under
// one destination root
type Locator interface {
	// Canonicalize rewrites a legacy destination-root prefix to its
	// canonical mirror name. Applied before any slot lookup so the
	// scan and the placement agree on one tree.
	Canonicalize(root string) string

	// Locate returns the slot for the candidate and whether that
	// slot's occupant already holds equal content
	Locate(ctx context.Context, candidatePath, root string, size int64) (slot string, occupantEqual bool, err error)
}

// DefaultLocator implements Locator with a per-root slot cache
type DefaultLocator struct {
	cmp      compare.Comparator
	rewrites []config.Rewrite

	// slots caches the integer-named subdirectories per root, listed
	// once per run and extended as new slots are allocated. Valid only
	// under the single-writer assumption.
	slots map[string]map[int]bool
}

// NewDefaultLocator creates a locator using the given comparator and
// root rewrites
func NewDefaultLocator(cmp compare.Comparator, rewrites []config.Rewrite) *DefaultLocator {
	return &DefaultLocator{
		cmp:      cmp,
		rewrites: rewrites,
		slots:    make(map[string]map[int]bool),
	}
}

// Canonicalize implements the Locator interface
func (l *DefaultLocator) Canonicalize(root string) string {
	for _, rw := range l.rewrites {
		if strings.HasPrefix(root, rw.Prefix) {
			return rw.Replacement + strings.TrimPrefix(root, rw.Prefix)
		}
	}
	return root
}

// Locate implements the Locator interface.
//
// Slots are scanned in descending order from the highest existing
// slot. The first slot holding a file with the candidate's basename
// decides: equal content reuses that slot, differing content promotes
// the candidate to the next slot up. A root with no slot holding the
// basename places into slot 1.
func (l *DefaultLocator) Locate(ctx context.Context, candidatePath, root string, size int64) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	base := filepath.Base(candidatePath)
	slots, err := l.existingSlots(root)
	if err != nil {
		return "", false, err
	}

	for n := maxSlot(slots); n >= 1; n-- {
		occupant := filepath.Join(root, strconv.Itoa(n), base)
		if _, err := os.Stat(occupant); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", false, fmt.Errorf("stat %s: %w", occupant, mapError(err))
		}

		equal, err := l.cmp.Equal(ctx, candidatePath, occupant, size)
		if err != nil {
			return "", false, err
		}
		if equal {
			return strconv.Itoa(n), true, nil
		}

		// differing occupant: promote to a fresh slot above it
		next := n + 1
		slots[next] = true
		return strconv.Itoa(next), false, nil
	}

	slots[1] = true
	return "1", false, nil
}

// existingSlots lists the integer-named subdirectories of a root,
// reading the directory only the first time the root is touched
func (l *DefaultLocator) existingSlots(root string) (map[int]bool, error) {
	if slots, ok := l.slots[root]; ok {
		return slots, nil
	}

	slots := make(map[int]bool)
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("list %s: %w", root, mapError(err))
		}
		// missing root: nothing to compare, first slot will be 1
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if n, ok := numericName(entry.Name()); ok {
			slots[n] = true
		}
	}

	l.slots[root] = slots
	return slots, nil
}

// numericName reports whether name is purely numeric and returns its
// integer value
func numericName(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return n, true
}

func maxSlot(slots map[int]bool) int {
	max := 0
	for n := range slots {
		if n > max {
			max = n
		}
	}
	return max
}

// mapError converts OS errors to domain errors
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return domain.ErrNotFound
	}
	if os.IsPermission(err) {
		return domain.ErrPermissionDenied
	}
	if os.IsExist(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

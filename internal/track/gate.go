package track

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Gate decides whether a candidate file should be archived and records
// the outcome. The zero gate (nil) means no tracking store is in play
// and every candidate passes.
type Gate interface {
	// IsCurrent reports whether the token refers to a file the store
	// still holds in its cache, along with the cached path when known.
	// An unknown token is not current.
	IsCurrent(ctx context.Context, token string, size int64) (bool, string, error)

	// MarkArchived records a completed transfer for the token
	MarkArchived(ctx context.Context, token, destPath string, modTime time.Time, batch int) error
}

// StoreGate gates transfers against a live tracking store
type StoreGate struct {
	store *Store
}

// NewStoreGate creates a gate backed by the store
func NewStoreGate(store *Store) *StoreGate {
	return &StoreGate{store: store}
}

// IsCurrent checks the token against tracked_files. A cached row whose
// recorded size disagrees with the candidate is treated as stale; a
// zero recorded size means the harvester did not capture one and the
// cross-check is waived.
func (g *StoreGate) IsCurrent(ctx context.Context, token string, size int64) (bool, string, error) {
	tf, err := g.store.Lookup(ctx, token)
	if err != nil {
		return false, "", err
	}
	if tf == nil || !tf.Cached {
		return false, "", nil
	}
	if tf.Size != 0 && tf.Size != size {
		return false, tf.CachedPath, nil
	}
	return true, tf.CachedPath, nil
}

// MarkArchived records the transfer in the store
func (g *StoreGate) MarkArchived(ctx context.Context, token, destPath string, modTime time.Time, batch int) error {
	return g.store.MarkArchived(ctx, token, destPath, modTime, batch)
}

// DryRunGate reads the store normally but prints the update it would
// have executed instead of running it.
type DryRunGate struct {
	store *Store
	w     io.Writer
}

// NewDryRunGate creates a gate that traces updates to w
func NewDryRunGate(store *Store, w io.Writer) *DryRunGate {
	return &DryRunGate{store: store, w: w}
}

// IsCurrent delegates to the store; lookups are harmless
func (g *DryRunGate) IsCurrent(ctx context.Context, token string, size int64) (bool, string, error) {
	gate := StoreGate{store: g.store}
	return gate.IsCurrent(ctx, token, size)
}

// MarkArchived prints the literal update instead of executing it
func (g *DryRunGate) MarkArchived(ctx context.Context, token, destPath string, modTime time.Time, batch int) error {
	fmt.Fprintf(g.w,
		"UPDATE tracked_files SET status = 'archived', archive_path = '%s', archived_at = '%s', batch = %d WHERE token = '%s';\n",
		destPath, modTime.Format(time.RFC3339), batch, token)
	return nil
}

package domain

// Placement describes the resolved archive destination for one candidate
// file: the canonical destination root, the chosen version slot beneath
// it, and whether that slot already holds a content-equal occupant.
type Placement struct {
	// Root is the canonical destination root (after mirror rewrites)
	Root string

	// Slot is the numeric version subdirectory name chosen under Root
	Slot string

	// Dir is Root/Slot
	Dir string

	// Path is Dir/<base name of the candidate>
	Path string

	// OccupantEqual reports that a file already exists at Path and was
	// judged content-equal to the candidate. Transfers into a slot are
	// only ever elective when this is true; a non-equal occupant always
	// forces a fresh slot instead.
	OccupantEqual bool
}

// RunStats summarizes one transfer run.
type RunStats struct {
	// Seen counts records yielded by the input source
	Seen int

	// Transferred counts files physically copied or moved
	Transferred int

	// UpToDate counts files whose slot already held equal content
	UpToDate int

	// Skipped counts records dropped by per-file diagnostics
	// (stat failures, zero-length files, allowlist misses, gate misses)
	Skipped int

	// Bytes counts bytes physically transferred
	Bytes int64
}

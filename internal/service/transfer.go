// Package service drives the archival pipeline: it pulls candidate
// files from an input source and archives each one in turn.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ncvault/internal/archive"
	"ncvault/internal/classify"
	"ncvault/internal/config"
	"ncvault/internal/domain"
	"ncvault/internal/logger"
	"ncvault/internal/manifest"
	"ncvault/internal/ncmeta"
	"ncvault/internal/progress"
	"ncvault/internal/source"
	"ncvault/internal/track"
)

// Options control one archival run
type Options struct {
	// DirFormat names the destination directory format. Empty selects
	// directory_format_for_copy, or directory_format_for_replica under
	// Replica.
	DirFormat string

	// Replica switches to the replica directory format. The caller is
	// expected to force the product facet on the classifier as well.
	Replica bool

	// Overwrite permits re-transfer into a slot already confirmed
	// content-equal. Non-equal occupants always get a fresh slot, so
	// an overwrite never touches divergent content.
	Overwrite bool

	// Move removes the source file after a successful transfer
	Move bool

	// DryRun traces every decision without mutating the filesystem or
	// the tracking store
	DryRun bool

	// IgnoreZeroLength quiets zero-length diagnostics and downgrades
	// classification failures from fatal to skip
	IgnoreZeroLength bool

	// Manifest enables dataset-id derivation and manifest line output
	Manifest bool

	// Batch labels tracking-store marks made by this run
	Batch int
}

// TransferService archives candidate files one at a time
type TransferService struct {
	src        source.Source
	classifier classify.Classifier
	locator    archive.Locator
	transfer   archive.Transferrer
	opts       Options

	gate      track.Gate
	writer    *manifest.Writer
	checksums map[string]string
	versions  map[string]string
	datasets  *manifest.Mapfile
	tok       source.TokenReader
	reporter  progress.Reporter
	trace     io.Writer
}

// NewTransferService creates a transfer service over the core
// collaborators. Optional collaborators are attached with setters.
func NewTransferService(src source.Source, cls classify.Classifier, loc archive.Locator, tr archive.Transferrer, opts Options) *TransferService {
	return &TransferService{
		src:        src,
		classifier: cls,
		locator:    loc,
		transfer:   tr,
		opts:       opts,
		trace:      os.Stdout,
	}
}

// SetGate enables tracking-store gating and post-transfer marking
func (s *TransferService) SetGate(g track.Gate) {
	s.gate = g
}

// SetManifestWriter sets the manifest destination. With no writer a
// manifest-enabled run previews lines on the trace writer instead.
func (s *TransferService) SetManifestWriter(w *manifest.Writer) {
	s.writer = w
}

// SetChecksumList supplies checksums keyed by source path, consulted
// for manifest lines when a record carries no inline checksum
func (s *TransferService) SetChecksumList(checksums map[string]string) {
	s.checksums = checksums
}

// SetVersionList restricts manifest output to datasets in the list and
// appends each dataset's version to its manifest id
func (s *TransferService) SetVersionList(versions map[string]string) {
	s.versions = versions
}

// SetDatasetMap supplies the mapfile dataset ids for manifest-sourced
// runs, replacing classifier derivation
func (s *TransferService) SetDatasetMap(m *manifest.Mapfile) {
	s.datasets = m
}

// SetTokenReader sets the descriptor reader used to resolve identity
// tokens for records that carry none
func (s *TransferService) SetTokenReader(tok source.TokenReader) {
	s.tok = tok
}

// SetProgressReporter sets the progress reporter for transfers
func (s *TransferService) SetProgressReporter(reporter progress.Reporter) {
	s.reporter = reporter
}

// SetTrace redirects the dry-run decision trace (default stdout)
func (s *TransferService) SetTrace(w io.Writer) {
	s.trace = w
}

// getReporter returns the current progress reporter or a null reporter
func (s *TransferService) getReporter() progress.Reporter {
	if s.reporter != nil {
		return s.reporter
	}
	return progress.NullReporter{}
}

// Run drains the input source, archiving each record. Skippable
// per-file problems are logged and never abort the run; transfer and
// store failures propagate.
func (s *TransferService) Run(ctx context.Context) (*domain.RunStats, error) {
	stats := &domain.RunStats{}

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		rec, err := s.src.Next(ctx)
		if errors.Is(err, domain.ErrEndOfSource) {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.Seen++

		if err := s.processRecord(ctx, rec, stats); err != nil {
			return stats, err
		}
	}

	logger.Get().Info("run complete",
		"seen", stats.Seen,
		"transferred", stats.Transferred,
		"up_to_date", stats.UpToDate,
		"skipped", stats.Skipped,
		"bytes", stats.Bytes,
		"dry_run", s.opts.DryRun,
	)
	return stats, nil
}

// processRecord takes one candidate through classification, placement,
// gating, transfer and manifest output
func (s *TransferService) processRecord(ctx context.Context, rec domain.FileRecord, stats *domain.RunStats) error {
	log := logger.Get()

	if rec.Size == 0 {
		if s.opts.IgnoreZeroLength {
			log.Debug("skipping zero-length file", "path", rec.Path)
		} else {
			log.Warn("skipping file", "path", rec.Path, "error", domain.ErrZeroLength)
		}
		stats.Skipped++
		return nil
	}

	cc, err := s.classifier.Classify(ctx, rec.Path)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		// A classification failure means a file state the operator
		// must inspect, unless the run was told to press on past
		// damaged files.
		if s.opts.IgnoreZeroLength {
			log.Warn("skipping unclassifiable file", "path", rec.Path, "error", err)
			stats.Skipped++
			return nil
		}
		return err
	}

	root, err := s.classifier.DerivePath(cc, s.formatName())
	if err != nil {
		return fmt.Errorf("derive destination for %s: %w", rec.Path, err)
	}

	var datasetID string
	if s.opts.Manifest {
		datasetID, err = s.datasetID(cc, rec.Path)
		if err != nil {
			return err
		}
		if s.versions != nil {
			version, ok := s.versions[datasetID]
			if !ok {
				log.Info("skipping file, dataset not in version list",
					"path", rec.Path, "dataset", datasetID)
				stats.Skipped++
				return nil
			}
			if version != "" {
				datasetID = datasetID + "#" + version
			}
		}
	}

	placement, err := s.place(ctx, rec, root)
	if err != nil {
		return err
	}

	var token string
	if s.gate != nil {
		token, err = s.resolveToken(rec, cc)
		if err != nil {
			log.Warn("skipping file, identity token unreadable", "path", rec.Path, "error", err)
			stats.Skipped++
			return nil
		}

		current, cachedPath, err := s.gate.IsCurrent(ctx, token, rec.Size)
		if err != nil {
			return fmt.Errorf("tracking store lookup for %s: %w", rec.Path, err)
		}
		if !current {
			log.Info("skipping file not current in tracking store",
				"path", rec.Path, "token", token)
			stats.Skipped++
			return nil
		}
		log.Debug("token is current", "token", token, "cached_path", cachedPath)
	}

	if placement.OccupantEqual && !s.opts.Overwrite {
		if s.opts.DryRun {
			fmt.Fprintf(s.trace, "%s: up to date at %s\n", rec.Path, placement.Path)
		} else {
			log.Debug("file already archived", "path", rec.Path, "dest", placement.Path)
		}
		stats.UpToDate++
	} else if err := s.transferRecord(ctx, rec, placement, stats); err != nil {
		return err
	}

	if s.gate != nil {
		if err := s.gate.MarkArchived(ctx, token, placement.Path, rec.ModTime, s.opts.Batch); err != nil {
			return fmt.Errorf("mark archived %s: %w", rec.Path, err)
		}
	}

	if s.opts.Manifest {
		line := manifest.Line{
			DatasetID: datasetID,
			Path:      placement.Path,
			Size:      rec.Size,
			ModTime:   rec.ModTime,
			Checksum:  s.checksumFor(rec),
		}
		if s.writer != nil {
			if err := s.writer.Write(line); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(s.trace, "manifest: %s\n", manifest.FormatLine(line))
		}
	}

	return nil
}

// transferRecord performs or traces the physical transfer
func (s *TransferService) transferRecord(ctx context.Context, rec domain.FileRecord, placement *domain.Placement, stats *domain.RunStats) error {
	if s.opts.DryRun {
		if _, err := os.Stat(placement.Dir); os.IsNotExist(err) {
			fmt.Fprintf(s.trace, "would create directory %s\n", placement.Dir)
		}
		verb := "copy"
		switch {
		case placement.OccupantEqual:
			verb = "overwrite"
		case s.opts.Move:
			verb = "move"
		}
		fmt.Fprintf(s.trace, "would %s %s to %s\n", verb, rec.Path, placement.Path)
	} else {
		if err := s.transfer.EnsureDir(placement.Dir); err != nil {
			return err
		}

		reporter := s.getReporter()
		reporter.Start(rec.Path, rec.Size)
		if err := s.transfer.Transfer(ctx, rec.Path, placement.Path); err != nil {
			reporter.Error(err)
			return fmt.Errorf("transfer %s: %w", rec.Path, err)
		}
		reporter.Complete()

		logger.Get().Debug("transferred",
			"path", rec.Path,
			"dest", placement.Path,
			"bytes", rec.Size,
			"moved", s.opts.Move,
		)
	}

	stats.Transferred++
	stats.Bytes += rec.Size
	return nil
}

// place resolves the destination slot for one record. The root is
// canonicalized first so the slot scan and the placement agree on one
// tree.
func (s *TransferService) place(ctx context.Context, rec domain.FileRecord, root string) (*domain.Placement, error) {
	root = s.locator.Canonicalize(root)

	slot, equal, err := s.locator.Locate(ctx, rec.Path, root, rec.Size)
	if err != nil {
		return nil, fmt.Errorf("locate slot for %s: %w", rec.Path, err)
	}

	dir := filepath.Join(root, slot)
	return &domain.Placement{
		Root:          root,
		Slot:          slot,
		Dir:           dir,
		Path:          filepath.Join(dir, rec.Base()),
		OccupantEqual: equal,
	}, nil
}

// formatName picks the directory-format template for this run
func (s *TransferService) formatName() string {
	if s.opts.DirFormat != "" {
		return s.opts.DirFormat
	}
	if s.opts.Replica {
		return config.FormatReplica
	}
	return ""
}

// datasetID resolves the manifest dataset id: from the mapfile when the
// run is mapfile-sourced, else from the classifier
func (s *TransferService) datasetID(cc *classify.Context, path string) (string, error) {
	if s.datasets != nil {
		id, ok := s.datasets.DatasetFor(path)
		if !ok {
			return "", fmt.Errorf("no dataset for %s", path)
		}
		return id, nil
	}
	return s.classifier.DeriveDatasetID(cc)
}

// resolveToken finds the identity token for gating: the record's own
// token when the source supplied one, else the tracking attribute the
// classifier read, else a direct descriptor read
func (s *TransferService) resolveToken(rec domain.FileRecord, cc *classify.Context) (string, error) {
	if rec.Token != "" {
		return rec.Token, nil
	}
	if v, ok := cc.Facet(ncmeta.TrackingAttr); ok && v != "" {
		return v, nil
	}
	if s.tok == nil {
		return "", ncmeta.ErrNoToken
	}
	return s.tok.ReadToken(rec.Path)
}

// checksumFor picks the manifest checksum: the record's inline value
// wins over the supplied checksum list
func (s *TransferService) checksumFor(rec domain.FileRecord) string {
	if rec.Checksum != "" {
		return rec.Checksum
	}
	return s.checksums[rec.Path]
}

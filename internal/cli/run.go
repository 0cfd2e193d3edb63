package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"ncvault/internal/archive"
	"ncvault/internal/classify"
	"ncvault/internal/compare"
	"ncvault/internal/config"
	"ncvault/internal/logger"
	"ncvault/internal/manifest"
	"ncvault/internal/ncmeta"
	"ncvault/internal/progress"
	"ncvault/internal/service"
	"ncvault/internal/source"
	"ncvault/internal/track"
)

// runArchive wires the pipeline from the parsed flags and drives one
// run. Missing positionals and contradictory source flags print usage
// and return without starting the transfer loop.
func runArchive(cmd *cobra.Command, args []string, opts *options) error {
	if len(args) == 0 {
		return cmd.Usage()
	}
	if opts.filelist != "" && opts.mapfile != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "--filelist and --map are mutually exclusive")
		return cmd.Usage()
	}

	project := args[0]
	srcDirs := args[1:]
	if len(srcDirs) == 0 && opts.filelist == "" && opts.mapfile == "" {
		return cmd.Usage()
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	_ = logger.Shutdown()
	logCfg := logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: logger.ParseFormat(cfg.Log.Format),
		File: logger.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			MaxBackups: cfg.Log.File.MaxBackups,
			Compress:   cfg.Log.File.Compress,
		},
	}
	if opts.verbose {
		logCfg.Level = logger.LevelDebug
	}
	if err := logger.Init(logCfg); err != nil {
		return err
	}
	defer func() { _ = logger.Shutdown() }()

	proj, err := cfg.GetProject(project)
	if err != nil {
		return err
	}

	classifier, err := classify.NewTemplateClassifier(project, proj, ncmeta.Reader{})
	if err != nil {
		return err
	}
	if opts.replica {
		classifier.ForceFacet("product", "replica")
	}

	src, datasets, err := buildSource(cfg, opts, srcDirs)
	if err != nil {
		return err
	}
	defer src.Close()

	comparator := compare.NewComparator(compare.Options{Strict: opts.compare})
	locator := archive.NewDefaultLocator(comparator, cfg.Rewrites)

	var reporter progress.Reporter = progress.NullReporter{}
	if opts.verbose && !opts.dryRun {
		reporter = progress.NewConsoleReporter(nil)
	}
	transferrer := archive.NewDefaultTransferrer(opts.move, reporter)

	svc := service.NewTransferService(src, classifier, locator, transferrer, service.Options{
		DirFormat:        opts.dirFormat,
		Replica:          opts.replica,
		Overwrite:        opts.overwrite,
		Move:             opts.move,
		DryRun:           opts.dryRun,
		IgnoreZeroLength: opts.ignoreZero,
		Manifest:         opts.output != "",
		Batch:            opts.batch,
	})
	svc.SetProgressReporter(reporter)
	svc.SetTrace(cmd.OutOrStdout())
	if datasets != nil {
		svc.SetDatasetMap(datasets)
	}

	if opts.checksumList != "" {
		checksums, err := manifest.LoadDict(opts.checksumList)
		if err != nil {
			return err
		}
		svc.SetChecksumList(checksums)
	}
	if opts.versionList != "" {
		versions, err := manifest.LoadDict(opts.versionList)
		if err != nil {
			return err
		}
		svc.SetVersionList(versions)
	}

	var writer *manifest.Writer
	if opts.output != "" && !opts.dryRun {
		writer, err = manifest.NewWriter(opts.output)
		if err != nil {
			return err
		}
		svc.SetManifestWriter(writer)
	}

	var store *track.Store
	if opts.syncDB {
		store, err = track.Open(cfg.TrackDB)
		if err != nil {
			return err
		}
		defer store.Close()

		if opts.dryRun {
			svc.SetGate(track.NewDryRunGate(store, cmd.OutOrStdout()))
		} else {
			svc.SetGate(track.NewStoreGate(store))
		}
		svc.SetTokenReader(ncmeta.Reader{})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runID string
	if store != nil && !opts.dryRun {
		runID, err = store.BeginRun(ctx, project, opts.batch)
		if err != nil {
			return err
		}
	}

	stats, runErr := svc.Run(ctx)

	if writer != nil {
		if err := writer.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}

	if runID != "" {
		status := track.RunCompleted
		if runErr != nil {
			status = track.RunFailed
		}
		// the history row closes even when the run context was canceled
		if err := store.FinishRun(context.Background(), runID, *stats, status); err != nil {
			logger.Get().Warn("failed to record run history", "run_id", runID, "error", err)
		}
	}

	return runErr
}

// buildSource selects the input source. An explicit filelist or mapfile
// disables directory scanning; the mapfile also supplies dataset ids.
func buildSource(cfg *config.Config, opts *options, srcDirs []string) (source.Source, *manifest.Mapfile, error) {
	if opts.filelist != "" {
		src, err := source.NewListSource(opts.filelist, opts.prefix, opts.ignoreZero, ncmeta.Reader{})
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	}

	pattern := opts.filter
	if pattern == "" {
		pattern = cfg.Filter
	}
	if pattern == "" {
		pattern = config.DefaultFilter
	}
	filter, err := regexp.Compile(pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid filter %q: %w", pattern, err)
	}

	if opts.mapfile != "" {
		m, err := manifest.LoadMapfile(opts.mapfile)
		if err != nil {
			return nil, nil, err
		}
		return source.NewMapSource(m, filter, opts.trustMapSize), m, nil
	}

	return source.NewScanSource(srcDirs, filter), nil, nil
}

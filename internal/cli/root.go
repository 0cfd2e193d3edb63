// Package cli builds the ncvault command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped by the build
var version = "dev"

// options collects the flag values of one invocation
type options struct {
	configPath   string
	filelist     string
	mapfile      string
	filter       string
	compare      bool
	overwrite    bool
	move         bool
	dryRun       bool
	output       string
	replica      bool
	syncDB       bool
	prefix       string
	ignoreZero   bool
	checksumList string
	versionList  string
	batch        int
	dirFormat    string
	verbose      bool
	trustMapSize bool
}

// NewRootCmd builds the ncvault root command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "ncvault PROJECT [SRCDIR...]",
		Short: "Archive scientific data files into a versioned tree",
		Long: `ncvault places data files into a versioned archive tree laid out as
root/<slot>/<basename>, where the destination root is derived from each
file's metadata and the numeric slot guarantees that two differing files
never share a name. Re-running over already-archived content is a no-op.

Candidates come from scanning the SRCDIR arguments, from a --filelist of
paths, or from a --map dataset mapfile. A manifest of the archived files
can be written with --output, and --sync-db gates transfers on an
external tracking store.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.filelist, "filelist", "", "read candidate paths from a file, one per line, instead of scanning")
	flags.StringVar(&opts.mapfile, "map", "", "read candidates from a dataset mapfile instead of scanning")
	flags.StringVar(&opts.filter, "filter", "", "base-name filter regex (default matches .nc files)")
	flags.BoolVarP(&opts.compare, "compare", "c", false, "compare slot occupants byte for byte instead of by size")
	flags.BoolVarP(&opts.overwrite, "overwrite", "w", false, "re-transfer into a slot already confirmed content-equal")
	flags.BoolVarP(&opts.move, "move", "m", false, "move files into the archive instead of copying")
	flags.BoolVarP(&opts.dryRun, "dry-run", "n", false, "print the actions a run would take without performing them")
	flags.StringVar(&opts.output, "output", "", "write a manifest of archived files to this path, or - for stdout")
	flags.BoolVarP(&opts.replica, "replica", "r", false, "archive as a replica (replica directory format, product=replica)")
	flags.BoolVar(&opts.syncDB, "sync-db", false, "gate transfers on the tracking store and mark archived files")
	flags.StringVar(&opts.prefix, "prefix", "", "directory joined to relative --filelist paths")
	flags.BoolVar(&opts.ignoreZero, "ignore-zero-length", false, "quiet zero-length skips and press on past unclassifiable files")
	flags.StringVar(&opts.checksumList, "checksum-list", "", "path|checksum file consulted for manifest checksums")
	flags.StringVar(&opts.versionList, "version-list", "", "dataset|version file restricting manifest datasets")
	flags.IntVar(&opts.batch, "batch", 0, "batch label recorded with tracking-store marks")
	flags.StringVar(&opts.dirFormat, "dir-format", "", "named directory format overriding the copy/replica default")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&opts.configPath, "config", "", "config file (default searches ., ./configs and the user config dir)")
	flags.BoolVar(&opts.trustMapSize, "trust-map-size", false, "trust sizes declared in the mapfile instead of re-stating files")

	return cmd
}

// Execute runs the CLI and returns the process exit code
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abramin/symdex/internal/config"
	"github.com/abramin/symdex/internal/index"
)

var indexFlags struct {
	glob           string
	regex          string
	excludeDirs    []string
	excludeImports bool
	noSignatures   bool
	noVectors      bool
	force          bool
	prune          bool
	quietProgress  bool
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index the Python sources under a directory",
	Long: `Scan a directory for Python sources and record their public symbols.

The index command:
- Selects files by glob (default *.py) and optional regex
- Skips files whose content hash is unchanged since the last run
- Extracts functions, classes, variables, imports and module docs
- Publishes documented symbols as descriptions for semantic search
- Persists results to <root>/.symdex/symbols.db`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := rootDir
		if len(args) > 0 {
			path = args[0]
		}
		applyIndexFlags(cmd)

		ws, err := openWorkspace(path, !indexFlags.noVectors)
		if err != nil {
			return err
		}
		defer ws.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ws.text("INDEXING_PANEL", "STATUS_SCANNING_DIRECTORY", nil))

		idx, err := newIndexer(ws, out)
		if err != nil {
			return err
		}

		if indexFlags.prune {
			removed, err := idx.Prune(ctx)
			if err != nil {
				return err
			}
			logger.Info("pruned stale files", "count", len(removed))
		}

		result, err := idx.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return errors.New(ws.text("INDEXING_PANEL", "ERROR_INDEXING_FAILED", map[string]any{"error": err}))
		}
		printResult(ws, out, result)
		return nil
	},
}

func applyIndexFlags(cmd *cobra.Command) {
	cfg.Merge(&config.Config{Index: config.IndexConfig{
		Glob:        indexFlags.glob,
		Regex:       indexFlags.regex,
		ExcludeDirs: indexFlags.excludeDirs,
	}})
	if cmd.Flags().Changed("exclude-imports") {
		cfg.Index.ExcludeImports = indexFlags.excludeImports
	}
	if indexFlags.noSignatures {
		cfg.Index.Signatures = false
	}
}

func newIndexer(ws *workspace, progress io.Writer) (*index.Indexer, error) {
	opts := []index.Option{
		index.WithLogger(logger.With("component", "indexer")),
		index.WithForce(indexFlags.force),
	}
	if p := ws.publisher(); p != nil {
		opts = append(opts, index.WithPublisher(p))
	}
	if !indexFlags.quietProgress {
		opts = append(opts, index.WithProgress(progress))
	}
	return index.NewIndexer(cfg, ws.root, ws.store, opts...)
}

func printResult(ws *workspace, out io.Writer, result *index.Result) {
	if result == nil {
		return
	}
	fmt.Fprintln(out)
	switch {
	case result.Cancelled:
		fmt.Fprintln(out, ws.text("INDEXING_PANEL", "STATUS_INDEXING_CANCELED", nil))
	case result.Files == 0:
		fmt.Fprintln(out, ws.text("INDEXING_PANEL", "MESSAGE_NO_MATCHING_FILES", nil))
	default:
		fmt.Fprintln(out, ws.text("INDEXING_PANEL", "STATUS_INDEXING_COMPLETE", nil))
		fmt.Fprintln(out, ws.text("INDEXING_PANEL", "MESSAGE_INDEXING_SUCCESS", map[string]any{"count": result.Indexed}))
	}

	for _, f := range result.Failures {
		fmt.Fprintln(out, ws.text("INDEXING_PANEL", "ERROR_PROCESSING_FILE", map[string]any{
			"file":  f.RelativePath,
			"error": f.Err,
		}))
	}

	fmt.Fprintf(out, "  Files:     %d (%d unchanged, %d failed)\n", result.Files, result.Unchanged, result.Failed)
	fmt.Fprintf(out, "  Symbols:   %d\n", result.SymbolCount)
	if ws.vectors != nil {
		fmt.Fprintf(out, "  Published: %d (%d skipped, %d failed)\n",
			result.Published.Published, result.Published.Skipped, result.Published.Failed)
	}
	fmt.Fprintf(out, "  Duration:  %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Database:  %s\n", result.DBPath)
}

func addIndexFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&indexFlags.glob, "glob", "g", "", "file glob relative to the root (default from config, *.py)")
	cmd.Flags().StringVar(&indexFlags.regex, "regex", "", "regular expression the file path must match")
	cmd.Flags().StringSliceVar(&indexFlags.excludeDirs, "exclude-dir", nil, "directory names to skip")
	cmd.Flags().BoolVar(&indexFlags.excludeImports, "exclude-imports", false, "leave imported names out of the index")
	cmd.Flags().BoolVar(&indexFlags.noSignatures, "no-signatures", false, "do not record function signatures")
	cmd.Flags().BoolVar(&indexFlags.noVectors, "no-vectors", false, "do not publish descriptions for semantic search")
	cmd.Flags().BoolVarP(&indexFlags.force, "force", "f", false, "re-index files even when unchanged")
	cmd.Flags().BoolVar(&indexFlags.quietProgress, "no-progress", false, "do not print a line per file")
}

func init() {
	rootCmd.AddCommand(indexCmd)
	addIndexFlags(indexCmd)
	indexCmd.Flags().BoolVar(&indexFlags.prune, "prune", false, "remove indexed files that no longer exist first")
}

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abramin/symdex/internal/index"
)

var watchDebounce = index.DefaultDebounce

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index a directory and keep the index current as files change",
	Long: `Run a full index, then watch the directory tree and re-index files
as they are created, modified or removed. Stop with Ctrl-C.`,
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
		idx, err := newIndexer(ws, out)
		if err != nil {
			return err
		}
		result, err := idx.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		printResult(ws, out, result)

		w, err := idx.NewWatcher(watchDebounce, func(fr index.FileResult) {
			if fr.Err != nil {
				fmt.Fprintln(out, ws.text("INDEXING_PANEL", "ERROR_PROCESSING_FILE", map[string]any{
					"file":  fr.RelativePath,
					"error": fr.Err,
				}))
			}
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nWatching %s (Ctrl-C to stop)\n", ws.root)
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addIndexFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", index.DefaultDebounce, "quiet period before a changed file is re-indexed")
}

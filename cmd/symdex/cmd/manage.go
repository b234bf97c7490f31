package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abramin/symdex/internal/report"
)

var (
	reportJSON bool
	vacuum     bool
)

var removeCmd = &cobra.Command{
	Use:   "remove <file>...",
	Short: "Drop files and their symbols from the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(rootDir, true)
		if err != nil {
			return err
		}
		defer ws.Close()

		idx, err := newIndexer(ws, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		for _, arg := range args {
			path, err := resolvePath(arg)
			if err != nil {
				return err
			}
			if _, err := idx.Remove(cmd.Context(), path); err != nil {
				return err
			}
		}
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove indexed files that no longer exist on disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(rootDir, true)
		if err != nil {
			return err
		}
		defer ws.Close()

		idx, err := newIndexer(ws, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		removed, err := idx.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d files\n", len(removed))
		if vacuum {
			return ws.store.Vacuum(cmd.Context())
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every indexed file, symbol and description",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(rootDir, true)
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.store.Clear(cmd.Context()); err != nil {
			return err
		}
		if ws.vectors != nil {
			if err := ws.vectors.Clear(cmd.Context()); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", ws.store.DBPath())
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the indexed symbols of every file under the root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(rootDir, false)
		if err != nil {
			return err
		}
		defer ws.Close()

		rep, err := report.Build(cmd.Context(), ws.store, ws.root)
		if err != nil {
			return err
		}
		if reportJSON {
			return writeJSON(cmd.OutOrStdout(), rep)
		}
		return rep.WriteText(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(removeCmd, pruneCmd, clearCmd, reportCmd)
	pruneCmd.Flags().BoolVar(&vacuum, "vacuum", false, "compact the database afterwards")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print JSON")
}

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abramin/symdex/internal/store"
	"github.com/abramin/symdex/internal/symbols"
	"github.com/abramin/symdex/internal/vector"
)

var (
	asJSON       bool
	searchKind   string
	searchLimit  int
	symbolFile   string
	memberFilter string
	recentFiles  int
	semanticTopK int
	semanticSym  string
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describeSymbol(s *store.Symbol) string {
	switch s.Kind {
	case symbols.KindFunction, symbols.KindMethod:
		return "def " + symbols.FormatCall(s.Name, s.Signature)
	case symbols.KindClass:
		if len(s.Bases) > 0 {
			return "class " + s.Name + "(" + strings.Join(s.Bases, ", ") + ")"
		}
		return "class " + s.Name
	case symbols.KindVariable, symbols.KindAttribute:
		if s.Annotation != "" {
			return s.Name + ": " + s.Annotation
		}
	}
	return s.Name
}

func printSymbols(out io.Writer, syms []*store.Symbol) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range syms {
		fmt.Fprintf(tw, "%s\t%s\t%s:%d\n", describeSymbol(s), s.Kind, s.FilePath, s.Lineno)
	}
	tw.Flush()
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Find symbols whose name or documentation contains a term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(rootDir, false)
		if err != nil {
			return err
		}
		defer ws.Close()
		out := cmd.OutOrStdout()

		if searchKind != "" {
			kind := symbols.Kind(searchKind)
			if !kind.Valid() {
				return fmt.Errorf("unknown kind %q", searchKind)
			}
			syms, err := ws.store.SearchByName(cmd.Context(), args[0], kind)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, syms)
			}
			printSymbols(out, syms)
			return nil
		}

		hits, err := ws.store.SearchSymbols(cmd.Context(), args[0], searchLimit)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, hits)
		}
		if len(hits) == 0 {
			fmt.Fprintln(out, ws.text("WEB", "STATUS_NO_RESULTS", nil))
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, h := range hits {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Name, h.Kind, h.FilePath)
		}
		return tw.Flush()
	},
}

var symbolCmd = &cobra.Command{
	Use:   "symbol <name>",
	Short: "Show every indexed definition of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(rootDir, false)
		if err != nil {
			return err
		}
		defer ws.Close()

		file := symbolFile
		if file != "" {
			if file, err = resolvePath(file); err != nil {
				return err
			}
		}
		syms, err := ws.store.SymbolsByName(cmd.Context(), args[0], file)
		if err != nil {
			return err
		}
		if len(syms) == 0 {
			return fmt.Errorf("symbol %s: %w", args[0], store.ErrNotFound)
		}
		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, syms)
		}
		for _, s := range syms {
			fmt.Fprintf(out, "%s  [%s]  %s:%d\n", describeSymbol(s), s.Kind, s.FilePath, s.Lineno)
			if s.FromClass != "" {
				fmt.Fprintf(out, "  member of %s\n", s.FromClass)
			}
			if s.Doc != "" {
				fmt.Fprintf(out, "  %s\n", strings.ReplaceAll(s.Doc, "\n", "\n  "))
			}
		}
		return nil
	},
}

var classCmd = &cobra.Command{
	Use:   "class <name>",
	Short: "Show a class with its methods and attributes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(rootDir, false)
		if err != nil {
			return err
		}
		defer ws.Close()
		out := cmd.OutOrStdout()

		if memberFilter != "" {
			members, err := ws.store.ClassMembers(cmd.Context(), args[0], store.ParseMemberFilter(memberFilter))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, members)
			}
			printSymbols(out, members)
			return nil
		}

		info, err := ws.store.ClassWithMembers(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, info)
		}
		fmt.Fprintf(out, "%s  %s:%d\n", describeSymbol(info.Class), info.Class.FilePath, info.Class.Lineno)
		if info.Class.Doc != "" {
			fmt.Fprintf(out, "  %s\n", info.Class.Doc)
		}
		fmt.Fprintf(out, "\nMethods (%d):\n", len(info.Methods))
		printSymbols(out, info.Methods)
		fmt.Fprintf(out, "\nAttributes (%d):\n", len(info.Attributes))
		printSymbols(out, info.Attributes)
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List indexed files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(rootDir, false)
		if err != nil {
			return err
		}
		defer ws.Close()

		var files []*store.File
		if recentFiles > 0 {
			files, err = ws.store.RecentFiles(cmd.Context(), recentFiles)
		} else {
			files, err = ws.store.ListFiles(cmd.Context())
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, files)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, f := range files {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Path, f.LastUpdated.Local().Format("2006-01-02 15:04:05"), f.Hash[:min(12, len(f.Hash))])
		}
		return tw.Flush()
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the indexed files as a directory tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(rootDir, false)
		if err != nil {
			return err
		}
		defer ws.Close()

		tree, err := ws.store.DirectoryTree(cmd.Context(), ws.root)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, tree)
		}
		printTree(out, tree, "")
		return nil
	},
}

func printTree(out io.Writer, n *store.DirNode, indent string) {
	fmt.Fprintf(out, "%s%s/\n", indent, n.Name)
	for _, sub := range n.Subdirectories {
		printTree(out, sub, indent+"  ")
	}
	for _, f := range n.Files {
		name := f.RelativePath
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		fmt.Fprintf(out, "%s  %s\n", indent, name)
	}
}

var semanticCmd = &cobra.Command{
	Use:   "semantic <query>",
	Short: "Find symbols whose description is closest to a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(rootDir, true)
		if err != nil {
			return err
		}
		defer ws.Close()
		if ws.vectors == nil {
			return errors.New("semantic search needs vector.enabled in the config")
		}

		var filter *vector.Filter
		if semanticSym != "" {
			filter = &vector.Filter{Symbol: semanticSym}
		}
		matches, err := ws.vectors.Query(cmd.Context(), args[0], semanticTopK, filter)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, matches)
		}
		if len(matches) == 0 {
			fmt.Fprintln(out, ws.text("WEB", "STATUS_NO_RESULTS", nil))
			return nil
		}
		for i, m := range matches {
			fmt.Fprintf(out, "%d. %s  (%.3f)  %s\n", i+1, m.Symbol, m.Score, m.Source)
			fmt.Fprintf(out, "   %s\n", strings.ReplaceAll(m.Document.Document, "\n", "\n   "))
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, symbolCmd, classCmd, filesCmd, treeCmd, semanticCmd} {
		c.Flags().BoolVar(&asJSON, "json", false, "print JSON")
		rootCmd.AddCommand(c)
	}
	searchCmd.Flags().StringVarP(&searchKind, "kind", "k", "", "only names of this kind (function, class, variable, method, attribute, import, module_doc)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum number of results")
	symbolCmd.Flags().StringVar(&symbolFile, "file", "", "only definitions in this file")
	classCmd.Flags().StringVar(&memberFilter, "members", "", "list only members: method, attribute or any")
	filesCmd.Flags().IntVar(&recentFiles, "recent", 0, "only the N most recently indexed files")
	semanticCmd.Flags().IntVarP(&semanticTopK, "top", "n", 5, "number of results")
	semanticCmd.Flags().StringVar(&semanticSym, "symbol", "", "only descriptions of this symbol")
}

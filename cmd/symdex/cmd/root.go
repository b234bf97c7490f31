package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abramin/symdex/internal/config"
	"github.com/abramin/symdex/internal/i18n"
	"github.com/abramin/symdex/internal/logging"
	"github.com/abramin/symdex/internal/store"
	"github.com/abramin/symdex/internal/vector"
)

var (
	cfgFile   string
	rootDir   string
	verbosity int
	quiet     bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "symdex",
	Short: "symdex - index the symbols of Python source trees",
	Long: `symdex walks a directory of Python sources and records every public
module-level symbol: functions with their signatures, classes with their
methods and attributes, variables, imports and module docstrings.

The index lives in a SQLite database under <root>/.symdex and can be queried
from the command line or through the local web UI. Documented symbols are
also published as natural-language descriptions for semantic search.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := logging.ParseLevel(cfg.Log.Level)
		if cmd.Flags().Changed("verbose") || cmd.Flags().Changed("quiet") {
			level = logging.LevelFromVerbosity(verbosity, quiet)
		}
		logger = logging.New(cmd.ErrOrStderr(), level)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./symdex.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", ".", "indexed root directory")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all log output")
}

// resolvePath makes path absolute and resolves its symlinks when it exists,
// matching the form of the paths stored in the index.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// workspace bundles the stores of one indexed root.
type workspace struct {
	root    string
	store   *store.Store
	vectors *vector.Store
	bundle  *i18n.Bundle
	lang    string
}

// openWorkspace validates the configuration and opens the databases for
// root. The vector store is only opened when vectors are enabled and
// withVectors is set.
func openWorkspace(root string, withVectors bool) (*workspace, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	abs, err := resolvePath(root)
	if err != nil {
		return nil, err
	}
	bundle, err := i18n.Load()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath(abs))
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	ws := &workspace{
		root:   abs,
		store:  st,
		bundle: bundle,
		lang:   bundle.Match(cfg.UI.Language),
	}

	if withVectors && cfg.Vector.Enabled {
		embedder, err := newEmbedder(cfg.Vector)
		if err != nil {
			st.Close()
			return nil, err
		}
		ws.vectors, err = vector.Open(cfg.VectorPath(abs), cfg.Vector.Collection, embedder)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("opening vector store: %w", err)
		}
	}
	return ws, nil
}

func (ws *workspace) publisher() *vector.Publisher {
	if ws.vectors == nil {
		return nil
	}
	return vector.NewPublisher(ws.vectors, cfg.Vector.MinDocLength, logger.With("component", "publisher"))
}

// text returns a localized string of the CLI catalogs.
func (ws *workspace) text(section, key string, args map[string]any) string {
	return ws.bundle.Format(ws.lang, section, key, args)
}

func (ws *workspace) Close() {
	if ws.vectors != nil {
		if err := ws.vectors.Close(); err != nil {
			logger.Warn("closing vector store", "error", err)
		}
	}
	if err := ws.store.Close(); err != nil {
		logger.Warn("closing index", "error", err)
	}
}

func newEmbedder(vc config.VectorConfig) (vector.Embedder, error) {
	switch vc.Provider {
	case config.ProviderOpenAI:
		return vector.NewOpenAIEmbedder(vector.OpenAIConfig{
			APIKey:     vc.APIKey,
			BaseURL:    vc.BaseURL,
			Model:      vc.Model,
			Dimensions: vc.Dimensions,
		})
	default:
		return vector.NewHashEmbedder(vc.Dimensions), nil
	}
}

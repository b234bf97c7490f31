package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abramin/symdex/internal/index"
	"github.com/abramin/symdex/internal/server"
)

var (
	uiHost string
	uiPort int
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Start the symdex UI server",
	Long: `Start a local HTTP server over the index of the root directory.

The UI provides:
- Substring and semantic symbol search
- Recently indexed files and index statistics
- A JSON API for files, symbols, classes and the directory tree
- POST /api/index to re-index without leaving the browser`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = uiHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = uiPort
		}

		ws, err := openWorkspace(rootDir, true)
		if err != nil {
			return err
		}
		defer ws.Close()

		srv, err := server.New(server.Config{
			Host:     cfg.Server.Host,
			Port:     cfg.Server.Port,
			Root:     ws.root,
			Language: ws.lang,
			Store:    ws.store,
			Vectors:  ws.vectors,
			Bundle:   ws.bundle,
			Logger:   logger.With("component", "server"),
			Indexer: func(force bool) (*index.Indexer, error) {
				opts := []index.Option{
					index.WithLogger(logger.With("component", "indexer")),
					index.WithForce(force),
				}
				if p := ws.publisher(); p != nil {
					opts = append(opts, index.WithPublisher(p))
				}
				return index.NewIndexer(cfg, ws.root, ws.store, opts...)
			},
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cmd.Printf("Serving %s on http://%s:%d\n", ws.root, cfg.Server.Host, srv.Port())
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(uiCmd)
	uiCmd.Flags().StringVar(&uiHost, "host", "127.0.0.1", "address to listen on")
	uiCmd.Flags().IntVarP(&uiPort, "port", "p", 8080, "port to run the UI server on")
}

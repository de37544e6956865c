package cmd

import (
	"github.com/spf13/cobra"

	"dbrestore/internal/api"
	"dbrestore/internal/restore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the restore HTTP API",
	Long: `Start the HTTP API. POST /api/restore starts a background restore and
returns a job id; GET /api/restore/{id} reports its progress and result.

The API performs no authentication of its own and must sit behind an
authenticating proxy.

Examples:
  dbrestore serve --listen :8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default LISTEN_ADDR or :8080)")
}

var serveListen string

func runServe(cmd *cobra.Command, args []string) error {
	addr := cfg.ListenAddr
	if serveListen != "" {
		addr = serveListen
	}
	engine := restore.NewEngine(cfg, osFs, log)
	srv := api.NewServer(engine, nil, log)
	return srv.ListenAndServe(cmd.Context(), addr)
}

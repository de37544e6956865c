package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := map[string]string{
			"version":    cfg.Version,
			"build_time": cfg.BuildTime,
			"git_commit": cfg.GitCommit,
			"go_version": runtime.Version(),
			"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		}
		w := cmd.OutOrStdout()
		if versionJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(w, "dbrestore %s\n", info["version"])
		fmt.Fprintf(w, "  commit:   %s\n", info["git_commit"])
		fmt.Fprintf(w, "  built:    %s\n", info["build_time"])
		fmt.Fprintf(w, "  go:       %s\n", info["go_version"])
		fmt.Fprintf(w, "  platform: %s\n", info["platform"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output as JSON")
}

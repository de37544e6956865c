package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dbrestore/internal/report"
	"dbrestore/internal/restore"
	"dbrestore/internal/staging"
)

var (
	restoreDir    string
	restoreBackup string
	restoreSource string
	restoreTarget string
	restoreMode   string
	restoreFormat string
	restoreStrict bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a backup into a database and object storage",
	Long: `Restore a backup directory.

Sources:
  upload       an already extracted directory (--dir), restored in place
  history      a backup under BACKUP_DIR (--backup), copied to a workspace
  incremental  like history, but only adds missing rows and objects

Targets: local and prod connect directly, managed goes through the
single-statement RPC endpoint.

Examples:
  # Restore an uploaded backup, replacing table contents
  dbrestore restore --dir ./extracted --target local --mode overwrite

  # Incremental restore of a nightly backup into production
  dbrestore restore --source incremental --backup nightly-2024-05-01 --target prod

  # JSON report for automation
  dbrestore restore --dir ./extracted --target managed --format json`,
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	f := restoreCmd.Flags()
	f.StringVar(&restoreDir, "dir", "", "Extracted backup directory (upload source)")
	f.StringVar(&restoreBackup, "backup", "", "Backup name under BACKUP_DIR (history and incremental sources)")
	f.StringVar(&restoreSource, "source", "", "Source kind: upload, history, incremental (inferred from --dir/--backup)")
	f.StringVar(&restoreTarget, "target", "local", "Database target: local, managed, prod")
	f.StringVar(&restoreMode, "mode", "append", "Restore mode: append or overwrite")
	f.StringVar(&restoreFormat, "format", "text", "Report format (text, json, markdown)")
	f.BoolVar(&restoreStrict, "strict", false, "Exit non-zero when any statement, row or object failed")
	restoreCmd.MarkFlagsMutuallyExclusive("dir", "backup")
}

func runRestore(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(restoreFormat)
	if err != nil {
		return err
	}
	req, err := buildRequest()
	if err != nil {
		return err
	}

	engine := restore.NewEngine(cfg, osFs, log)
	result, err := engine.Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	if err := writeRestoreReport(cmd.OutOrStdout(), result, format); err != nil {
		return err
	}
	if restoreStrict && resultHasFailures(result) {
		return ErrPartialFailure
	}
	return nil
}

// ErrPartialFailure is returned with --strict when the run completed but
// something in it failed
var ErrPartialFailure = errors.New("restore finished with failures")

func buildRequest() (restore.Request, error) {
	source := restoreSource
	path := restoreDir
	switch {
	case restoreDir != "" && source == "":
		source = string(staging.SourceUpload)
	case restoreBackup != "":
		path = restoreBackup
		if source == "" {
			source = string(staging.SourceHistory)
		}
	}
	req := restore.Request{
		Source: staging.SourceKind(source),
		Target: restore.DatabaseTarget(restoreTarget),
		Mode:   restore.Mode(restoreMode),
		Path:   path,
	}
	return req, req.Validate()
}

func resultHasFailures(r *restore.Result) bool {
	if r.DatabaseRestore != nil && r.DatabaseRestore.HasFailures() {
		return true
	}
	return r.Storage != nil && r.Storage.HasFailures()
}

func writeRestoreReport(w io.Writer, r *restore.Result, format report.OutputFormat) error {
	if format == report.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	title := fmt.Sprintf("Database restore (%s, %s)", formatLabel(r.Format), r.Mode)
	if r.DatabaseRestore != nil {
		if err := report.Render(w, title, r.DatabaseRestore, format); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, "No database dump in backup")
	}

	if len(r.Tables) > 0 {
		fmt.Fprintln(w)
		for _, t := range r.Tables {
			fmt.Fprintf(w, "  %s %-30s %8d rows", statusMark(t.Status), t.Name, t.Inserted)
			if t.FailedRows > 0 {
				fmt.Fprintf(w, ", %d failed", t.FailedRows)
			}
			if t.Error != "" {
				fmt.Fprintf(w, "  (%s)", t.Error)
			}
			fmt.Fprintln(w)
		}
	}

	if r.Storage != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Storage: %d uploaded, %d skipped, %d failed\n",
			r.Storage.Uploaded, r.Storage.Skipped, r.Storage.Failed)
		for _, b := range r.Storage.Buckets {
			status := report.StatusSucceeded
			if b.Error != "" || b.Failed > 0 {
				status = report.StatusFailed
			}
			fmt.Fprintf(w, "  %s %-30s %d uploaded (%s), %d skipped",
				statusMark(status), b.Bucket, b.Uploaded, humanize.Bytes(uint64(b.Bytes)), b.Skipped)
			if b.Error != "" {
				fmt.Fprintf(w, "  (%s)", b.Error)
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintf(w, "\nCompleted in %s\n", r.Duration.Round(time.Millisecond))
	return nil
}

func formatLabel(f restore.Format) string {
	if f == restore.FormatNone {
		return "none"
	}
	return string(f)
}

func statusMark(s report.Status) string {
	switch s {
	case report.StatusSucceeded:
		return color.GreenString("[OK]")
	case report.StatusSkipped:
		return color.YellowString("[--]")
	default:
		return color.RedString("[FAIL]")
	}
}


package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"dbrestore/internal/fs"
	"dbrestore/internal/ndjson"
	"dbrestore/internal/restore"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <backup-dir>",
	Short: "Show what a restore of a backup directory would do",
	Long: `Detect the dump format of a backup directory and list its tables and
storage buckets without touching any database.

Examples:
  dbrestore inspect ./extracted
  dbrestore inspect ./extracted --json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")
}

type inspection struct {
	Dir       string                   `json:"dir"`
	Format    restore.Format           `json:"format"`
	SQLFile   string                   `json:"sql_file,omitempty"`
	HasSchema bool                     `json:"has_schema"`
	Tables    []ndjson.TableDescriptor `json:"tables,omitempty"`
	Buckets   []bucketInfo             `json:"buckets,omitempty"`
}

type bucketInfo struct {
	Name  string `json:"name"`
	Bytes int64  `json:"bytes"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	info, err := inspectBackup(osFs, args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if inspectJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(w, "Backup:  %s\n", info.Dir)
	fmt.Fprintf(w, "Format:  %s\n", formatLabel(info.Format))
	if info.SQLFile != "" {
		fmt.Fprintf(w, "Script:  %s\n", info.SQLFile)
	}
	if info.Format == restore.FormatNDJSON {
		fmt.Fprintf(w, "Schema:  %v\n", info.HasSchema)
		fmt.Fprintf(w, "Tables:  %d\n", len(info.Tables))
		for _, t := range info.Tables {
			fmt.Fprintf(w, "  %-30s %s (%s rows)\n", t.Name, t.DataFile, humanize.Comma(t.Rows))
		}
	}
	fmt.Fprintf(w, "Buckets: %d\n", len(info.Buckets))
	for _, b := range info.Buckets {
		fmt.Fprintf(w, "  %-30s %s\n", b.Name, humanize.Bytes(uint64(b.Bytes)))
	}
	return nil
}

func inspectBackup(fsys afero.Fs, dir string) (*inspection, error) {
	detection, err := restore.DetectFormat(fsys, dir)
	if err != nil {
		return nil, err
	}
	info := &inspection{Dir: dir, Format: detection.Format, SQLFile: detection.SQLFile}
	if detection.Manifest != nil {
		info.Tables = detection.Manifest.Tables
		info.HasSchema, _ = afero.Exists(fsys, filepath.Join(dir, ndjson.SchemaFile))
	}

	storageDir := filepath.Join(dir, restore.StorageDir)
	entries, err := afero.ReadDir(fsys, storageDir)
	if err != nil {
		// no storage tree
		return info, nil
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		size, err := fs.TreeSize(fsys, filepath.Join(storageDir, e.Name()))
		if err != nil {
			return nil, err
		}
		info.Buckets = append(info.Buckets, bucketInfo{Name: e.Name(), Bytes: size})
	}
	return info, nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"dbrestore/internal/compression"
	"dbrestore/internal/repair"
	"dbrestore/internal/sqlscan"
)

var (
	repairOutput string
	splitJSON    bool
	splitRepair  bool
)

var repairCmd = &cobra.Command{
	Use:   "repair <file.sql[.gz|.zst]>",
	Short: "Rewrite malformed literals in a SQL dump",
	Long: `Run the literal repair passes over a SQL script and print the result.

The output file is compressed when its name ends in .gz or .zst.

Examples:
  dbrestore repair dump.sql > fixed.sql
  dbrestore repair dump.sql.gz --output fixed.sql.zst`,
	Args: cobra.ExactArgs(1),
	RunE: runRepair,
}

var splitCmd = &cobra.Command{
	Use:   "split <file.sql[.gz|.zst]>",
	Short: "Print the statements of a SQL script one per block",
	Long: `Split a SQL script into statements on semicolons outside quotes,
dollar-quoted bodies and comments.

Examples:
  dbrestore split dump.sql
  dbrestore split dump.sql.gz --repair --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(repairCmd, splitCmd)
	repairCmd.Flags().StringVarP(&repairOutput, "output", "o", "", "Write to a file instead of stdout")
	splitCmd.Flags().BoolVar(&splitJSON, "json", false, "Print statements as a JSON array")
	splitCmd.Flags().BoolVar(&splitRepair, "repair", false, "Repair literals before splitting")
}

func runRepair(cmd *cobra.Command, args []string) error {
	script, err := readSQL(osFs, args[0])
	if err != nil {
		return err
	}
	repaired := repair.New(log).Repair(script)

	if repairOutput == "" {
		_, err = io.WriteString(cmd.OutOrStdout(), repaired)
		return err
	}
	if err := writeSQL(osFs, repairOutput, repaired); err != nil {
		return err
	}
	log.Info("Repaired script written", "input", args[0], "output", repairOutput)
	return nil
}

func runSplit(cmd *cobra.Command, args []string) error {
	script, err := readSQL(osFs, args[0])
	if err != nil {
		return err
	}
	if splitRepair {
		script = repair.New(log).Repair(script)
	}
	statements := sqlscan.Split(script)

	w := cmd.OutOrStdout()
	if splitJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(statements)
	}
	for i, stmt := range statements {
		fmt.Fprintf(w, "-- [%d]\n%s;\n\n", i+1, stmt)
	}
	return nil
}

// readSQL reads a possibly compressed script
func readSQL(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	dec, err := compression.NewDecompressor(f, path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer dec.Close()

	var sb strings.Builder
	if _, err := io.Copy(&sb, dec); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return sb.String(), nil
}

func writeSQL(fsys afero.Fs, path, script string) error {
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	comp, err := compression.NewCompressor(f, path)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := io.WriteString(comp, script); err != nil {
		comp.Close()
		f.Close()
		return err
	}
	if err := comp.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

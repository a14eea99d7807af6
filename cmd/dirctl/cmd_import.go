package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/datanorm"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

var (
	importCommit bool
	importJSON   bool
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Preview a CSV/XLSX listing upload, optionally committing it",
	Long: `Maps, normalizes and validates every row of the file and prints the
preview. With --commit the valid rows are upserted and the batch is logged.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importCommit, "commit", false, "upsert valid rows into the database")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "print the preview as JSON")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	normCfg := datanorm.Config{
		LocationPlaceholder: cfg.Import.LocationPlaceholder,
		MaxRows:             cfg.Import.MaxRows,
	}

	preview, err := datanorm.NewImporter(nil, normCfg).Preview(cmd.Context(), datanorm.Upload{
		Filename: filepath.Base(path),
		Body:     f,
	})
	if err != nil {
		return err
	}
	logger.Info("preview ready",
		zap.String("file", preview.SourceFile),
		zap.Int("valid", preview.ValidCount),
		zap.Int("invalid", preview.InvalidCount),
		zap.Strings("unmapped_headers", preview.UnmappedHeaders))

	out := cmd.OutOrStdout()
	if !importCommit {
		if importJSON {
			return writeJSON(out, preview)
		}
		printPreview(out, preview)
		return nil
	}

	if preview.ValidCount == 0 {
		return fmt.Errorf("%s has no valid rows to commit", preview.SourceFile)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, commitErr := a.Importer.Commit(cmd.Context(), preview.SourceFile, preview.ValidRecords())
	if res != nil {
		if err := a.ImportLogs.Save(cmd.Context(), res); err != nil {
			logger.Warn("import log not saved", zap.Error(err))
		}
		if importJSON {
			if err := writeJSON(out, res); err != nil {
				return err
			}
		} else {
			printResult(out, res)
		}
	}
	return commitErr
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPreview(w io.Writer, p *datanorm.Preview) {
	fmt.Fprintf(w, "%s: %d valid, %d invalid\n", p.SourceFile, p.ValidCount, p.InvalidCount)
	if len(p.UnmappedHeaders) > 0 {
		fmt.Fprintf(w, "ignored columns: %s\n", strings.Join(p.UnmappedHeaders, ", "))
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tVALID\tBUSINESS\tSPECIALTY\tLOCATION\tPROBLEMS")
	for _, r := range p.Records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Row, yesNo(r.IsValid), r.BusinessName, r.Specialty, r.Location,
			strings.Join(append(append([]string{}, r.Errors...), r.Warnings...), "; "))
	}
	tw.Flush()
}

func printResult(w io.Writer, res *domain.ImportBatchResult) {
	fmt.Fprintf(w, "%s: %d succeeded, %d failed, %d invalid (%s)\n",
		res.SourceFile, res.Succeeded, res.Failed, res.Invalid, res.Duration.Round(1e6))
	for _, e := range res.RowErrors {
		fmt.Fprintf(w, "  row %d [%s]: %s\n", e.Row, e.Stage, e.Reason)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

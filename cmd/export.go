package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/review-pulse/internal/model"
)

var (
	exportOutput string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the classified window to CSV or XLSX",
	Long: `Writes every review in the current window, including its theme and
sentiment columns, to a spreadsheet. The format is inferred from the output
extension unless --format is set.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "export: migrate store")
		}

		window := model.WindowEndingAt(time.Now(), cfg.Pulse.WindowWeeks)
		reviews, err := st.ReviewsInWindow(ctx, window)
		if err != nil {
			return eris.Wrap(err, "export: load window")
		}
		if len(reviews) == 0 {
			zap.L().Warn("no reviews in window, nothing to export")
			return nil
		}

		format := exportFormat
		if format == "" {
			format = formatFromPath(exportOutput)
		}

		rows := exportRows(reviews)
		switch format {
		case "csv":
			err = writeCSV(exportOutput, rows)
		case "xlsx":
			err = writeXLSX(exportOutput, rows)
		default:
			return eris.Errorf("export: unsupported format %q (want csv or xlsx)", format)
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("path", exportOutput),
			zap.String("format", format),
			zap.Int("reviews", len(reviews)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "reviews.csv", "output file path")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "output format: csv or xlsx (default: from extension)")
	rootCmd.AddCommand(exportCmd)
}

// exportColumns is the header row for both formats.
var exportColumns = []string{
	"source", "fingerprint", "review_id", "date", "rating", "content",
	"app_version", "thumbs_up", "theme", "sentiment", "sentiment_score", "confidence",
}

// formatFromPath infers the export format from the file extension,
// defaulting to csv.
func formatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return "xlsx"
	}
	return "csv"
}

// exportRows maps classified reviews to spreadsheet rows, header first.
func exportRows(reviews []model.ClassifiedReview) [][]string {
	rows := make([][]string, 0, len(reviews)+1)
	rows = append(rows, exportColumns)

	for _, r := range reviews {
		rows = append(rows, []string{
			string(r.Source),
			r.Fingerprint,
			r.ExternalID,
			r.Date.UTC().Format(time.RFC3339),
			strconv.Itoa(r.Rating),
			r.Content,
			r.AppVersion,
			strconv.Itoa(r.ThumbsUp),
			r.Theme,
			string(r.Sentiment),
			strconv.FormatFloat(r.SentimentScore, 'f', 2, 64),
			strconv.FormatFloat(r.Confidence, 'f', 2, 64),
		})
	}
	return rows
}

// writeCSV writes rows to a CSV file.
func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	defer w.Flush()

	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	return w.Error()
}

// writeXLSX writes rows to a single-sheet XLSX file.
func writeXLSX(path string, rows [][]string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Reviews")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().Value = v
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "export: save xlsx")
	}
	return nil
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forenx/sentinel/internal/batch"
	"github.com/forenx/sentinel/internal/models"
)

var (
	analyzeFrom     string
	analyzeTo       string
	analyzeWorkers  int
	analyzeFormat   string
	analyzeFilter   string
	analyzeExport   string
	analyzeExportTo string
	analyzeTopN     int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file...]",
	Short: "Batch analyze log files for attacks",
	Long: `Parse log files and run attack detection over each one, with date
range filtering and parallel processing.

Supports glob patterns for analyzing multiple files at once, and
transparent gzip decompression for .gz files. Generates a merged
report of parse statistics, alerts by attack type, and top attacking
IPs, with optional export to CSV or JSON.

Examples:
  # Analyze logs from January 2024
  sentinelctl analyze /var/log/*.log --from 2024-01-01 --to 2024-01-31

  # Analyze with JSON output
  sentinelctl analyze /var/log/nginx/*.log -o json

  # Parallel processing with 8 workers
  sentinelctl analyze /var/log/*.log --workers 8

  # Export results to CSV
  sentinelctl analyze /var/log/*.log --export csv --export-to report.csv

  # Only entries matching a filter expression
  sentinelctl analyze /var/log/*.log --filter 'status >= 400 && method == "POST"'

  # Force a log format instead of auto-detecting
  sentinelctl analyze /var/log/*.log --format combined`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeFrom, "from", "", "filter entries after date (YYYY-MM-DD or RFC3339)")
	analyzeCmd.Flags().StringVar(&analyzeTo, "to", "", "filter entries before date (YYYY-MM-DD or RFC3339)")
	analyzeCmd.Flags().IntVar(&analyzeWorkers, "workers", 0, "number of parallel workers (0 = auto)")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "", "log format (combined, main, extended, error; empty = auto-detect)")
	analyzeCmd.Flags().StringVar(&analyzeFilter, "filter", "", "entry filter expression")
	analyzeCmd.Flags().StringVar(&analyzeExport, "export", "", "export format (json, csv)")
	analyzeCmd.Flags().StringVar(&analyzeExportTo, "export-to", "", "export file path (default: stdout)")
	analyzeCmd.Flags().IntVarP(&analyzeTopN, "top", "n", 0, "ranked list depth in the summary (0 = default)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	// Parse date flags
	from, err := batch.ParseDateFlag(analyzeFrom)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}

	to, err := batch.ParseDateFlagEndOfDay(analyzeTo)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	var format models.LogFormat
	if analyzeFormat != "" {
		format = models.ParseLogFormat(analyzeFormat)
	}

	opts := batch.Options{
		Workers: analyzeWorkers,
		Format:  format,
		From:    from,
		To:      to,
		Filter:  analyzeFilter,
		TopN:    analyzeTopN,
		Verbose: IsVerbose(),
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		PrintVerbose("Received interrupt, stopping...")
		cancel()
	}()

	analyzer, err := batch.NewAnalyzer(opts)
	if err != nil {
		return err
	}

	PrintVerbose("Analyzing files...")

	report, err := analyzer.Analyze(ctx, args)
	if err != nil {
		return err
	}

	// Handle export if requested
	if analyzeExport != "" {
		exportFormat, err := batch.ParseExportFormat(analyzeExport)
		if err != nil {
			return err
		}

		var writer = os.Stdout
		if analyzeExportTo != "" {
			file, err := os.Create(analyzeExportTo)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer file.Close()
			writer = file
		}

		exporter := batch.NewExporter(writer)
		if err := exporter.ExportReport(report, exportFormat); err != nil {
			return fmt.Errorf("export: %w", err)
		}

		if analyzeExportTo != "" {
			PrintVerbose("Report exported to %s", analyzeExportTo)
		}
		return nil
	}

	// Output report based on format
	outputReport(report)
	return nil
}

func outputReport(report *batch.Report) {
	switch GetOutput() {
	case "json":
		outputReportJSON(report)
	case "plain":
		outputReportPlain(report)
	default:
		outputReportTable(report)
	}
}

func outputReportJSON(report *batch.Report) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		PrintError(fmt.Sprintf("failed to marshal JSON: %v", err), false)
		return
	}
	fmt.Println(string(data))
}

func outputReportPlain(report *batch.Report) {
	s := report.Summary
	fmt.Printf("Files: %d | Entries: %d | Skipped: %d | Alerts: %d\n",
		s.TotalFiles, s.TotalEntries, s.SkippedLines, s.TotalAlerts)
	fmt.Printf("Duration: %v | Throughput: %.0f entries/sec\n",
		report.Duration.Round(1e6), s.EntriesPerSec)
}

func outputReportTable(report *batch.Report) {
	s := report.Summary

	// Header
	fmt.Println()
	fmt.Println("Batch Analysis Report")
	fmt.Println("=====================")

	// Date range
	if report.DateRange != nil {
		if report.DateRange.Filtered {
			fmt.Printf("Date Filter: %s -> %s\n",
				report.DateRange.From.Format("2006-01-02 15:04:05"),
				report.DateRange.To.Format("2006-01-02 15:04:05"))
		}
		if !report.DateRange.Earliest.IsZero() {
			fmt.Printf("Actual Range: %s -> %s\n",
				report.DateRange.Earliest.Format("2006-01-02 15:04:05"),
				report.DateRange.Latest.Format("2006-01-02 15:04:05"))
		}
	}

	fmt.Printf("Files: %d | Duration: %v | Throughput: %.0f entries/sec\n",
		s.TotalFiles, report.Duration.Round(1e6), s.EntriesPerSec)
	fmt.Println()

	// Summary
	fmt.Println("Summary:")
	fmt.Printf("  Total Entries:    %d\n", s.TotalEntries)
	fmt.Printf("  Error Responses:  %d (%.1f%%)\n", s.ErrorResponses, s.ErrorPercentage())
	fmt.Printf("  Skipped Lines:    %d\n", s.SkippedLines)
	fmt.Printf("  Total Alerts:     %d\n", s.TotalAlerts)
	fmt.Println()

	// Alerts by attack type
	if len(s.AlertCounts) > 0 {
		fmt.Println("Alerts by Type:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  TYPE\tCOUNT\t%%\n")
		fmt.Fprintf(w, "  ----\t-----\t-\n")

		// Sort types for consistent output
		types := sortedKeys(s.AlertCounts)
		for _, typ := range types {
			count := s.AlertCounts[typ]
			pct := s.AlertPercentage(typ)
			fmt.Fprintf(w, "  %s\t%d\t%.1f%%\n", typ, count, pct)
		}
		w.Flush()
		fmt.Println()
	}

	// Status classes
	if len(s.StatusClasses) > 0 {
		fmt.Println("By Status Class:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  CLASS\tCOUNT\n")
		fmt.Fprintf(w, "  -----\t-----\n")

		classes := sortedKeys(s.StatusClasses)
		for _, class := range classes {
			fmt.Fprintf(w, "  %s\t%d\n", class, s.StatusClasses[class])
		}
		w.Flush()
		fmt.Println()
	}

	// Top attackers
	if len(s.TopAttackers) > 0 {
		fmt.Println("Top Attacking IPs:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  CLIENT\tALERTS\n")
		fmt.Fprintf(w, "  ------\t------\n")

		for _, item := range s.TopAttackers {
			fmt.Fprintf(w, "  %s\t%d\n", item.Value, item.Count)
		}
		w.Flush()
		fmt.Println()
	}

	// Errors
	if len(report.Errors) > 0 {
		fmt.Printf("Warnings (%d):\n", len(report.Errors))
		for i, err := range report.Errors {
			if i >= 5 {
				fmt.Printf("  ... and %d more\n", len(report.Errors)-5)
				break
			}
			fmt.Printf("  - %s\n", err)
		}
		fmt.Println()
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

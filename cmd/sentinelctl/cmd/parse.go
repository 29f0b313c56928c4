package cmd

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forenx/sentinel/internal/models"
	"github.com/forenx/sentinel/internal/parser"
)

var (
	parseFormat string
	parseLimit  int
	parseRaw    bool
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a log file",
	Long: `Parse a log file into structured entries and dump them.

The format is auto-detected from the first portion of the file unless
--format is given. Unparseable lines are skipped and counted. Files
with a .gz suffix are decompressed transparently.

Supported formats:
  combined   - IP, timestamp, request, status, bytes, referrer, user agent
  main       - IP, timestamp, request, status, bytes
  extended   - combined + host
  error      - nginx-style error log

Examples:
  # Parse an access log, auto-detecting the format
  sentinelctl parse /var/log/nginx/access.log

  # Parse with JSON output
  sentinelctl parse /var/log/nginx/access.log -o json

  # Parse first 10 entries only
  sentinelctl parse /var/log/nginx/access.log --limit 10

  # Force the error-log grammar
  sentinelctl parse /var/log/nginx/error.log --format error`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", "", "log format (combined, main, extended, error; empty = auto-detect)")
	parseCmd.Flags().IntVarP(&parseLimit, "limit", "n", 0, "limit number of entries to show (0 = no limit)")
	parseCmd.Flags().BoolVar(&parseRaw, "raw", false, "show raw log line instead of parsed fields")
}

func runParse(cmd *cobra.Command, args []string) error {
	text, err := readFile(args[0])
	if err != nil {
		return err
	}

	var format models.LogFormat
	if parseFormat != "" {
		format = models.ParseLogFormat(parseFormat)
	} else {
		sample := text
		if len(sample) > parser.DetectSampleSize {
			sample = sample[:parser.DetectSampleSize]
		}
		format = parser.DetectFormat(sample)
		PrintVerbose("Auto-detected format: %s", format)
	}

	if format == models.FormatError {
		entries, stats := parser.ParseErrorLog(text)
		if parseLimit > 0 && len(entries) > parseLimit {
			entries = entries[:parseLimit]
		}
		outputErrorEntries(entries, stats)
		return nil
	}

	entries, stats := parser.ParseAccessLog(text, format)
	if parseLimit > 0 && len(entries) > parseLimit {
		entries = entries[:parseLimit]
	}
	outputAccessEntries(entries, stats)
	return nil
}

// readFile reads a log file into memory, decompressing .gz files.
func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("open gzip: %w", err)
		}
		defer gz.Close()
		data, err = io.ReadAll(gz)
		if err != nil {
			return "", fmt.Errorf("decompress: %w", err)
		}
	}

	return string(data), nil
}

func outputAccessEntries(entries []models.LogEntry, stats parser.Stats) {
	if len(entries) == 0 {
		fmt.Println("No entries parsed.")
		printStats(stats)
		return
	}

	switch GetOutput() {
	case "json":
		outputJSON(entries)
	case "plain":
		for i := range entries {
			e := &entries[i]
			if parseRaw {
				fmt.Println(e.Raw)
				continue
			}
			fmt.Printf("%s %s %s %s %d %d\n",
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.ClientIP, e.Method, e.RequestTarget(), e.Status, e.BytesSent)
		}
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "TIMESTAMP\tCLIENT\tMETHOD\tENDPOINT\tSTATUS\tBYTES\n")
		fmt.Fprintf(w, "---------\t------\t------\t--------\t------\t-----\n")
		for i := range entries {
			e := &entries[i]
			target := e.RequestTarget()
			if len(target) > 60 {
				target = target[:57] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.ClientIP, e.Method, target, e.Status, e.BytesSent)
		}
		w.Flush()
	}

	printStats(stats)
}

func outputErrorEntries(entries []models.ErrorLogEntry, stats parser.Stats) {
	if len(entries) == 0 {
		fmt.Println("No entries parsed.")
		printStats(stats)
		return
	}

	switch GetOutput() {
	case "json":
		outputJSON(entries)
	case "plain":
		for i := range entries {
			e := &entries[i]
			fmt.Printf("%s [%s] %s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.Level, e.Message)
		}
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "TIMESTAMP\tLEVEL\tCLIENT\tMESSAGE\n")
		fmt.Fprintf(w, "---------\t-----\t------\t-------\n")
		for i := range entries {
			e := &entries[i]
			message := e.Message
			if len(message) > 70 {
				message = message[:67] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.Level, e.Client, message)
		}
		w.Flush()
	}

	printStats(stats)
}

func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		PrintError(fmt.Sprintf("failed to marshal JSON: %v", err), true)
		return
	}
	fmt.Println(string(data))
}

func printStats(stats parser.Stats) {
	fmt.Printf("\nParsed: %d | Skipped: %d", stats.Parsed, stats.Skipped())
	if stats.BadTimestamps > 0 {
		fmt.Printf(" (%d with unparsable timestamps)", stats.BadTimestamps)
	}
	fmt.Println()
}

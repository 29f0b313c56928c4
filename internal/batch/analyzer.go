// Package batch analyzes saved log files offline. It fans parsing and
// attack detection out across a worker pool and folds the per-file
// results into one aggregate report.
package batch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/forenx/sentinel/internal/detect"
	"github.com/forenx/sentinel/internal/models"
	"github.com/forenx/sentinel/internal/parser"
	"github.com/forenx/sentinel/internal/query"
)

// Options configures a batch run.
type Options struct {
	// Workers is the analysis concurrency. Zero means one worker per CPU.
	Workers int

	// QueueSize bounds the job queue. Zero picks a default.
	QueueSize int

	// Format forces a log format for every file. Empty means detect
	// per file.
	Format models.LogFormat

	// From and To restrict entries to a time window. Zero bounds are open.
	From time.Time
	To   time.Time

	// Filter is an optional entry filter expression, applied after the
	// date window.
	Filter string

	// Rules are extra detection rules to run alongside the built-in
	// signatures.
	Rules []detect.EntryRule

	// TopN bounds ranked lists in the summary.
	TopN int

	Verbose bool
}

// Analyzer runs parsing and detection over many log files concurrently.
type Analyzer struct {
	opts   Options
	engine *detect.Engine
	query  *query.ParsedQuery
	filter *DateFilter
}

// NewAnalyzer creates an analyzer. The filter expression is compiled up
// front so a bad one fails before any file is read.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}

	a := &Analyzer{
		opts:   opts,
		engine: detect.NewEngine(),
		filter: NewDateFilter(opts.From, opts.To),
	}

	if opts.Filter != "" {
		pq, err := query.Default().Parse(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		a.query = pq
	}

	return a, nil
}

// Analyze processes every file matching the given glob patterns and
// returns the combined report.
func (a *Analyzer) Analyze(ctx context.Context, patterns []string) (*Report, error) {
	paths, err := expandGlobs(patterns)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("no input files")
	}

	report := &Report{StartTime: time.Now()}

	pool := newWorkerPool(a.opts.Workers, a.opts.QueueSize, a.analyzeFile)
	pool.start(ctx)

	go func() {
		for _, path := range paths {
			if !pool.submit(ctx, path) {
				break
			}
		}
		pool.finish()
	}()

	for res := range pool.results {
		if res.err != nil {
			report.Errors = append(report.Errors, res.err.Error())
			continue
		}
		report.Files = append(report.Files, res.stats)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Workers finish in arbitrary order; present files deterministically.
	sort.Slice(report.Files, func(i, j int) bool {
		return report.Files[i].Path < report.Files[j].Path
	})

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	report.Summary = Aggregate(report.Files, report.Duration, a.opts.TopN)
	report.DateRange = a.dateRange(report.Files)

	return report, nil
}

func (a *Analyzer) dateRange(files []*FileStats) *DateRange {
	dr := &DateRange{
		Filtered: a.filter.IsActive(),
		From:     a.opts.From,
		To:       a.opts.To,
	}
	for _, f := range files {
		if !f.FirstEntry.IsZero() && (dr.Earliest.IsZero() || f.FirstEntry.Before(dr.Earliest)) {
			dr.Earliest = f.FirstEntry
		}
		if f.LastEntry.After(dr.Latest) {
			dr.Latest = f.LastEntry
		}
	}
	return dr
}

// analyzeFile parses and scans a single log file.
func (a *Analyzer) analyzeFile(ctx context.Context, path string) (*FileStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	text, size, err := readLogFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	stats := NewFileStats(path)
	stats.BytesRead = size

	format := a.opts.Format
	if format == "" {
		sample := text
		if len(sample) > parser.DetectSampleSize {
			sample = sample[:parser.DetectSampleSize]
		}
		format = parser.DetectFormat(sample)
	}
	stats.Format = string(format)

	if format == models.FormatError {
		// Error logs carry no request fields, so entry filters and
		// detection do not apply.
		entries, pstats := parser.ParseErrorLog(text)
		stats.ParsedCount = int64(len(entries))
		stats.SkippedLines = pstats.Skipped()
		stats.ParseTime = time.Since(start)
		return stats, nil
	}

	entries, pstats := parser.ParseAccessLog(text, format)
	stats.SkippedLines = pstats.Skipped()

	entries = a.filter.Apply(entries)
	if a.query != nil {
		entries, err = a.query.Filter(entries)
		if err != nil {
			return nil, fmt.Errorf("%s: filter: %w", path, err)
		}
	}

	for i := range entries {
		stats.recordEntry(&entries[i])
	}
	stats.recordAlerts(a.engine.AnalyzeWithRules(entries, a.opts.Rules))

	stats.ParseTime = time.Since(start)

	if a.opts.Verbose {
		log.Printf("analyzed %s: %d entries, %d skipped, %d alerts in %v",
			path, stats.ParsedCount, stats.SkippedLines, stats.AlertCount,
			stats.ParseTime.Round(time.Millisecond))
	}

	return stats, nil
}

// readLogFile reads a log file into memory, transparently decompressing
// gzip input. The returned size is the on-disk byte count.
func readLogFile(path string) (string, int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	size := int64(len(raw))

	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", 0, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return "", 0, fmt.Errorf("gzip: %w", err)
		}
		return string(out), size, nil
	}

	return string(raw), size, nil
}

// expandGlobs resolves glob patterns into a deduplicated file list,
// preserving pattern order. A pattern matching nothing is an error.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}

	return paths, nil
}

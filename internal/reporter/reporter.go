// Package reporter writes baseline snapshots and scan results to JSON or TXT
// files.
package reporter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"phishcatch/internal/core"
	"phishcatch/internal/repository"
)

// Summary provides a high-level overview of a report.
type Summary struct {
	GeneratedAt time.Time `json:"generated_at"`
	Baselines   int       `json:"baselines"`
	URLsScanned int       `json:"urls_scanned"`
	Clones      int       `json:"clones"`
	Alerts      int       `json:"alerts"`
	Errors      int       `json:"errors"`
}

// Report is the top-level structure written by the exporters.
type Report struct {
	Summary   Summary                       `json:"summary"`
	Baselines []repository.DatedFingerprint `json:"baselines"`
	Results   []core.ScanResult             `json:"results,omitempty"`
}

// NewReport builds a report and computes its summary.
func NewReport(now time.Time, baselines []repository.DatedFingerprint, results []core.ScanResult) Report {
	s := Summary{
		GeneratedAt: now,
		Baselines:   len(baselines),
		URLsScanned: len(results),
	}
	for _, r := range results {
		if r.Err != "" {
			s.Errors++
		}
		if r.Outcome == nil {
			continue
		}
		if r.Outcome.Match != nil {
			s.Clones++
		}
		if r.Outcome.Alerted {
			s.Alerts++
		}
	}
	return Report{Summary: s, Baselines: baselines, Results: results}
}

// Exporter writes a report somewhere.
type Exporter interface {
	Export(report Report) error
}

// NewExporter picks an exporter by format ("json" or "txt").
func NewExporter(format, outputPath string) (Exporter, error) {
	switch format {
	case "json", "":
		return NewJSONExporter(outputPath)
	case "txt":
		return NewTxtExporter(outputPath)
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// JSONExporter handles the creation of the JSON report file.
type JSONExporter struct {
	OutputPath string
}

// NewJSONExporter creates a new exporter that will write to the specified path.
func NewJSONExporter(outputPath string) (*JSONExporter, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &JSONExporter{OutputPath: outputPath}, nil
}

// Export generates and saves the JSON report.
func (e *JSONExporter) Export(report Report) error {
	file, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}

	if err := os.WriteFile(e.OutputPath, file, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report to file: %w", err)
	}

	log.Info().Str("path", e.OutputPath).Msg("JSON report saved successfully.")
	return nil
}

// TxtExporter handles the creation of the TXT report file.
type TxtExporter struct {
	OutputPath string
}

// NewTxtExporter creates a new exporter that will write to the specified path.
func NewTxtExporter(outputPath string) (*TxtExporter, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &TxtExporter{OutputPath: outputPath}, nil
}

// Export generates and saves the TXT report.
func (e *TxtExporter) Export(report Report) error {
	file, err := os.Create(e.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create TXT report file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	s := report.Summary
	fmt.Fprintf(w, "PhishCatch Report\n")
	fmt.Fprintf(w, "===================================\n")
	fmt.Fprintf(w, "Generated:     %s\n", s.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Baselines:     %d\n", s.Baselines)
	fmt.Fprintf(w, "URLs Scanned:  %d\n", s.URLsScanned)
	fmt.Fprintf(w, "Clones:        %d\n", s.Clones)
	fmt.Fprintf(w, "Alerts:        %d\n", s.Alerts)
	fmt.Fprintf(w, "Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "===================================\n")

	fmt.Fprintf(w, "Baselines\n")
	fmt.Fprintf(w, "-----------------------------------\n")
	if len(report.Baselines) == 0 {
		fmt.Fprintf(w, "No baselines stored.\n")
	}
	for _, b := range report.Baselines {
		fmt.Fprintf(w, "%s  %s  %s\n", time.UnixMilli(b.DateAdded).UTC().Format(time.RFC3339), b.Hash, b.Source)
	}

	if len(report.Results) > 0 {
		fmt.Fprintf(w, "===================================\n")
		fmt.Fprintf(w, "Results\n")
		fmt.Fprintf(w, "-----------------------------------\n")
		for _, r := range report.Results {
			fmt.Fprintf(w, "\nURL:       %s\n", r.URL)
			if r.Err != "" {
				fmt.Fprintf(w, "Error:     %s\n", r.Err)
			}
			if o := r.Outcome; o != nil {
				fmt.Fprintf(w, "Domain:    %s\n", o.DomainType)
				if o.Hash != "" {
					fmt.Fprintf(w, "Hash:      %s\n", o.Hash)
				}
				if o.Match != nil {
					fmt.Fprintf(w, "Clone of:  %s (distance %d)\n", o.Match.Baseline.Source, o.Match.Distance)
				}
			}
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write TXT report: %w", err)
	}
	log.Info().Str("path", e.OutputPath).Msg("TXT report saved successfully.")
	return nil
}

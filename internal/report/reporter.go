package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rafabd1/Foxglove/internal/utils"
)

// ProbePair is one (requested delay, observed response time) measurement
// carried as evidence in a finding.
type ProbePair struct {
	RequestedSeconds float64 `json:"requested_seconds"`
	ObservedSeconds  float64 `json:"observed_seconds"`
}

// Finding represents a confirmed time-based injection point.
type Finding struct {
	URL                string      `json:"url"`
	Vulnerability      string      `json:"vulnerability"`
	Description        string      `json:"description"`
	Correlation        float64     `json:"correlation"`
	Slope              float64     `json:"slope"`
	Probes             int         `json:"probes"`
	ConfirmationProbes int         `json:"confirmation_probes"`
	Evidence           []ProbePair `json:"evidence"`
	DetectedAt         time.Time   `json:"detected_at"`
}

// Summary aggregates the scan outcome for the report header.
type Summary struct {
	TargetsScanned int       `json:"targets_scanned"`
	TargetsFailed  int       `json:"targets_failed"`
	FindingsCount  int       `json:"findings_count"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Report is the top-level structure serialized by the JSON format.
type Report struct {
	Summary  Summary   `json:"summary"`
	Findings []Finding `json:"findings"`
}

// GenerateReport writes the findings to outputFile (or stdout when empty) in
// the requested format: "json", "csv" or "text".
func GenerateReport(findings []Finding, summary Summary, format, outputFile string, logger utils.Logger) error {
	var out io.Writer = os.Stdout
	if outputFile != "" {
		if err := utils.EnsureFilepathExists(outputFile); err != nil {
			return err
		}
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file '%s': %w", outputFile, err)
		}
		defer file.Close()
		out = file
	}

	var err error
	switch format {
	case "json":
		err = writeJSON(out, findings, summary)
	case "csv":
		err = writeCSV(out, findings)
	case "text":
		err = writeText(out, findings, summary)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
	if err != nil {
		return err
	}

	if outputFile != "" {
		logger.Infof("Report with %d finding(s) written to %s", len(findings), outputFile)
	}
	return nil
}

func writeJSON(out io.Writer, findings []Finding, summary Summary) error {
	if findings == nil {
		findings = []Finding{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(Report{Summary: summary, Findings: findings}); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return nil
}

func writeCSV(out io.Writer, findings []Finding) error {
	writer := csv.NewWriter(out)
	header := []string{"url", "vulnerability", "correlation", "slope", "probes", "confirmation_probes", "evidence"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, f := range findings {
		pairs := make([]string, 0, len(f.Evidence))
		for _, p := range f.Evidence {
			pairs = append(pairs, fmt.Sprintf("%g->%0.3f", p.RequestedSeconds, p.ObservedSeconds))
		}
		record := []string{
			f.URL,
			f.Vulnerability,
			strconv.FormatFloat(f.Correlation, 'f', 4, 64),
			strconv.FormatFloat(f.Slope, 'f', 4, 64),
			strconv.Itoa(f.Probes),
			strconv.Itoa(f.ConfirmationProbes),
			strings.Join(pairs, " "),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV report: %w", err)
	}
	return nil
}

func writeText(out io.Writer, findings []Finding, summary Summary) error {
	if len(findings) == 0 {
		fmt.Fprintf(out, "No time-based injection points found across %d target(s).\n", summary.TargetsScanned)
		return nil
	}
	fmt.Fprintf(out, "Found %d time-based injection point(s) across %d target(s):\n\n", len(findings), summary.TargetsScanned)
	for _, f := range findings {
		fmt.Fprintf(out, "[%s] %s\n", f.Vulnerability, f.URL)
		fmt.Fprintf(out, "    %s\n", f.Description)
		fmt.Fprintf(out, "    correlation=%.4f slope=%.4f probes=%d (confirmation: %d)\n", f.Correlation, f.Slope, f.Probes, f.ConfirmationProbes)
		for _, p := range f.Evidence {
			fmt.Fprintf(out, "      requested %gs -> observed %.3fs\n", p.RequestedSeconds, p.ObservedSeconds)
		}
		fmt.Fprintln(out)
	}
	return nil
}

package core

import (
	"fmt"
	"time"

	"github.com/rafabd1/Foxglove/internal/report"
	"github.com/rafabd1/Foxglove/internal/utils"
)

// Processor turns timing check results into report findings.
type Processor struct {
	logger utils.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(logger utils.Logger) *Processor {
	return &Processor{logger: logger}
}

// ProcessResult converts a positive TimingResult into a Finding with the
// collected evidence. Returns nil when the endpoint is not delay dependent.
func (p *Processor) ProcessResult(target string, result *TimingResult) *report.Finding {
	if result == nil || !result.DelayDependent {
		return nil
	}

	evidence := make([]report.ProbePair, 0, len(result.Samples))
	for _, s := range result.Samples {
		evidence = append(evidence, report.ProbePair{
			RequestedSeconds: s.Delay,
			ObservedSeconds:  s.Observed,
		})
	}

	finding := &report.Finding{
		URL:           target,
		Vulnerability: "time-based-injection",
		Description: fmt.Sprintf(
			"Response time tracks the injected delay across %d probes (correlation %.4f, slope %.4f): the endpoint executes the attacker-controlled sleep.",
			result.Requests, result.Correlation, result.Slope),
		Correlation:        result.Correlation,
		Slope:              result.Slope,
		Probes:             result.Requests,
		ConfirmationProbes: result.ConfirmationRequests,
		Evidence:           evidence,
		DetectedAt:         time.Now(),
	}

	p.logger.Debugf("[Processor] Confirmed finding for %s (correlation %.4f, slope %.4f)", target, result.Correlation, result.Slope)
	return finding
}

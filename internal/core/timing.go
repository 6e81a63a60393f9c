package core

import (
	"context"
	"fmt"

	"github.com/rafabd1/Foxglove/internal/utils"
)

// Thresholds for the loose in-flight confidence check. While samples are
// still being collected the tolerances are deliberately wide: they only need
// to catch endpoints whose latency is obviously unrelated to the requested
// delay, so the check can bail out after two or three requests instead of
// burning the whole budget.
const (
	probingCorrelationErrorRange = 0.3
	probingSlopeErrorRange       = 0.5
)

// Measurer performs a single timed probe: it asks the target to delay its
// response by delaySeconds and returns the observed response time in seconds.
// Implementations must not retry internally; a transport failure aborts the
// whole check.
type Measurer interface {
	Measure(ctx context.Context, delaySeconds float64) (float64, error)
}

// MeasurerFunc adapts a plain function to the Measurer interface.
type MeasurerFunc func(ctx context.Context, delaySeconds float64) (float64, error)

func (f MeasurerFunc) Measure(ctx context.Context, delaySeconds float64) (float64, error) {
	return f(ctx, delaySeconds)
}

// TimingOptions parameterizes a timing dependence check.
type TimingOptions struct {
	// RequestsLimit caps how many probe requests the check may send.
	RequestsLimit int
	// SecondsLimit is the total injected-delay budget in seconds. The sum of
	// all requested delays never exceeds it, which bounds the wall-clock cost
	// of a check regardless of how the endpoint behaves.
	SecondsLimit float64
	// CorrelationErrorRange is the final acceptance tolerance on |r - 1|.
	CorrelationErrorRange float64
	// SlopeErrorRange is the final acceptance tolerance on |slope - 1|.
	SlopeErrorRange float64
}

// Validate checks the options before any request is sent.
func (o TimingOptions) Validate() error {
	if o.RequestsLimit < 1 {
		return fmt.Errorf("requests limit must be at least 1, got %d", o.RequestsLimit)
	}
	if o.SecondsLimit < 1 {
		return fmt.Errorf("seconds limit must be at least 1, got %v", o.SecondsLimit)
	}
	if o.CorrelationErrorRange < 0 || o.CorrelationErrorRange > 1 {
		return fmt.Errorf("correlation error range must be in [0, 1], got %v", o.CorrelationErrorRange)
	}
	if o.SlopeErrorRange < 0 {
		return fmt.Errorf("slope error range must not be negative, got %v", o.SlopeErrorRange)
	}
	return nil
}

// Sample is one probe measurement: the delay we asked for and the response
// time we observed, both in seconds.
type Sample struct {
	Delay    float64 `json:"delay"`
	Observed float64 `json:"observed"`
}

// TimingResult is the outcome of a timing dependence check.
type TimingResult struct {
	// DelayDependent is true when the endpoint's response time tracks the
	// requested delay closely enough to conclude we control it.
	DelayDependent bool `json:"delay_dependent"`
	// Samples holds every (requested, observed) pair that was collected.
	Samples []Sample `json:"samples"`
	// Requests is the number of probe requests actually sent.
	Requests int `json:"requests"`
	// ConfirmationRequests counts the probes sent after the delay sequence
	// wrapped around, i.e. during the confirmation rounds.
	ConfirmationRequests int `json:"confirmation_requests"`
	// Correlation and Slope are the final regression statistics. Both are 0
	// when the check aborted before the regression was defined.
	Correlation float64 `json:"correlation"`
	Slope       float64 `json:"slope"`
}

// TimingChecker decides whether an endpoint's response time is causally
// controlled by an attacker-supplied delay. It sends a sequence of probes
// with increasing requested delays and accepts only when the observed times
// form a line of slope ~1 through the requested delays, which distinguishes
// an injected sleep from an endpoint that is merely slow or noisy.
type TimingChecker struct {
	opts   TimingOptions
	logger utils.Logger
}

// NewTimingChecker creates a checker. Returns an error if the options are
// invalid, so no probe budget is ever spent on a misconfigured check.
func NewTimingChecker(opts TimingOptions, logger utils.Logger) (*TimingChecker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = &utils.NoOpLogger{}
	}
	return &TimingChecker{opts: opts, logger: logger}, nil
}

// Check runs the timing dependence analysis against the given Measurer.
//
// Requested delays start at 1 second and increase by 1 per probe. When the
// next delay would not fit into the remaining seconds budget the sequence
// wraps back to 1, which naturally yields confirmation rounds that re-sample
// the low end of the curve. The check stops when either the request or the
// seconds budget is exhausted, then requires the regression over all samples
// to have correlation within CorrelationErrorRange of 1 and slope within
// SlopeErrorRange of 1.
//
// Two early exits make the common negative cases cheap:
//   - an observed time below the requested delay proves the endpoint did not
//     honor the delay, so the check fails immediately (often on probe one);
//   - once two or more distinct delays have been sampled, a loose confidence
//     check aborts endpoints whose latency is flat or unrelated to the delay.
//
// A Measurer error aborts the check and is returned unwrapped; the caller
// can inspect it with errors.Is/As against the transport's own errors.
func (tc *TimingChecker) Check(ctx context.Context, m Measurer) (*TimingResult, error) {
	result := &TimingResult{}
	reg := &utils.LinearRegression{}
	phase := PhaseProbing

	requestsLeft := tc.opts.RequestsLimit
	secondsLeft := tc.opts.SecondsLimit
	delay := 1.0

	finish := func(dependent bool) *TimingResult {
		endedIn := phase
		phase = PhaseDone
		result.DelayDependent = dependent
		if reg.Defined() {
			result.Correlation = reg.Correlation()
			result.Slope = reg.Slope()
		}
		tc.logger.Debugf("Timing check ended in %s: dependent=%v requests=%d correlation=%.4f slope=%.4f",
			endedIn, result.DelayDependent, result.Requests, result.Correlation, result.Slope)
		return result
	}

	for requestsLeft > 0 && secondsLeft > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if delay > secondsLeft {
			// The ascending sequence no longer fits the budget; wrap around
			// and re-probe from the bottom.
			delay = 1
			if phase == PhaseProbing {
				phase = PhaseConfirming
				tc.logger.Debugf("Timing check entering confirmation rounds after %d probes", result.Requests)
			}
		}

		observed, err := m.Measure(ctx, delay)
		if err != nil {
			return nil, err
		}
		result.Requests++
		if phase == PhaseConfirming {
			result.ConfirmationRequests++
		}
		result.Samples = append(result.Samples, Sample{Delay: delay, Observed: observed})
		tc.logger.Debugf("Timing probe %d (%s): requested %.0fs, observed %.3fs", result.Requests, phase, delay, observed)

		// An honored delay can only make the response slower. Faster than
		// requested means the sleep never ran.
		if observed < delay {
			return finish(false), nil
		}

		reg.AddPoint(delay, observed)
		if !reg.IsWithinConfidence(probingCorrelationErrorRange, 1.0, probingSlopeErrorRange) {
			return finish(false), nil
		}

		secondsLeft -= delay
		delay++
		requestsLeft--
	}

	dependent := reg.Defined() && reg.IsWithinConfidence(tc.opts.CorrelationErrorRange, 1.0, tc.opts.SlopeErrorRange)
	return finish(dependent), nil
}

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafabd1/Foxglove/internal/utils"
)

func newChecker(t *testing.T, opts TimingOptions) *TimingChecker {
	t.Helper()
	checker, err := NewTimingChecker(opts, &utils.NoOpLogger{})
	require.NoError(t, err)
	return checker
}

// echoMeasurer simulates an endpoint that honors the injected delay exactly.
// It records the requested delays so tests can assert the probe sequence.
type echoMeasurer struct {
	requested []float64
	noise     []float64
}

func (m *echoMeasurer) Measure(_ context.Context, delaySeconds float64) (float64, error) {
	observed := delaySeconds
	if len(m.noise) > 0 {
		observed += m.noise[len(m.requested)%len(m.noise)]
	}
	m.requested = append(m.requested, delaySeconds)
	return observed, nil
}

// constMeasurer simulates an endpoint whose response time ignores the delay.
type constMeasurer struct {
	latencies []float64
	calls     int
}

func (m *constMeasurer) Measure(_ context.Context, _ float64) (float64, error) {
	observed := m.latencies[m.calls%len(m.latencies)]
	m.calls++
	return observed, nil
}

func TestCheckAcceptsDelayControlledEndpoint(t *testing.T) {
	checker := newChecker(t, TimingOptions{
		RequestsLimit:         5,
		SecondsLimit:          15,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	})
	m := &echoMeasurer{}

	result, err := checker.Check(context.Background(), m)
	require.NoError(t, err)

	assert.True(t, result.DelayDependent)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, m.requested,
		"delays ascend from 1s and stop when both budgets run out")
	assert.Equal(t, 5, result.Requests)
	assert.Zero(t, result.ConfirmationRequests)
	assert.InDelta(t, 1.0, result.Correlation, 1e-9)
	assert.InDelta(t, 1.0, result.Slope, 1e-9)
	assert.Len(t, result.Samples, 5)
}

func TestCheckWrapsDelaysIntoConfirmationRounds(t *testing.T) {
	checker := newChecker(t, TimingOptions{
		RequestsLimit:         10,
		SecondsLimit:          20,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	})
	m := &echoMeasurer{}

	result, err := checker.Check(context.Background(), m)
	require.NoError(t, err)

	// After 1+2+3+4+5 the remaining budget is 5s, so 6 does not fit and the
	// sequence wraps back to 1. The wrapped rounds re-sample the low end.
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 1, 2, 1, 1}, m.requested)
	assert.True(t, result.DelayDependent)
	assert.Equal(t, 9, result.Requests)
	assert.Equal(t, 4, result.ConfirmationRequests)
}

func TestCheckSumOfDelaysNeverExceedsBudget(t *testing.T) {
	for _, opts := range []TimingOptions{
		{RequestsLimit: 5, SecondsLimit: 15, CorrelationErrorRange: 0.1, SlopeErrorRange: 0.2},
		{RequestsLimit: 10, SecondsLimit: 20, CorrelationErrorRange: 0.1, SlopeErrorRange: 0.2},
		{RequestsLimit: 30, SecondsLimit: 7, CorrelationErrorRange: 0.1, SlopeErrorRange: 0.2},
		{RequestsLimit: 3, SecondsLimit: 100, CorrelationErrorRange: 0.1, SlopeErrorRange: 0.2},
	} {
		checker := newChecker(t, opts)
		m := &echoMeasurer{}

		result, err := checker.Check(context.Background(), m)
		require.NoError(t, err)

		var sum float64
		for _, d := range m.requested {
			sum += d
		}
		assert.LessOrEqual(t, sum, opts.SecondsLimit, "injected-delay budget exceeded")
		assert.LessOrEqual(t, result.Requests, opts.RequestsLimit, "request budget exceeded")
	}
}

func TestCheckRejectsFastEndpointOnFirstProbe(t *testing.T) {
	checker := newChecker(t, TimingOptions{
		RequestsLimit:         10,
		SecondsLimit:          20,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	})
	// The endpoint responds in 0.5s no matter what: faster than the 1s delay
	// we asked for, so the sleep demonstrably never ran.
	m := &constMeasurer{latencies: []float64{0.5}}

	result, err := checker.Check(context.Background(), m)
	require.NoError(t, err)

	assert.False(t, result.DelayDependent)
	assert.Equal(t, 1, result.Requests, "a fast endpoint must be rejected after a single probe")
}

func TestCheckRejectsUniformlySlowEndpointEarly(t *testing.T) {
	checker := newChecker(t, TimingOptions{
		RequestsLimit:         10,
		SecondsLimit:          60,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	})
	// ~10s responses regardless of the requested delay. Slow enough to pass
	// the observed >= requested exit, but flat, so the in-flight confidence
	// check must bail out long before the budgets are spent.
	m := &constMeasurer{latencies: []float64{10.1, 9.9, 10.2}}

	result, err := checker.Check(context.Background(), m)
	require.NoError(t, err)

	assert.False(t, result.DelayDependent)
	assert.LessOrEqual(t, result.Requests, 3, "flat latency must be rejected within a few probes")
}

func TestCheckRejectsWhenDelayStopsBeingHonored(t *testing.T) {
	checker := newChecker(t, TimingOptions{
		RequestsLimit:         10,
		SecondsLimit:          60,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	})
	// Honors 1s and 2s, then a 3s request comes back in 2.5s.
	calls := 0
	m := MeasurerFunc(func(_ context.Context, delaySeconds float64) (float64, error) {
		calls++
		if calls == 3 {
			return delaySeconds - 0.5, nil
		}
		return delaySeconds, nil
	})

	result, err := checker.Check(context.Background(), m)
	require.NoError(t, err)

	assert.False(t, result.DelayDependent)
	assert.Equal(t, 3, result.Requests)
}

func TestCheckToleratesBoundedNoise(t *testing.T) {
	checker := newChecker(t, TimingOptions{
		RequestsLimit:         5,
		SecondsLimit:          15,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	})
	// Delay honored plus sub-second processing jitter.
	m := &echoMeasurer{noise: []float64{0.3, 0.1, 0.2, 0.0, 0.25}}

	result, err := checker.Check(context.Background(), m)
	require.NoError(t, err)

	assert.True(t, result.DelayDependent, "bounded additive noise must not mask a real dependence")
	assert.InDelta(t, 0.98, result.Slope, 0.01)
	assert.Greater(t, result.Correlation, 0.99)
}

// debugCapturingLogger records formatted debug lines for assertions.
type debugCapturingLogger struct {
	utils.NoOpLogger
	lines []string
}

func (l *debugCapturingLogger) Debugf(format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *debugCapturingLogger) lastLineContaining(substr string) string {
	for i := len(l.lines) - 1; i >= 0; i-- {
		if strings.Contains(l.lines[i], substr) {
			return l.lines[i]
		}
	}
	return ""
}

func TestCheckLogsPhaseTheCheckEndedIn(t *testing.T) {
	opts := TimingOptions{
		RequestsLimit:         10,
		SecondsLimit:          20,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	}

	t.Run("early exit reports probing", func(t *testing.T) {
		logger := &debugCapturingLogger{}
		checker, err := NewTimingChecker(opts, logger)
		require.NoError(t, err)

		_, err = checker.Check(context.Background(), &constMeasurer{latencies: []float64{0.5}})
		require.NoError(t, err)

		line := logger.lastLineContaining("Timing check ended in")
		require.NotEmpty(t, line)
		assert.Contains(t, line, "ended in probing")
	})

	t.Run("budget exhaustion reports confirming", func(t *testing.T) {
		logger := &debugCapturingLogger{}
		checker, err := NewTimingChecker(opts, logger)
		require.NoError(t, err)

		// The 10/20 budgets force the delay sequence to wrap, so the verdict
		// lands during the confirmation rounds.
		_, err = checker.Check(context.Background(), &echoMeasurer{})
		require.NoError(t, err)

		line := logger.lastLineContaining("Timing check ended in")
		require.NotEmpty(t, line)
		assert.Contains(t, line, "ended in confirming")
	})
}

func TestCheckIsDeterministicForDeterministicMeasurer(t *testing.T) {
	opts := TimingOptions{
		RequestsLimit:         10,
		SecondsLimit:          20,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	}

	first, err := newChecker(t, opts).Check(context.Background(), &echoMeasurer{})
	require.NoError(t, err)
	second, err := newChecker(t, opts).Check(context.Background(), &echoMeasurer{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCheckPropagatesMeasurerError(t *testing.T) {
	checker := newChecker(t, TimingOptions{
		RequestsLimit:         10,
		SecondsLimit:          20,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	})
	transportErr := errors.New("connection reset by peer")
	m := MeasurerFunc(func(context.Context, float64) (float64, error) {
		return 0, transportErr
	})

	result, err := checker.Check(context.Background(), m)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, transportErr, "transport errors must surface unwrapped")
}

func TestCheckHonorsContextCancellation(t *testing.T) {
	checker := newChecker(t, TimingOptions{
		RequestsLimit:         10,
		SecondsLimit:          20,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := checker.Check(ctx, &echoMeasurer{})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimingOptionsValidate(t *testing.T) {
	valid := TimingOptions{
		RequestsLimit:         10,
		SecondsLimit:          20,
		CorrelationErrorRange: 0.1,
		SlopeErrorRange:       0.2,
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*TimingOptions)
	}{
		{"zero requests", func(o *TimingOptions) { o.RequestsLimit = 0 }},
		{"negative seconds", func(o *TimingOptions) { o.SecondsLimit = -1 }},
		{"seconds below one", func(o *TimingOptions) { o.SecondsLimit = 0.5 }},
		{"correlation range negative", func(o *TimingOptions) { o.CorrelationErrorRange = -0.1 }},
		{"correlation range above one", func(o *TimingOptions) { o.CorrelationErrorRange = 1.1 }},
		{"slope range negative", func(o *TimingOptions) { o.SlopeErrorRange = -0.2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := valid
			tc.mutate(&opts)
			assert.Error(t, opts.Validate())

			_, err := NewTimingChecker(opts, &utils.NoOpLogger{})
			assert.Error(t, err, "invalid options must be rejected before any probe")
		})
	}
}

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafabd1/Foxglove/internal/utils"
)

func TestProcessResultNegativeVerdict(t *testing.T) {
	p := NewProcessor(&utils.NoOpLogger{})

	assert.Nil(t, p.ProcessResult("http://x.com/?q={SLEEP}", nil))
	assert.Nil(t, p.ProcessResult("http://x.com/?q={SLEEP}", &TimingResult{DelayDependent: false, Requests: 2}))
}

func TestProcessResultBuildsFindingWithEvidence(t *testing.T) {
	p := NewProcessor(&utils.NoOpLogger{})
	result := &TimingResult{
		DelayDependent:       true,
		Requests:             9,
		ConfirmationRequests: 4,
		Correlation:          0.9981,
		Slope:                1.002,
		Samples: []Sample{
			{Delay: 1, Observed: 1.2},
			{Delay: 2, Observed: 2.1},
			{Delay: 3, Observed: 3.3},
		},
	}

	finding := p.ProcessResult("http://x.com/?q={SLEEP}", result)
	require.NotNil(t, finding)

	assert.Equal(t, "http://x.com/?q={SLEEP}", finding.URL)
	assert.Equal(t, "time-based-injection", finding.Vulnerability)
	assert.Equal(t, 9, finding.Probes)
	assert.Equal(t, 4, finding.ConfirmationProbes)
	assert.InDelta(t, 0.9981, finding.Correlation, 1e-9)
	assert.InDelta(t, 1.002, finding.Slope, 1e-9)
	require.Len(t, finding.Evidence, 3)
	assert.Equal(t, 1.0, finding.Evidence[0].RequestedSeconds)
	assert.Equal(t, 1.2, finding.Evidence[0].ObservedSeconds)
	assert.False(t, finding.DetectedAt.IsZero())
	assert.NotEmpty(t, finding.Description)
}

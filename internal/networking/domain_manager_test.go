package networking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafabd1/Foxglove/internal/config"
	"github.com/rafabd1/Foxglove/internal/utils"
)

func newTestDomainManager() *DomainManager {
	cfg := config.GetDefaultConfig()
	cfg.MinRequestDelayMs = 100
	return NewDomainManager(cfg, &utils.NoOpLogger{})
}

func TestCanRequestEnforcesMinDelay(t *testing.T) {
	dm := newTestDomainManager()

	allowed, _ := dm.CanRequest("example.com")
	assert.True(t, allowed, "first request must be allowed immediately")

	dm.RecordRequestSent("example.com")
	allowed, wait := dm.CanRequest("example.com")
	assert.False(t, allowed)
	assert.Greater(t, wait, time.Duration(0))

	// Other domains are unaffected.
	allowed, _ = dm.CanRequest("other.com")
	assert.True(t, allowed)
}

func TestProbeOwnershipIsExclusivePerDomain(t *testing.T) {
	dm := newTestDomainManager()

	require.True(t, dm.TryAcquireProbe("example.com"))
	assert.False(t, dm.TryAcquireProbe("example.com"), "a domain must host at most one timing check at a time")
	assert.True(t, dm.TryAcquireProbe("other.com"), "other domains stay available")

	dm.ReleaseProbe("example.com")
	assert.True(t, dm.TryAcquireProbe("example.com"))
}

func TestThrottlingPutsDomainInStandby(t *testing.T) {
	dm := newTestDomainManager()

	dm.RecordRequestResult("example.com", 429, 0, nil)

	standby, until := dm.IsStandby("example.com")
	assert.True(t, standby)
	assert.True(t, until.After(time.Now()))

	allowed, wait := dm.CanRequest("example.com")
	assert.False(t, allowed)
	assert.Greater(t, wait, time.Duration(0))
}

func TestThrottlingHonorsLongerRetryAfter(t *testing.T) {
	dm := newTestDomainManager()

	retryAfter := 10 * time.Minute
	dm.RecordRequestResult("example.com", 429, retryAfter, nil)

	_, until := dm.IsStandby("example.com")
	assert.True(t, until.After(time.Now().Add(retryAfter-time.Minute)),
		"a Retry-After longer than the default standby must win")
}

func TestConsecutiveFailuresTriggerCooldown(t *testing.T) {
	dm := newTestDomainManager()
	transportErr := errors.New("dial tcp: connection refused")

	for i := 0; i < MaxConsecutiveFailures-1; i++ {
		dm.RecordRequestResult("example.com", 0, 0, transportErr)
		allowed, _ := dm.CanRequest("example.com")
		assert.True(t, allowed, "below the threshold the domain stays usable")
	}

	dm.RecordRequestResult("example.com", 0, 0, transportErr)
	allowed, wait := dm.CanRequest("example.com")
	assert.False(t, allowed)
	assert.Greater(t, wait, time.Duration(0))
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	dm := newTestDomainManager()
	transportErr := errors.New("dial tcp: connection refused")

	dm.RecordRequestResult("example.com", 0, 0, transportErr)
	dm.RecordRequestResult("example.com", 0, 0, transportErr)
	dm.RecordRequestResult("example.com", 200, 0, nil)
	dm.RecordRequestResult("example.com", 0, 0, transportErr)
	dm.RecordRequestResult("example.com", 0, 0, transportErr)

	allowed, _ := dm.CanRequest("example.com")
	assert.True(t, allowed, "a success in between must reset the failure streak")
}

package networking

import (
	"sync"
	"time"

	"github.com/rafabd1/Foxglove/internal/config"
	"github.com/rafabd1/Foxglove/internal/utils"
)

const (
	// MaxConsecutiveFailures is the failure streak after which a domain gets
	// a short cooldown before its jobs are attempted again.
	MaxConsecutiveFailures = 3
	FailureCooldown        = 30 * time.Second

	// maxStandbyFactor caps the growing 429 standby at this multiple of the
	// configured base duration.
	maxStandbyFactor = 5
)

// domainState stores the state of a specific domain.
type domainState struct {
	lastRequestTime        time.Time
	consecutiveFailures    int
	cooldownUntil          time.Time
	standbyUntil           time.Time
	currentStandbyDuration time.Duration

	// probing marks that a timing check currently owns this domain. Timing
	// checks must run alone on a domain: a concurrent request during a probe
	// would add server load and skew the measured latency.
	probing bool
}

// DomainManager manages pacing and throttling state per registrable domain.
// It also serializes timing checks so at most one probe sequence runs against
// a domain at a time.
type DomainManager struct {
	config       *config.Config
	logger       utils.Logger
	domainStatus map[string]*domainState
	mu           sync.Mutex
}

// NewDomainManager creates a new instance of DomainManager.
func NewDomainManager(cfg *config.Config, logger utils.Logger) *DomainManager {
	return &DomainManager{
		config:       cfg,
		logger:       logger,
		domainStatus: make(map[string]*domainState),
	}
}

// getOrCreateDomainState retrieves or creates the state for a domain.
// Caller must hold dm.mu.
func (dm *DomainManager) getOrCreateDomainState(domain string) *domainState {
	ds, exists := dm.domainStatus[domain]
	if !exists {
		ds = &domainState{
			currentStandbyDuration: dm.config.ThrottleStandby(),
		}
		dm.domainStatus[domain] = ds
	}
	return ds
}

// CanRequest checks if a request can be made to a domain right now.
// Returns false plus the time to wait when the domain is in standby, in a
// failure cooldown, or the minimum inter-request delay has not elapsed.
func (dm *DomainManager) CanRequest(domain string) (bool, time.Duration) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	ds := dm.getOrCreateDomainState(domain)
	now := time.Now()

	if ds.standbyUntil.After(now) {
		waitTime := ds.standbyUntil.Sub(now)
		dm.logger.Debugf("[DomainManager] Domain '%s' is in standby. Wait: %s", domain, waitTime)
		return false, waitTime
	}

	if ds.cooldownUntil.After(now) {
		waitTime := ds.cooldownUntil.Sub(now)
		dm.logger.Debugf("[DomainManager] Domain '%s' is cooling down after failures. Wait: %s", domain, waitTime)
		return false, waitTime
	}

	minDelay := time.Duration(dm.config.MinRequestDelayMs) * time.Millisecond
	if minDelay > 0 && !ds.lastRequestTime.IsZero() {
		sinceLast := now.Sub(ds.lastRequestTime)
		if sinceLast < minDelay {
			return false, minDelay - sinceLast
		}
	}

	return true, 0
}

// TryAcquireProbe attempts to mark the domain as owned by a timing check.
// Returns false if another check already holds it.
func (dm *DomainManager) TryAcquireProbe(domain string) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	ds := dm.getOrCreateDomainState(domain)
	if ds.probing {
		return false
	}
	ds.probing = true
	return true
}

// ReleaseProbe releases the timing-check ownership of a domain.
func (dm *DomainManager) ReleaseProbe(domain string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if ds, exists := dm.domainStatus[domain]; exists {
		ds.probing = false
	}
}

// RecordRequestSent updates the timestamp of the last request for the domain.
func (dm *DomainManager) RecordRequestSent(domain string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	ds := dm.getOrCreateDomainState(domain)
	ds.lastRequestTime = time.Now()
}

// RecordRequestResult analyzes the result of a request and adjusts the
// domain's state. A 429 puts the domain in standby with a duration that
// grows on repeated throttling; other errors count toward a failure cooldown.
func (dm *DomainManager) RecordRequestResult(domain string, statusCode int, retryAfter time.Duration, err error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	ds := dm.getOrCreateDomainState(domain)

	if statusCode == 429 {
		standby := ds.currentStandbyDuration
		if retryAfter > standby {
			standby = retryAfter
		}
		ds.standbyUntil = time.Now().Add(standby)
		dm.logger.Warnf("[DomainManager] Domain '%s' received 429. Standing by until %s.", domain, ds.standbyUntil.Format(time.RFC3339))

		ds.currentStandbyDuration += dm.config.ThrottleStandby()
		if max := maxStandbyFactor * dm.config.ThrottleStandby(); ds.currentStandbyDuration > max {
			ds.currentStandbyDuration = max
		}
		ds.consecutiveFailures = 0
		return
	}

	if err != nil {
		ds.consecutiveFailures++
		dm.logger.Debugf("[DomainManager] Error for domain '%s': %v. Consecutive failures: %d.", domain, err, ds.consecutiveFailures)
		if ds.consecutiveFailures >= MaxConsecutiveFailures {
			ds.cooldownUntil = time.Now().Add(FailureCooldown)
			dm.logger.Warnf("[DomainManager] Domain '%s' reached %d consecutive failures. Cooling down for %s.", domain, ds.consecutiveFailures, FailureCooldown)
			ds.consecutiveFailures = 0
		}
		return
	}

	ds.consecutiveFailures = 0
}

// IsStandby reports whether the domain is currently in forced standby.
func (dm *DomainManager) IsStandby(domain string) (bool, time.Time) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	ds, exists := dm.domainStatus[domain]
	if !exists || ds.standbyUntil.IsZero() || time.Now().After(ds.standbyUntil) {
		return false, time.Time{}
	}
	return true, ds.standbyUntil
}

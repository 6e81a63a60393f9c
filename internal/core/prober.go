package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rafabd1/Foxglove/internal/config"
	"github.com/rafabd1/Foxglove/internal/networking"
	"github.com/rafabd1/Foxglove/internal/utils"
)

// ErrTargetThrottled is returned when a probe response indicates rate
// limiting. A delayed 429 measures the limiter, not the injected sleep, so
// the whole check is aborted rather than poisoned with a bad sample.
var ErrTargetThrottled = errors.New("target is rate limiting probe requests")

// Prober turns a target URL carrying a delay placeholder into a Measurer the
// timing checker can drive. Each Measure call substitutes the requested delay
// into the URL, waits out the domain's pacing, and issues one timed request.
type Prober struct {
	client        *networking.Client
	domainManager *networking.DomainManager
	config        *config.Config
	logger        utils.Logger
}

// NewProber creates a Prober.
func NewProber(client *networking.Client, dm *networking.DomainManager, cfg *config.Config, logger utils.Logger) *Prober {
	return &Prober{
		client:        client,
		domainManager: dm,
		config:        cfg,
		logger:        logger,
	}
}

// VerifyReachable sends a baseline request with a zero-second delay to
// confirm the target answers at all before the probe budget is spent.
// Baseline traffic goes through the retrying request path; it never feeds
// the timing analysis.
func (p *Prober) VerifyReachable(ctx context.Context, target, domain string) error {
	baselineURL, err := utils.SubstituteDelayToken(target, p.config.DelayToken, 0)
	if err != nil {
		return err
	}
	if err := p.waitForDomain(ctx, domain); err != nil {
		return err
	}

	p.domainManager.RecordRequestSent(domain)
	resp := p.client.PerformRequest(networking.ClientRequestData{
		URL:    baselineURL,
		Method: http.MethodGet,
		Ctx:    ctx,
	})

	statusCode := 0
	var retryAfter time.Duration
	if resp.Response != nil {
		statusCode = resp.Response.StatusCode
		retryAfter = utils.RetryAfterDelay(resp.RespHeaders)
	}
	p.domainManager.RecordRequestResult(domain, statusCode, retryAfter, resp.Error)

	if resp.Error != nil {
		return fmt.Errorf("baseline request failed: %w", resp.Error)
	}
	if utils.IsThrottled(resp.Response) {
		return fmt.Errorf("%w (status %d)", ErrTargetThrottled, statusCode)
	}
	p.logger.Debugf("[Prober] Baseline for %s: status %d in %d bytes", target, statusCode, len(resp.Body))
	return nil
}

// MeasurerFor returns a Measurer bound to one target URL. The target must
// contain the configured delay token.
func (p *Prober) MeasurerFor(target, domain string) Measurer {
	return MeasurerFunc(func(ctx context.Context, delaySeconds float64) (float64, error) {
		probeURL, err := utils.SubstituteDelayToken(target, p.config.DelayToken, delaySeconds)
		if err != nil {
			return 0, err
		}

		if err := p.waitForDomain(ctx, domain); err != nil {
			return 0, err
		}

		p.domainManager.RecordRequestSent(domain)
		timed := p.client.PerformTimedRequest(networking.ClientRequestData{
			URL:    probeURL,
			Method: http.MethodGet,
			Ctx:    ctx,
		})

		statusCode := 0
		var retryAfter time.Duration
		if timed.Response != nil {
			statusCode = timed.StatusCode
			retryAfter = utils.RetryAfterDelay(timed.Response.Header)
		}
		p.domainManager.RecordRequestResult(domain, statusCode, retryAfter, timed.Error)

		if timed.Error != nil {
			return 0, timed.Error
		}
		if utils.IsThrottled(timed.Response) {
			return 0, fmt.Errorf("%w (status %d)", ErrTargetThrottled, statusCode)
		}

		return timed.Duration.Seconds(), nil
	})
}

// waitForDomain blocks until the domain manager allows a request or the
// context is cancelled.
func (p *Prober) waitForDomain(ctx context.Context, domain string) error {
	for {
		allowed, wait := p.domainManager.CanRequest(domain)
		if allowed {
			return nil
		}
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		p.logger.Debugf("[Prober] Waiting %s before next probe to '%s'", wait, domain)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

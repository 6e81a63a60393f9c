package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rafabd1/Foxglove/internal/config"
	"github.com/rafabd1/Foxglove/internal/networking"
	"github.com/rafabd1/Foxglove/internal/report"
	"github.com/rafabd1/Foxglove/internal/utils"
)

// dispatchInterval is how often the scheduler re-checks the parked-job queue
// when nothing else is happening.
const dispatchInterval = 50 * time.Millisecond

// requeueDelay is the parking time for a job whose domain is currently owned
// by another timing check.
const requeueDelay = 250 * time.Millisecond

// TargetURLJob is one target URL queued for a timing check.
type TargetURLJob struct {
	URL           string
	Domain        string
	NextAttemptAt time.Time
	Retries       int
}

// jobOutcome carries a finished check back from a worker. Err is set when the
// check aborted; Result is set when it ran to a verdict.
type jobOutcome struct {
	job    TargetURLJob
	result *TimingResult
	err    error
}

// Scheduler coordinates the scan: it feeds target jobs to a worker pool while
// honoring per-domain pacing and the one-check-per-domain rule, parks jobs
// that cannot run yet in a time-ordered queue, and collects findings.
type Scheduler struct {
	config        *config.Config
	logger        utils.Logger
	client        *networking.Client
	domainManager *networking.DomainManager
	prober        *Prober
	processor     *Processor
	checker       *TimingChecker

	mu       sync.Mutex
	findings []report.Finding
	errs     []error

	// progressCb, when set, is invoked after every completed job with
	// (completed, total).
	progressCb func(completed, total int)
}

// NewScheduler builds a Scheduler and its timing checker from the config.
func NewScheduler(cfg *config.Config, client *networking.Client, dm *networking.DomainManager, logger utils.Logger) (*Scheduler, error) {
	checker, err := NewTimingChecker(TimingOptions{
		RequestsLimit:         cfg.RequestsLimit,
		SecondsLimit:          cfg.SecondsLimit,
		CorrelationErrorRange: cfg.CorrelationErrorRange,
		SlopeErrorRange:       cfg.SlopeErrorRange,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid timing check parameters: %w", err)
	}

	return &Scheduler{
		config:        cfg,
		logger:        logger,
		client:        client,
		domainManager: dm,
		prober:        NewProber(client, dm, cfg, logger),
		processor:     NewProcessor(logger),
		checker:       checker,
	}, nil
}

// SetProgressCallback registers a callback fired after each completed job.
func (s *Scheduler) SetProgressCallback(cb func(completed, total int)) {
	s.progressCb = cb
}

// buildJobs converts target URLs into jobs, dropping targets that lack the
// delay token or whose domain cannot be determined.
func (s *Scheduler) buildJobs(targets []string) []TargetURLJob {
	now := time.Now()
	jobs := make([]TargetURLJob, 0, len(targets))
	for _, target := range targets {
		if !utils.ContainsDelayToken(target, s.config.DelayToken) {
			s.logger.Warnf("Skipping target without delay token '%s': %s", s.config.DelayToken, target)
			continue
		}
		domain, err := utils.ExtractBaseDomain(target)
		if err != nil {
			s.logger.Warnf("Skipping target with unresolvable domain: %s (%v)", target, err)
			continue
		}
		jobs = append(jobs, TargetURLJob{URL: target, Domain: domain, NextAttemptAt: now})
	}
	return jobs
}

// Run executes timing checks for all targets and blocks until every job has
// completed or the context is cancelled. Returns the confirmed findings and
// the per-target errors.
func (s *Scheduler) Run(ctx context.Context, targets []string) ([]report.Finding, []error) {
	jobs := s.buildJobs(targets)
	total := len(jobs)
	if total == 0 {
		s.logger.Warnf("No runnable targets after preprocessing.")
		return nil, nil
	}
	s.logger.Infof("Scheduling timing checks for %d target(s) with concurrency %d", total, s.config.Concurrency)

	queue := NewJobPriorityQueue(total)
	for _, job := range jobs {
		queue.AddJob(job)
	}

	pool := utils.NewWorkerPool(ctx, s.config.Concurrency, total)
	defer pool.Shutdown()

	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	outstanding := total
	completed := 0

	for outstanding > 0 {
		select {
		case <-ctx.Done():
			s.recordError(fmt.Errorf("scan cancelled with %d target(s) pending: %w", outstanding, ctx.Err()))
			return s.snapshot()

		case raw, ok := <-pool.Results():
			if !ok {
				return s.snapshot()
			}
			outcome := raw.(jobOutcome)
			if s.handleOutcome(outcome, queue) {
				outstanding--
				completed++
				if s.progressCb != nil {
					s.progressCb(completed, total)
				}
			}

		case err, ok := <-pool.Errors():
			// Job closures report through Results; anything here is a pool
			// level failure.
			if ok && err != nil {
				s.recordError(err)
			}

		case <-ticker.C:
			s.dispatchDue(ctx, queue, pool)
		}
	}

	return s.snapshot()
}

// dispatchDue submits every due job whose domain is free, and re-parks the
// rest.
func (s *Scheduler) dispatchDue(ctx context.Context, queue *JobPriorityQueue, pool *utils.WorkerPool) {
	for {
		job, ready := queue.GetNextJobIfReady()
		if !ready {
			return
		}

		if standby, until := s.domainManager.IsStandby(job.Domain); standby {
			job.NextAttemptAt = until
			queue.AddJob(*job)
			continue
		}

		if !s.domainManager.TryAcquireProbe(job.Domain) {
			job.NextAttemptAt = time.Now().Add(requeueDelay)
			queue.AddJob(*job)
			continue
		}

		submitted := *job
		err := pool.Submit(func() (interface{}, error) {
			defer s.domainManager.ReleaseProbe(submitted.Domain)
			return s.runCheck(ctx, submitted), nil
		})
		if err != nil {
			s.domainManager.ReleaseProbe(submitted.Domain)
			job.NextAttemptAt = time.Now().Add(requeueDelay)
			queue.AddJob(*job)
			return
		}
	}
}

// runCheck executes the timing check for one job.
func (s *Scheduler) runCheck(ctx context.Context, job TargetURLJob) jobOutcome {
	s.logger.Debugf("[Scheduler] Starting timing check for %s (domain %s)", job.URL, job.Domain)
	if err := s.prober.VerifyReachable(ctx, job.URL, job.Domain); err != nil {
		return jobOutcome{job: job, err: err}
	}
	measurer := s.prober.MeasurerFor(job.URL, job.Domain)
	result, err := s.checker.Check(ctx, measurer)
	return jobOutcome{job: job, result: result, err: err}
}

// handleOutcome processes a finished check. Returns true when the job is
// finally done; false when it was requeued for another attempt.
func (s *Scheduler) handleOutcome(outcome jobOutcome, queue *JobPriorityQueue) bool {
	if outcome.err != nil {
		// A throttled target gets another full attempt once its standby
		// expires; the aborted check's partial samples are discarded.
		if errors.Is(outcome.err, ErrTargetThrottled) && outcome.job.Retries < s.config.MaxRetries {
			job := outcome.job
			job.Retries++
			if standby, until := s.domainManager.IsStandby(job.Domain); standby {
				job.NextAttemptAt = until
			} else {
				job.NextAttemptAt = time.Now().Add(s.config.ThrottleStandby())
			}
			s.logger.Infof("Requeueing %s after throttling (attempt %d/%d)", job.URL, job.Retries+1, s.config.MaxRetries+1)
			queue.AddJob(job)
			return false
		}
		s.recordError(fmt.Errorf("timing check failed for %s: %w", outcome.job.URL, outcome.err))
		return true
	}

	if finding := s.processor.ProcessResult(outcome.job.URL, outcome.result); finding != nil {
		s.mu.Lock()
		s.findings = append(s.findings, *finding)
		s.mu.Unlock()
		s.logger.Infof("Time-based injection confirmed: %s (correlation %.4f, slope %.4f, %d probes)",
			outcome.job.URL, outcome.result.Correlation, outcome.result.Slope, outcome.result.Requests)
	} else {
		s.logger.Debugf("[Scheduler] No timing dependence for %s after %d probe(s)", outcome.job.URL, outcome.result.Requests)
	}
	return true
}

func (s *Scheduler) recordError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	s.logger.Errorf("%v", err)
}

func (s *Scheduler) snapshot() ([]report.Finding, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	findings := make([]report.Finding, len(s.findings))
	copy(findings, s.findings)
	errs := make([]error, len(s.errs))
	copy(errs, s.errs)
	return findings, errs
}

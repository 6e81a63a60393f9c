package networking

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rafabd1/Foxglove/internal/config"
	"github.com/rafabd1/Foxglove/internal/utils"
)

// Client manages HTTP requests, including custom headers, retries, and proxy
// support. Probe requests that feed the timing analysis go through
// PerformTimedRequest, which never retries: a retried probe would fold the
// retry backoff into the measured latency.
type Client struct {
	baseClient       *http.Client
	config           *config.Config
	logger           utils.Logger
	userAgent        string
	parsedProxies    []config.ProxyEntry
	proxyLock        sync.Mutex
	domainProxyIndex map[string]int
	defaultTransport *http.Transport
}

// ClientRequestData encapsulates all necessary data for making a request.
type ClientRequestData struct {
	URL            string
	Method         string
	Body           string
	RequestHeaders http.Header
	Ctx            context.Context
}

// ClientResponseData holds the outcome of an HTTP request.
type ClientResponseData struct {
	Response    *http.Response
	Body        []byte
	RespHeaders http.Header
	Error       error
}

// TimedResponseData holds the outcome of a single timed probe request.
// Duration covers from just before the request is written until the full
// response body has been read, matching what an injected sleep delays.
type TimedResponseData struct {
	Response   *http.Response
	BodyBytes  int
	StatusCode int
	Duration   time.Duration
	Error      error
}

// NewClient creates a new HTTP Client with the specified configuration.
func NewClient(cfg *config.Config, logger utils.Logger) (*Client, error) {
	baseTransport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	c := &Client{
		config:           cfg,
		logger:           logger,
		userAgent:        cfg.UserAgent,
		parsedProxies:    cfg.ParsedProxies,
		domainProxyIndex: make(map[string]int),
		defaultTransport: baseTransport,
	}

	c.baseClient = &http.Client{
		Transport: c.defaultTransport,
		Timeout:   time.Duration(cfg.RequestTimeoutSecs) * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Never follow redirects: a redirect target would be measured
			// instead of the injected endpoint.
			return http.ErrUseLastResponse
		},
	}

	return c, nil
}

// getProxyForDomain selects a proxy for a given target domain using
// round-robin per domain. A probe sequence for one domain therefore sticks to
// a stable rotation rather than jumping randomly between exit paths.
func (c *Client) getProxyForDomain(targetDomain string) *url.URL {
	c.proxyLock.Lock()
	defer c.proxyLock.Unlock()

	if len(c.parsedProxies) == 0 {
		return nil
	}

	currentIndex, exists := c.domainProxyIndex[targetDomain]
	if !exists {
		currentIndex = 0
	} else {
		currentIndex = (currentIndex + 1) % len(c.parsedProxies)
	}
	c.domainProxyIndex[targetDomain] = currentIndex

	selected := c.parsedProxies[currentIndex]
	proxyURL, err := url.Parse(selected.URL)
	if err != nil {
		c.logger.Warnf("Failed to parse stored proxy URL '%s': %v. Skipping proxy.", selected.URL, err)
		return nil
	}
	return proxyURL
}

// httpClientFor returns the client to use for a request, cloning the base
// transport with a proxy when one is configured for the target host.
func (c *Client) httpClientFor(targetHost string) *http.Client {
	if len(c.parsedProxies) == 0 {
		return c.baseClient
	}
	proxyURL := c.getProxyForDomain(targetHost)
	if proxyURL == nil {
		return c.baseClient
	}
	proxiedTransport := c.defaultTransport.Clone()
	proxiedTransport.Proxy = http.ProxyURL(proxyURL)
	return &http.Client{
		Transport:     proxiedTransport,
		Timeout:       c.baseClient.Timeout,
		CheckRedirect: c.baseClient.CheckRedirect,
	}
}

// buildRequest assembles an *http.Request with the standard and custom headers.
func (c *Client) buildRequest(reqData ClientRequestData) (*http.Request, error) {
	method := reqData.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(reqData.Ctx, method, reqData.URL, strings.NewReader(reqData.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", reqData.URL, err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if reqData.RequestHeaders != nil {
		for key, values := range reqData.RequestHeaders {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
	}
	for name, value := range c.config.CustomHeaders {
		if req.Header.Get(name) == "" {
			req.Header.Set(name, value)
		}
	}
	return req, nil
}

// retryDelay computes the exponential backoff for a given attempt, with
// jitter, capped at the configured maximum.
func (c *Client) retryDelay(attempt int) time.Duration {
	base := time.Duration(c.config.RetryDelayBaseMs) * time.Millisecond
	max := time.Duration(c.config.RetryDelayMaxMs) * time.Millisecond
	delay := base << uint(attempt)
	if delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(base)/2 + 1))
	return delay + jitter
}

// PerformRequest executes an HTTP request with retries and backoff.
// Used for setup traffic only, never for timed probes.
func (c *Client) PerformRequest(reqData ClientRequestData) ClientResponseData {
	var finalRespData ClientResponseData

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		req, errBuild := c.buildRequest(reqData)
		if errBuild != nil {
			finalRespData.Error = errBuild
			return finalRespData
		}

		resp, err := c.httpClientFor(req.URL.Hostname()).Do(req)
		if err != nil {
			finalRespData.Error = fmt.Errorf("failed to execute request for %s (attempt %d/%d): %w", reqData.URL, attempt+1, c.config.MaxRetries+1, err)
			if reqData.Ctx != nil && reqData.Ctx.Err() != nil {
				return finalRespData
			}
			if attempt == c.config.MaxRetries {
				return finalRespData
			}
			time.Sleep(c.retryDelay(attempt))
			continue
		}

		bodyBytes, errRead := io.ReadAll(resp.Body)
		resp.Body.Close()
		if errRead != nil {
			finalRespData.Error = fmt.Errorf("failed to read response body for %s (attempt %d/%d): %w", reqData.URL, attempt+1, c.config.MaxRetries+1, errRead)
			if attempt == c.config.MaxRetries {
				return finalRespData
			}
			time.Sleep(c.retryDelay(attempt))
			continue
		}

		finalRespData.Response = resp
		finalRespData.Body = bodyBytes
		finalRespData.RespHeaders = resp.Header
		finalRespData.Error = nil
		return finalRespData
	}
	return finalRespData
}

// PerformTimedRequest executes a single HTTP request and measures its
// duration. The body is fully drained before the clock stops, since an
// injected sleep can delay the body as well as the headers. Any transport
// error is returned as-is: the caller decides whether the check can continue,
// and a retry here would corrupt the measurement.
func (c *Client) PerformTimedRequest(reqData ClientRequestData) TimedResponseData {
	req, errBuild := c.buildRequest(reqData)
	if errBuild != nil {
		return TimedResponseData{Error: errBuild}
	}

	httpClient := c.httpClientFor(req.URL.Hostname())

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return TimedResponseData{Duration: time.Since(start), Error: err}
	}

	bodyBytes, errRead := io.ReadAll(resp.Body)
	resp.Body.Close()
	elapsed := time.Since(start)
	if errRead != nil {
		return TimedResponseData{Response: resp, StatusCode: resp.StatusCode, Duration: elapsed, Error: errRead}
	}

	return TimedResponseData{
		Response:   resp,
		BodyBytes:  len(bodyBytes),
		StatusCode: resp.StatusCode,
		Duration:   elapsed,
	}
}

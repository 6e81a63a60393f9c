package utils

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GetDomainFromURL extracts the hostname from a URL string.
func GetDomainFromURL(urlString string) (string, error) {
	u, err := url.Parse(urlString)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

// IsThrottled checks whether a response indicates the server is rate limiting
// us. Throttled responses must never feed the timing analysis: a delayed 429
// says something about the limiter, not about the injected sleep.
func IsThrottled(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return true
	}
	return resp.Header.Get("Retry-After") != ""
}

// RetryAfterDelay parses the Retry-After header of a throttled response.
// Supports both the delta-seconds and the HTTP-date form. Returns 0 if the
// header is absent or unparseable.
func RetryAfterDelay(headers http.Header) time.Duration {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if wait := time.Until(t); wait > 0 {
			return wait
		}
	}
	return 0
}

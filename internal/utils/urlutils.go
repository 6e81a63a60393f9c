package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var (
	// schemePattern checks if the URL starts with a scheme like http:// or https://
	schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+-.]*://`)
)

// SanitizeURLString trims whitespace and prepends an http:// scheme when the
// input has none, so that raw host[:port] targets parse as absolute URLs.
func SanitizeURLString(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}
	if !schemePattern.MatchString(trimmed) {
		return "http://" + trimmed
	}
	return trimmed
}

// IsValidURL reports whether the string parses as an absolute http(s) URL
// with a host.
func IsValidURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// NormalizeURL normalizes a URL for more effective deduplication.
// It lowercases the scheme and host, strips a leading 'www.' and sorts query
// parameters (and their values) so that equivalent targets compare equal.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	u.Host = host

	if u.RawQuery != "" {
		query := u.Query()
		sortedQuery := make(url.Values)
		var keys []string
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			values := query[k]
			sort.Strings(values)
			for _, v := range values {
				sortedQuery.Add(k, v)
			}
		}
		u.RawQuery = sortedQuery.Encode()
	}

	return u.String(), nil
}

// PreprocessTargets sanitizes, validates and deduplicates a list of raw
// target strings. Invalid entries are dropped with a warning. The returned
// slice preserves first-seen order.
func PreprocessTargets(rawTargets []string, logger Logger) []string {
	seen := make(map[string]bool)
	var targets []string

	for _, raw := range rawTargets {
		target := SanitizeURLString(raw)
		if target == "" {
			continue
		}
		if !IsValidURL(target) {
			logger.Warnf("Skipping invalid target URL: %s", raw)
			continue
		}
		// Deduplicate on the normalized form but keep the original string:
		// the delay token may live inside a query value the normalization
		// re-encodes.
		normalized, err := NormalizeURL(target)
		if err != nil {
			normalized = target
		}
		if seen[normalized] {
			logger.Debugf("Skipping duplicate target URL: %s", raw)
			continue
		}
		seen[normalized] = true
		targets = append(targets, target)
	}

	return targets
}

// ExtractBaseDomain returns the registrable domain (eTLD+1) of a URL, e.g.
// "sub.example.co.uk" -> "example.co.uk". Falls back to the full hostname
// when the public suffix list cannot produce one (IPs, localhost, etc.).
// Used to group targets for per-domain pacing.
func ExtractBaseDomain(urlString string) (string, error) {
	host, err := GetDomainFromURL(urlString)
	if err != nil {
		return "", err
	}
	if host == "" {
		return "", fmt.Errorf("no hostname in URL: %s", urlString)
	}
	base, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return base, nil
}

// ContainsDelayToken reports whether the target carries the delay placeholder.
func ContainsDelayToken(target, token string) bool {
	return token != "" && strings.Contains(target, token)
}

// SubstituteDelayToken replaces every occurrence of the delay placeholder in
// the target with the given number of seconds. Delays are emitted as whole
// seconds because sleep primitives (SLEEP(n), pg_sleep(n), `sleep n`) take
// integer arguments; fractional basis values are rounded up so the requested
// delay is never silently shortened.
func SubstituteDelayToken(target, token string, delaySeconds float64) (string, error) {
	if !ContainsDelayToken(target, token) {
		return "", fmt.Errorf("target does not contain delay token '%s': %s", token, target)
	}
	whole := int(delaySeconds)
	if float64(whole) < delaySeconds {
		whole++
	}
	return strings.ReplaceAll(target, token, strconv.Itoa(whole)), nil
}

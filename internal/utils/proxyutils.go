package utils

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rafabd1/Foxglove/internal/config"
)

// ParseProxyInput parses a proxy input string (a single proxy URL, a
// comma-separated list of proxy URLs, or a path to a file with one proxy per
// line) into a slice of ProxyEntry structs.
func ParseProxyInput(proxyInput string, logger Logger) ([]config.ProxyEntry, error) {
	if proxyInput == "" {
		return nil, nil
	}

	var proxyStrings []string
	if _, err := os.Stat(proxyInput); err == nil {
		logger.Debugf("Proxy input '%s' appears to be a file. Attempting to read.", proxyInput)
		file, errOpen := os.Open(proxyInput)
		if errOpen != nil {
			return nil, fmt.Errorf("failed to open proxy file '%s': %w", proxyInput, errOpen)
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				proxyStrings = append(proxyStrings, line)
			}
		}
		if errScan := scanner.Err(); errScan != nil {
			return nil, fmt.Errorf("error reading proxy file '%s': %w", proxyInput, errScan)
		}
	} else {
		proxyStrings = strings.Split(proxyInput, ",")
	}

	var parsedProxies []config.ProxyEntry
	for _, str := range proxyStrings {
		trimmed := strings.TrimSpace(str)
		if trimmed == "" {
			continue
		}

		urlStr := trimmed
		if !strings.Contains(urlStr, "://") {
			urlStr = "http://" + urlStr
		}

		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			logger.Warnf("Failed to parse proxy string '%s': %v. Skipping this proxy.", trimmed, err)
			continue
		}
		if parsedURL.Hostname() == "" {
			logger.Warnf("Proxy string '%s' has no host. Skipping.", trimmed)
			continue
		}

		entry := config.ProxyEntry{
			Scheme: parsedURL.Scheme,
			Host:   parsedURL.Host,
		}
		if parsedURL.User != nil {
			entry.Username = parsedURL.User.Username()
			entry.Password, _ = parsedURL.User.Password()
		}
		entry.URL = entry.String()
		parsedProxies = append(parsedProxies, entry)
	}

	if len(proxyStrings) > 0 && len(parsedProxies) == 0 {
		return nil, fmt.Errorf("proxy input '%s' provided, but no valid proxies could be parsed", proxyInput)
	}
	logger.Infof("Successfully parsed %d proxies.", len(parsedProxies))
	return parsedProxies, nil
}

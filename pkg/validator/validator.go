package validator

import (
	"net/url"
	"strings"
)

// ValidateURL checks that urlStr is an absolute http(s) URL with a host
func ValidateURL(urlStr string) error {
	urlStr = strings.TrimSpace(urlStr)

	if urlStr == "" {
		return ErrEmptyURL
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return ErrInvalidURL
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return ErrInvalidScheme
	}

	if parsedURL.Host == "" {
		return ErrInvalidHost
	}

	return nil
}

// ValidateEndpoint accepts either an absolute http(s) URL or a
// server-relative path such as /save
func ValidateEndpoint(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ErrEmptyURL
	}
	if strings.Contains(endpoint, "://") {
		return ValidateURL(endpoint)
	}
	if !strings.HasPrefix(endpoint, "/") {
		return ErrInvalidPath
	}
	if _, err := url.Parse(endpoint); err != nil {
		return ErrInvalidURL
	}
	return nil
}

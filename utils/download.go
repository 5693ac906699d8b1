package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultMaxDownloadSize caps the number of bytes accepted from a remote source.
const DefaultMaxDownloadSize = 32 << 20

// Download retrieves the resource found at the provided url and returns its content.
// The request is bound to ctx; a non 2xx status code is reported as an error.
// In case the response exceeds maxSize bytes the download is aborted.
func Download(ctx context.Context, client *http.Client, uri string, maxSize int64) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxDownloadSize
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create request for URI %s: %w", uri, err)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to download file from URI: %s: %w", uri, err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unable to download file from URI: %s, status %v", uri, res.Status)
	}

	// Read one byte more than the limit to detect oversized payloads.
	data, err := io.ReadAll(io.LimitReader(res.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read response body: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("the downloaded file exceeds the %d bytes limit", maxSize)
	}

	return data, nil
}

// IsValidUrl tests a string to determine if it is a well-structured url or not.
func IsValidUrl(uri string) bool {
	_, err := url.ParseRequestURI(uri)
	if err != nil {
		return false
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}

	return u.Scheme == "http" || u.Scheme == "https"
}

// IsDataUrl reports whether the uri uses the data: scheme.
func IsDataUrl(uri string) bool {
	return strings.HasPrefix(strings.ToLower(uri), "data:")
}

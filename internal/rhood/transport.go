package rhood

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Non-library User-Agent so we don't get blocked by API gateways.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.4 Safari/605.1.15"

// baseTransport returns the shared HTTP transport configuration used for
// upstream calls.
func baseTransport() *http.Transport {
	return &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
	}
}

// NewHTTPClient creates a resty client configured for upstream requests.
// Retries are owned by the pipeline, not by resty.
func NewHTTPClient() *resty.Client {
	httpc := &http.Client{
		Transport: baseTransport(),
		Timeout:   60 * time.Second,
	}
	return resty.NewWithClient(httpc).
		SetHeader("User-Agent", userAgent).
		SetRetryCount(0)
}

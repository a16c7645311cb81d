// File: internal/network/client.go
package network

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Defaults for the outbound HTTP client. The mailbox API is the only plain
// HTTP consumer in this application, so the pool is sized for a single host.
const (
	DefaultRequestTimeout        = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 5 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second

	DefaultMaxIdleConns        = 10
	DefaultMaxIdleConnsPerHost = 5
	DefaultIdleConnTimeout     = 30 * time.Second
)

// ClientConfig holds the configuration for the HTTP client and transport layers.
type ClientConfig struct {
	RequestTimeout        time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IgnoreTLSErrors       bool
}

// NewDefaultClientConfig returns a configuration with sane single-host defaults.
func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RequestTimeout:        DefaultRequestTimeout,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
	}
}

// NewClient builds an *http.Client whose transport transparently negotiates
// and unwraps brotli/gzip compression. The caller is responsible for closing
// each Response.Body after consuming it.
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = NewDefaultClientConfig()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: config.IgnoreTLSErrors,
		},
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		ForceAttemptHTTP2:     true,
		// The middleware negotiates compression itself; stdlib gzip handling
		// would fight it over the Accept-Encoding header.
		DisableCompression: true,
	}

	return &http.Client{
		Transport: NewCompressionMiddleware(transport),
		Timeout:   config.RequestTimeout,
	}
}

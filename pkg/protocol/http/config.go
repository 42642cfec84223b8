package http

import (
	"crypto/tls"
	"net/url"
	"time"
)

type ClientConfig struct {
	// Connection settings
	ProxyURL            *url.URL
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	MaxRedirects        int

	// Timeouts
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	// The PS3 update CDN presents a certificate chain that fails normal
	// verification, so verification is skipped by default.
	SkipTLSVerify bool
	TLSConfig     *tls.Config

	// Headers applied to every request
	DefaultHeaders map[string]string
}

// DefaultConfig returns a ClientConfig with sensible defaults.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       10,
		IdleConnTimeout:       90 * time.Second,
		MaxRedirects:          10,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		SkipTLSVerify:         true,

		DefaultHeaders: map[string]string{
			"User-Agent": "psupd/1.0",
		},
	}
}

package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ResourceInfo describes a remote resource as discovered by Probe.
type ResourceInfo struct {
	Size           int64
	SupportsRanges bool
	Filename       string
	ContentType    string
	LastModified   string
	ETag           string
}

// Client wraps net/http with the probing and ranged-request helpers the
// download engine needs.
type Client struct {
	client    *http.Client
	transport *http.Transport
	config    ClientConfig
}

func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,

		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	if config.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(config.ProxyURL)
	}

	switch {
	case config.TLSConfig != nil:
		transport.TLSClientConfig = config.TLSConfig
	case config.SkipTLSVerify:
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return &HTTPError{
					Type:      ErrorTypeHTTP,
					Operation: "redirect",
					URL:       req.URL.String(),
					Status:    http.StatusTooManyRequests,
					Err:       fmt.Errorf("too many redirects (max: %d)", config.MaxRedirects),
				}
			}
			return nil
		},
	}

	return &Client{
		client:    client,
		transport: transport,
		config:    *config,
	}
}

// Probe determines the total size of the resource and whether the server
// honors byte-range requests. It tries HEAD first; servers that reject
// HEAD get a minimal-range GET instead.
func (c *Client) Probe(ctx context.Context, urlStr string) (*ResourceInfo, error) {
	if len(urlStr) == 0 {
		return nil, errors.New("url is empty")
	}

	if !c.Supports(urlStr) {
		return nil, fmt.Errorf("unsupported URL scheme: %s", urlStr)
	}

	info, headErr := c.headRequest(ctx, urlStr)
	if headErr == nil && info.SupportsRanges {
		return info, nil
	}

	if headErr != nil {
		var httpErr *HTTPError
		if ok := errors.As(headErr, &httpErr); !ok {
			return nil, headErr
		}

		if httpErr.Status != http.StatusMethodNotAllowed && httpErr.Status != http.StatusForbidden {
			return nil, headErr
		}
	}

	// Either HEAD is not allowed, or it did not advertise ranges; a trial
	// partial request settles whether 206 is actually served.
	fallbackInfo, fbErr := c.rangeCheck(ctx, urlStr)
	if fbErr != nil {
		if headErr != nil {
			return nil, fmt.Errorf("HEAD error: %w, fallback GET error: %v", headErr, fbErr)
		}
		return info, nil
	}

	if info != nil && fallbackInfo.Size <= 0 {
		fallbackInfo.Size = info.Size
	}

	return fallbackInfo, nil
}

func (c *Client) headRequest(ctx context.Context, urlStr string) (*ResourceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HEAD request: %w", err)
	}

	c.applyHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewNetworkError("HEAD", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewStatusError("HEAD", urlStr, resp.StatusCode,
			fmt.Errorf("HEAD request returned status %d", resp.StatusCode))
	}

	return &ResourceInfo{
		Size:           resp.ContentLength,
		SupportsRanges: strings.Contains(strings.ToLower(resp.Header.Get("Accept-Ranges")), "bytes"),
		Filename:       c.getFilename(resp.Header, urlStr),
		ContentType:    resp.Header.Get("Content-Type"),
		LastModified:   resp.Header.Get("Last-Modified"),
		ETag:           resp.Header.Get("ETag"),
	}, nil
}

func (c *Client) rangeCheck(ctx context.Context, urlStr string) (*ResourceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create range-check request: %w", err)
	}

	c.applyHeaders(req)
	req.Header.Set("Range", "bytes=0-0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewNetworkError("rangeCheck", urlStr, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		totalSize := int64(-1)
		if contentRange := resp.Header.Get("Content-Range"); contentRange != "" {
			// "bytes 0-0/1234"
			if parts := strings.Split(contentRange, "/"); len(parts) == 2 {
				if size, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
					totalSize = size
				}
			}
		}

		return &ResourceInfo{
			Size:           totalSize,
			SupportsRanges: true,
			Filename:       c.getFilename(resp.Header, urlStr),
			ContentType:    resp.Header.Get("Content-Type"),
			LastModified:   resp.Header.Get("Last-Modified"),
			ETag:           resp.Header.Get("ETag"),
		}, nil

	case http.StatusOK:
		return &ResourceInfo{
			Size:           resp.ContentLength,
			SupportsRanges: false,
			Filename:       c.getFilename(resp.Header, urlStr),
			ContentType:    resp.Header.Get("Content-Type"),
			LastModified:   resp.Header.Get("Last-Modified"),
			ETag:           resp.Header.Get("ETag"),
		}, nil

	default:
		return nil, NewStatusError("GET", urlStr, resp.StatusCode,
			errors.New("unexpected status code"))
	}
}

// Get issues a plain streaming GET. The caller owns the response body.
func (c *Client) Get(ctx context.Context, urlStr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}

	c.applyHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewNetworkError("GET", urlStr, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, NewStatusError("GET", urlStr, resp.StatusCode,
			fmt.Errorf("GET request returned status %d", resp.StatusCode))
	}

	return resp, nil
}

// GetRange issues a GET for the inclusive byte range [start, end].
// Anything other than 206 Partial Content is an error: a 200 here would
// silently hand back the whole file.
func (c *Client) GetRange(ctx context.Context, urlStr string, start, end int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranged GET request: %w", err)
	}

	c.applyHeaders(req)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewNetworkError("GET", urlStr, err)
	}

	if resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, NewStatusError("GET", urlStr, resp.StatusCode,
			fmt.Errorf("range request returned status %d, expected 206", resp.StatusCode))
	}

	return resp, nil
}

// Head issues a HEAD request and reports only whether it succeeded.
func (c *Client) Head(ctx context.Context, urlStr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, urlStr, nil)
	if err != nil {
		return fmt.Errorf("failed to create HEAD request: %w", err)
	}

	c.applyHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return NewNetworkError("HEAD", urlStr, err)
	}
	resp.Body.Close()

	return nil
}

func (c *Client) applyHeaders(req *http.Request) {
	for k, v := range c.config.DefaultHeaders {
		req.Header.Set(k, v)
	}
}

func (c *Client) getFilename(header http.Header, urlStr string) string {
	if cd := header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if filename := params["filename"]; filename != "" {
				return filename
			}
		}
	}

	parsedURL, _ := url.Parse(urlStr)
	if parsedURL != nil && parsedURL.Path != "" {
		segments := strings.Split(parsedURL.Path, "/")
		if len(segments) > 0 {
			last := segments[len(segments)-1]
			if last != "" {
				return last
			}
		}
	}

	return "update.pkg"
}

func (c *Client) Supports(urlStr string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

func (c *Client) Cleanup() error {
	c.transport.CloseIdleConnections()
	return nil
}

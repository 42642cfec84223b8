package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupports(t *testing.T) {
	client := NewClient(nil)

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{
			name: "supports http",
			url:  "http://example.com",
			want: true,
		},
		{
			name: "supports https",
			url:  "https://example.com",
			want: true,
		},
		{
			name: "doesn't support ftp",
			url:  "ftp://example.com",
			want: false,
		},
		{
			name: "doesn't support invalid url",
			url:  "not-a-url",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := client.Supports(tt.url)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProbe(t *testing.T) {
	t.Run("HEAD with range support", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
			w.Header().Set("Content-Length", "1000")
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Accept-Ranges", "bytes")
		}))
		defer server.Close()

		client := NewClient(nil)
		info, err := client.Probe(context.Background(), server.URL+"/game/update.pkg")

		require.NoError(t, err)
		assert.Equal(t, int64(1000), info.Size)
		assert.True(t, info.SupportsRanges)
		assert.Equal(t, "update.pkg", info.Filename)
	})

	t.Run("HEAD rejected, range GET answers 206", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}

			assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
			w.Header().Set("Content-Range", "bytes 0-0/4321")
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte{0})
		}))
		defer server.Close()

		client := NewClient(nil)
		info, err := client.Probe(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, int64(4321), info.Size)
		assert.True(t, info.SupportsRanges)
	})

	t.Run("no range support at all", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "500")
			w.WriteHeader(http.StatusOK)
			if r.Method != http.MethodHead {
				w.Write(make([]byte, 500))
			}
		}))
		defer server.Close()

		client := NewClient(nil)
		info, err := client.Probe(context.Background(), server.URL)

		require.NoError(t, err)
		assert.False(t, info.SupportsRanges)
		assert.Equal(t, int64(500), info.Size)
	})

	t.Run("filename from content disposition", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Disposition", `attachment; filename="patch.pkg"`)
			w.Header().Set("Accept-Ranges", "bytes")
		}))
		defer server.Close()

		client := NewClient(nil)
		info, err := client.Probe(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, "patch.pkg", info.Filename)
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(nil)
		_, err := client.Probe(context.Background(), server.URL)

		assert.Error(t, err)
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		client := NewClient(nil)
		_, err := client.Probe(ctx, server.URL)
		assert.Error(t, err)
	})
}

func TestGetRange(t *testing.T) {
	payload := []byte("0123456789abcdef")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "data.bin", time.Time{}, strings.NewReader(string(payload)))
	}))
	defer server.Close()

	client := NewClient(nil)

	t.Run("returns requested slice", func(t *testing.T) {
		resp, err := client.GetRange(context.Background(), server.URL, 4, 7)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte("4567"), body)
	})

	t.Run("non-206 is an error", func(t *testing.T) {
		full := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Ignores the Range header entirely.
			fmt.Fprint(w, "whole body")
		}))
		defer full.Close()

		_, err := client.GetRange(context.Background(), full.URL, 0, 3)
		require.Error(t, err)

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusOK, httpErr.Status)
	})
}

func TestGet(t *testing.T) {
	t.Run("streams body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "hello")
		}))
		defer server.Close()

		client := NewClient(nil)
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("404 is an error", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		client := NewClient(nil)
		_, err := client.Get(context.Background(), server.URL)
		assert.Error(t, err)
	})
}

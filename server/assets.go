package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gaurav-prasanna/auditpipe/core"
)

// staticExtensions are the file types passed through to the static origin.
var staticExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true, ".bmp": true,
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".pdf": true, ".txt": true, ".xml": true, ".json": true, ".webmanifest": true,
}

// IsStaticAsset reports whether a request path names a static file.
func IsStaticAsset(p string) bool {
	if strings.Contains(p, "..") {
		return false
	}
	return staticExtensions[strings.ToLower(path.Ext(p))]
}

// passthroughHeaders are copied from the origin response.
var passthroughHeaders = []string{"Content-Type", "Cache-Control", "ETag", "Last-Modified"}

// AssetProxy serves static files from an origin with one GET per request.
type AssetProxy struct {
	origin string
	client *http.Client
}

// NewAssetProxy creates an AssetProxy for origin. timeout bounds each fetch.
func NewAssetProxy(origin string, timeout time.Duration) *AssetProxy {
	return &AssetProxy{
		origin: strings.TrimRight(origin, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// Serve copies the origin's response for r.URL.Path to w. The path is sent
// in its escaped form so %3F and %23 stay part of it. An origin 404 is
// reported as not found; any other failure is an upstream error.
func (p *AssetProxy) Serve(w http.ResponseWriter, r *http.Request) error {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, p.origin+r.URL.EscapedPath(), nil)
	if err != nil {
		return fmt.Errorf("creating asset request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		var timeout interface{ Timeout() bool }
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout()) {
			return fmt.Errorf("asset %s: %w", r.URL.Path, core.ErrUpstreamTimeout)
		}
		return fmt.Errorf("asset %s: %w: %v", r.URL.Path, core.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return notFound("Not Found")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &core.UpstreamError{Op: "asset", StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(body))}
	}

	for _, h := range passthroughHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	return nil
}

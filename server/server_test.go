package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gaurav-prasanna/auditpipe/config"
	"github.com/gaurav-prasanna/auditpipe/core"
	"github.com/gaurav-prasanna/auditpipe/core/fetch"
	"github.com/gaurav-prasanna/auditpipe/core/inject"
	"github.com/gaurav-prasanna/auditpipe/core/render"
	"github.com/gaurav-prasanna/auditpipe/site"
)

// memStore is an in-memory core.Store that counts calls.
type memStore struct {
	mu       sync.Mutex
	articles map[string]core.Article
	err      error
	hits     atomic.Int32
}

func newMemStore(articles ...core.Article) *memStore {
	m := &memStore{articles: map[string]core.Article{}}
	for _, a := range articles {
		m.articles[a.Slug] = a
	}
	return m
}

func (m *memStore) GetBySlug(_ context.Context, slug string) (*core.Article, error) {
	m.hits.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[slug]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memStore) ListPublished(_ context.Context, limit int) ([]core.Article, error) {
	m.hits.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []core.Article{}
	for _, a := range m.articles {
		if a.Published() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt().After(out[j].UpdatedAt().Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type panicStore struct{ memStore }

func (p *panicStore) GetBySlug(context.Context, string) (*core.Article, error) {
	panic("boom")
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.URL = "https://db.example"
	cfg.Store.Key = "anon"
	cfg.Site.BaseURL = "https://audits.example"
	cfg.Monetization.CheckoutURL = "https://pay.example/buy"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, store core.Store) *Server {
	t.Helper()
	return New(cfg, store, site.FromConfig(cfg, render.DefaultLayout()), zap.NewNop())
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func strPtr(s string) *string { return &s }

func ts(s string) core.Timestamp {
	t, err := core.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

var (
	texas = core.Article{
		Slug:         "tx-rn",
		Keyword:      "texas rn license",
		FinalArticle: strPtr("# Texas RN License\n\nThe board charges **$150**."),
		LastMinedAt:  ts("2026-01-05T10:00:00Z"),
		PDFURL:       "https://cdn.example/tx-rn.pdf",
	}
	california = core.Article{
		Slug:         "ca-teacher",
		Keyword:      "california teacher credential",
		FinalArticle: strPtr(strings.Repeat("Requirement paragraph.\n\n", 12)),
		LastMinedAt:  ts("2026-02-01T09:00:00Z"),
	}
	pending = core.Article{Slug: "ny-cpa", Keyword: "new york cpa"}
)

func TestHome(t *testing.T) {
	t.Run("empty catalog", func(t *testing.T) {
		store := newMemStore()
		rec := get(t, newTestServer(t, testConfig(), store), "/")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "No audits have been published yet.")
		assert.NotContains(t, rec.Body.String(), `class="audit-card"`)
		assert.Equal(t, int32(1), store.hits.Load())
	})

	t.Run("grid", func(t *testing.T) {
		s := newTestServer(t, testConfig(), newMemStore(texas, california, pending))

		for _, path := range []string{"/", "/index.html"} {
			rec := get(t, s, path)
			require.Equal(t, http.StatusOK, rec.Code, path)
			body := rec.Body.String()
			assert.Equal(t, 2, strings.Count(body, `class="audit-card"`))
			assert.Less(t, strings.Index(body, "#AUD-CA-"), strings.Index(body, "#AUD-TX-"), "newest first")
		}
	})

	t.Run("limit", func(t *testing.T) {
		cfg := testConfig()
		cfg.Store.HomeLimit = 1
		rec := get(t, newTestServer(t, cfg, newMemStore(texas, california)), "/")
		assert.Equal(t, 1, strings.Count(rec.Body.String(), `class="audit-card"`))
	})
}

func TestArticle(t *testing.T) {
	store := newMemStore(texas, california, pending)
	s := newTestServer(t, testConfig(), store)

	t.Run("published", func(t *testing.T) {
		rec := get(t, s, "/p/tx-rn")
		require.Equal(t, http.StatusOK, rec.Code)

		body := rec.Body.String()
		assert.Equal(t, 1, inject.Count(body))
		assert.Contains(t, body, "https://pay.example/buy?product_id=tx-rn")
		assert.Contains(t, body, "<strong>$150</strong>")
		assert.Empty(t, render.Placeholders(body))
	})

	t.Run("long article gets two blocks", func(t *testing.T) {
		rec := get(t, s, "/p/ca-teacher")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, inject.Count(rec.Body.String()))
	})

	t.Run("pending", func(t *testing.T) {
		rec := get(t, s, "/p/ny-cpa")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Audit Under Construction...")
		assert.Equal(t, 0, inject.Count(rec.Body.String()))
	})

	t.Run("unknown slug", func(t *testing.T) {
		rec := get(t, s, "/p/does-not-exist")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Article Not Found", rec.Body.String())
	})

	t.Run("invalid slug skips store", func(t *testing.T) {
		before := store.hits.Load()
		rec := get(t, s, "/p/bad%20slug")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, before, store.hits.Load())
	})

	t.Run("idempotent", func(t *testing.T) {
		first := get(t, s, "/p/tx-rn").Body.String()
		second := get(t, s, "/p/tx-rn").Body.String()
		assert.Equal(t, first, second)
	})
}

func TestSuccess(t *testing.T) {
	s := newTestServer(t, testConfig(), newMemStore(texas, pending))

	rec := get(t, s, "/success")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing product_id", rec.Body.String())

	rec = get(t, s, "/success?product_id=nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s, "/success?product_id=tx-rn")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://cdn.example/tx-rn.pdf", rec.Header().Get("Location"))

	rec = get(t, s, "/success?product_id=ny-cpa")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your Report Is Being Prepared")
}

func TestSitemap(t *testing.T) {
	rec := get(t, newTestServer(t, testConfig(), newMemStore(texas, pending)), "/sitemap.xml")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<loc>https://audits.example/</loc>")
	assert.Contains(t, body, "<loc>https://audits.example/p/tx-rn</loc>")
	assert.Contains(t, body, "<priority>1.0</priority>")
	assert.Contains(t, body, "<lastmod>2026-01-05</lastmod>")
	assert.NotContains(t, body, "ny-cpa")
}

func TestStaticPages(t *testing.T) {
	store := newMemStore()
	s := newTestServer(t, testConfig(), store)

	for _, path := range site.StaticPaths() {
		rec := get(t, s, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, render.Placeholders(rec.Body.String()), path)
	}

	rec := get(t, s, "/robots.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sitemap: https://audits.example/sitemap.xml")

	rec = get(t, s, "/wp-admin")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", rec.Body.String())

	assert.Zero(t, store.hits.Load())
}

func TestExactRouting(t *testing.T) {
	store := newMemStore(texas)
	s := newTestServer(t, testConfig(), store)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/p/tx-rn/").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/p/").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/p/tx-rn/extra").Code)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/p/tx-rn", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Zero(t, store.hits.Load())
	assert.Equal(t, http.StatusOK, get(t, s, "/index.html").Code)
}

func TestMissingConfiguration(t *testing.T) {
	for _, tt := range []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"no key", func(c *config.Config) { c.Store.Key = "" }, "store.key"},
		{"no url", func(c *config.Config) { c.Store.URL = "" }, "store.url"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			store := newMemStore(texas)
			s := newTestServer(t, cfg, store)

			paths := []string{"/", "/p/tx-rn", "/success?product_id=tx-rn", "/sitemap.xml", "/about", "/robots.txt", "/wp-admin"}
			for _, path := range paths {
				rec := get(t, s, path)
				assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
				assert.Contains(t, rec.Body.String(), tt.field, path)
			}
			assert.Zero(t, store.hits.Load())
		})
	}
}

func TestUpstreamFailures(t *testing.T) {
	t.Run("store status is reported", func(t *testing.T) {
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"message":"maintenance window"}`)
		}))
		defer origin.Close()

		cfg := testConfig()
		cfg.Store.URL = origin.URL
		store := fetch.NewREST(fetch.RESTOptions{BaseURL: cfg.Store.URL, Key: cfg.Store.Key})
		defer store.Close()
		s := newTestServer(t, cfg, store)

		for _, path := range []string{"/", "/p/tx-rn"} {
			rec := get(t, s, path)
			assert.Equal(t, http.StatusBadGateway, rec.Code, path)
			assert.Contains(t, rec.Body.String(), "503", path)
			assert.Contains(t, rec.Body.String(), "maintenance window", path)
		}
	})

	t.Run("store timeout", func(t *testing.T) {
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer origin.Close()

		cfg := testConfig()
		store := fetch.NewREST(fetch.RESTOptions{BaseURL: origin.URL, Key: "k", Timeout: 50 * time.Millisecond})
		defer store.Close()

		rec := get(t, newTestServer(t, cfg, store), "/p/tx-rn")
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("unexpected error", func(t *testing.T) {
		store := newMemStore()
		store.err = errors.New("disk on fire")

		rec := get(t, newTestServer(t, testConfig(), store), "/")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal Error: home: disk on fire", rec.Body.String())
	})

	t.Run("panic is recovered", func(t *testing.T) {
		rec := get(t, newTestServer(t, testConfig(), &panicStore{}), "/p/tx-rn")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal Error: panic: boom", rec.Body.String())
	})
}

func TestStaticAssetPassthrough(t *testing.T) {
	var originHits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits.Add(1)
		switch r.URL.Path {
		case "/css/site.css":
			w.Header().Set("Content-Type", "text/css")
			_, _ = io.WriteString(w, "body{}")
		case "/broken.js":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer origin.Close()

	cfg := testConfig()
	cfg.Site.StaticOrigin = origin.URL
	s := newTestServer(t, cfg, newMemStore())

	rec := get(t, s, "/css/site.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
	assert.Equal(t, "body{}", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, s, "/missing.png").Code)
	assert.Equal(t, http.StatusBadGateway, get(t, s, "/broken.js").Code)

	before := originHits.Load()
	assert.Equal(t, http.StatusNotFound, get(t, s, "/not-an-asset").Code)
	assert.Equal(t, before, originHits.Load())

	noOrigin := newTestServer(t, testConfig(), newMemStore())
	assert.Equal(t, http.StatusNotFound, get(t, noOrigin, "/css/site.css").Code)
}

func TestStaticAssetPassthrough_EscapedPath(t *testing.T) {
	type seen struct{ path, rawQuery string }
	got := make(chan seen, 1)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- seen{r.URL.Path, r.URL.RawQuery}
		_, _ = io.WriteString(w, "ok")
	}))
	defer origin.Close()

	cfg := testConfig()
	cfg.Site.StaticOrigin = origin.URL
	s := newTestServer(t, cfg, newMemStore())

	rec := get(t, s, "/img/a%3Fb%23c.png")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, seen{path: "/img/a?b#c.png", rawQuery: ""}, <-got)
}

func TestIsStaticAsset(t *testing.T) {
	assert.True(t, IsStaticAsset("/img/logo.PNG"))
	assert.True(t, IsStaticAsset("/reports/sample.pdf"))
	assert.False(t, IsStaticAsset("/p/tx-rn"))
	assert.False(t, IsStaticAsset("/../secret.css"))
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, testConfig(), newMemStore())

	rec := get(t, s, "/about")
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	rec = get(t, s, "/p/missing")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/about", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, incoming, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/about", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid\r\n")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid\r\n", rec.Header().Get(RequestIDHeader))
}

func TestServe_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ShutdownTimeout = time.Second
	s := newTestServer(t, cfg, newMemStore(texas))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/p/tx-rn", ln.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

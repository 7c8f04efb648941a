// Package server is the AuditPipe HTTP router.
//
// Every route is a handlerFunc that returns an error instead of writing a
// failure itself. handle is the single per-request error boundary: it maps
// errors to status codes, recovers panics and logs the outcome.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gaurav-prasanna/auditpipe/config"
	"github.com/gaurav-prasanna/auditpipe/core"
	"github.com/gaurav-prasanna/auditpipe/core/render"
	"github.com/gaurav-prasanna/auditpipe/site"
)

// Server routes requests to page builders.
type Server struct {
	cfg    *config.Config
	store  core.Store
	pages  *site.Builder
	assets *AssetProxy
	log    *zap.Logger
	engine *gin.Engine
}

// New creates a Server. store may be nil only when the configuration is
// incomplete; every store-backed route then fails its configuration check.
func New(cfg *config.Config, store core.Store, pages *site.Builder, log *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		pages:  pages,
		log:    log,
		engine: newEngine(),
	}
	if cfg.Site.StaticOrigin != "" {
		s.assets = NewAssetProxy(cfg.Site.StaticOrigin, cfg.Store.Timeout)
	}
	s.routes()
	return s
}

// newEngine returns a bare gin engine. Paths are matched exactly: a trailing
// slash or an unknown method falls through to the 404 fallback.
func newEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.RedirectTrailingSlash = false
	e.RedirectFixedPath = false
	e.HandleMethodNotAllowed = false
	return e
}

func (s *Server) routes() {
	s.engine.Use(requestID(), s.logRequests())

	s.engine.GET("/", s.handle(s.handleHome))
	s.engine.GET("/index.html", s.handle(s.handleHome))
	s.engine.GET("/p/:slug", s.handle(s.handleArticle))
	s.engine.GET("/success", s.handle(s.handleSuccess))
	s.engine.GET("/sitemap.xml", s.handle(s.handleSitemap))
	s.engine.GET("/robots.txt", s.handle(s.handleRobots))
	for _, path := range site.StaticPaths() {
		s.engine.GET(path, s.handle(s.handleStatic))
	}
	s.engine.NoRoute(s.handle(s.handleFallback))
}

// Handler returns the router with its request middleware.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
		ErrorLog:          zap.NewStdLog(s.log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		s.log.Info("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// handlerFunc is a route that reports failure by returning an error.
type handlerFunc func(c *gin.Context) error

// handle adapts a handlerFunc. Every route checks the store configuration
// before doing anything else.
func (s *Server) handle(h handlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic serving request",
					zap.Any("panic", rec),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", RequestID(c.Request.Context())),
					zap.Stack("stack"),
				)
				s.writeError(c, fmt.Errorf("panic: %v", rec))
			}
		}()

		if err := s.checkStore(); err != nil {
			s.writeError(c, err)
			return
		}
		if err := h(c); err != nil {
			s.writeError(c, err)
		}
	}
}

func (s *Server) checkStore() error {
	if err := s.cfg.RequireStore(); err != nil {
		return err
	}
	if s.store == nil {
		return &core.ConfigError{Field: "store"}
	}
	return nil
}

// writeError answers with the status and plain-text message for err.
func (s *Server) writeError(c *gin.Context, err error) {
	status := core.StatusCode(err)
	msg := errorMessage(status, err)

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status", status),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", RequestID(c.Request.Context())),
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", fields...)
	} else {
		s.log.Debug("request rejected", fields...)
	}

	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(status, "text/plain; charset=utf-8", []byte(msg))
	c.Abort()
}

// errorMessage is the response body for err. Client errors carry their own
// public message; store and configuration failures are reported verbatim
// so a misconfigured deployment can be diagnosed from the response.
func errorMessage(status int, err error) string {
	var ce *clientError
	var cfgErr *core.ConfigError
	switch {
	case errors.As(err, &ce):
		return ce.msg
	case errors.As(err, &cfgErr):
		return cfgErr.Error()
	case status == http.StatusBadGateway, status == http.StatusGatewayTimeout:
		return err.Error()
	case status == http.StatusNotFound:
		return "Not Found"
	default:
		return "Internal Error: " + err.Error()
	}
}

// clientError is a 4xx failure with a public message.
type clientError struct {
	kind error
	msg  string
}

func (e *clientError) Error() string { return e.msg }
func (e *clientError) Unwrap() error { return e.kind }

func notFound(msg string) error   { return &clientError{kind: core.ErrNotFound, msg: msg} }
func badRequest(msg string) error { return &clientError{kind: core.ErrBadRequest, msg: msg} }

func writeHTML(c *gin.Context, page string) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func (s *Server) handleHome(c *gin.Context) error {
	articles, err := s.store.ListPublished(c.Request.Context(), s.cfg.Store.HomeLimit)
	if err != nil {
		return fmt.Errorf("home: %w", err)
	}
	writeHTML(c, s.pages.Home(articles))
	return nil
}

func (s *Server) handleArticle(c *gin.Context) error {
	slug := c.Param("slug")
	if !site.ValidSlug(slug) {
		return notFound("Article Not Found")
	}

	a, err := s.store.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		return fmt.Errorf("article %s: %w", slug, err)
	}
	if a == nil {
		return notFound("Article Not Found")
	}

	page, err := s.pages.Article(a)
	if err != nil {
		return fmt.Errorf("article %s: %w", slug, err)
	}
	writeHTML(c, page)
	return nil
}

// handleSuccess is the post-checkout landing page. It does not verify the
// payment; it only resolves where the report can be downloaded.
func (s *Server) handleSuccess(c *gin.Context) error {
	slug := strings.TrimSpace(c.Query("product_id"))
	if slug == "" {
		return badRequest("Missing product_id")
	}
	if !site.ValidSlug(slug) {
		return notFound("Product Not Found")
	}

	a, err := s.store.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		return fmt.Errorf("success %s: %w", slug, err)
	}
	if a == nil {
		return notFound("Product Not Found")
	}

	if target := a.DeliveryURL(); isHTTPURL(target) {
		c.Redirect(http.StatusFound, target)
		return nil
	}
	writeHTML(c, s.pages.Processing(a))
	return nil
}

func (s *Server) handleSitemap(c *gin.Context) error {
	articles, err := s.store.ListPublished(c.Request.Context(), s.cfg.Store.SitemapLimit)
	if err != nil {
		return fmt.Errorf("sitemap: %w", err)
	}
	data, err := render.Sitemap(s.cfg.Site.BaseURL, articles)
	if err != nil {
		return fmt.Errorf("sitemap: %w", err)
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", data)
	return nil
}

func (s *Server) handleRobots(c *gin.Context) error {
	c.String(http.StatusOK, "User-agent: *\nAllow: /\nDisallow: /success\n\nSitemap: %s/sitemap.xml\n",
		strings.TrimRight(s.cfg.Site.BaseURL, "/"))
	return nil
}

func (s *Server) handleStatic(c *gin.Context) error {
	page, ok := s.pages.Static(c.Request.URL.Path)
	if !ok {
		return notFound("Not Found")
	}
	writeHTML(c, page)
	return nil
}

// handleFallback serves static assets from the configured origin and
// answers 404 for everything else.
func (s *Server) handleFallback(c *gin.Context) error {
	r := c.Request
	if s.assets != nil && r.Method == http.MethodGet && IsStaticAsset(r.URL.Path) {
		return s.assets.Serve(c.Writer, r)
	}
	return notFound("Not Found")
}

func isHTTPURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// logRequests writes one log line per request.
func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", max(c.Writer.Size(), 0)),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", RequestID(c.Request.Context())),
		)
	}
}

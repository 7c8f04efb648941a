// Package fetch implements the Store interface.
// RESTStore reads articles from a PostgREST query interface with one GET per
// call; SQLStore reads the same table from a local SQLite file.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gaurav-prasanna/auditpipe/core"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultTable     = "grich_keywords_pool"
	defaultUserAgent = "AuditPipe/1.0 (+https://github.com/gaurav-prasanna/auditpipe)"

	// maxErrorBody caps how much of a failed response is kept for diagnosis.
	maxErrorBody = 4 << 10
)

// Column projections. The listing omits the body.
const (
	detailColumns  = "slug,keyword,final_article,category,state,last_mined_at,created_at,pdf_url,content_json"
	listingColumns = "slug,keyword,category,state,last_mined_at,created_at"
)

// RESTOptions configures a RESTStore.
type RESTOptions struct {
	BaseURL string
	Key     string
	Table   string
	Timeout time.Duration
	// Client overrides the HTTP client. Mostly useful in tests.
	Client *http.Client
}

// RESTStore reads articles over the store's REST interface.
type RESTStore struct {
	baseURL string
	key     string
	table   string
	timeout time.Duration
	client  *http.Client
}

// NewREST creates a RESTStore. Missing URL or key is not an error here:
// every call reports it as a *core.ConfigError before touching the network.
func NewREST(opts RESTOptions) *RESTStore {
	s := &RESTStore{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		key:     strings.TrimSpace(opts.Key),
		table:   opts.Table,
		timeout: opts.Timeout,
		client:  opts.Client,
	}
	if s.table == "" {
		s.table = defaultTable
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.client == nil {
		s.client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	return s
}

// GetBySlug returns the row with exactly this slug, or nil when absent.
func (s *RESTStore) GetBySlug(ctx context.Context, slug string) (*core.Article, error) {
	q := url.Values{}
	q.Set("select", detailColumns)
	q.Set("slug", "eq."+slug)
	q.Set("limit", "1")

	var rows []core.Article
	if err := s.get(ctx, "detail", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListPublished returns up to limit rows with a body, newest first.
func (s *RESTStore) ListPublished(ctx context.Context, limit int) ([]core.Article, error) {
	q := url.Values{}
	q.Set("select", listingColumns)
	q.Set("final_article", "not.is.null")
	q.Set("order", "last_mined_at.desc.nullslast")
	q.Set("limit", strconv.Itoa(limit))

	rows := []core.Article{}
	if err := s.get(ctx, "listing", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Close releases idle connections held by the client.
func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *RESTStore) checkConfig() error {
	if s.baseURL == "" {
		return &core.ConfigError{Field: "store.url"}
	}
	if s.key == "" {
		return &core.ConfigError{Field: "store.key"}
	}
	return nil
}

// get issues a single GET and decodes the JSON array into out.
func (s *RESTStore) get(ctx context.Context, op string, q url.Values, out any) error {
	if err := s.checkConfig(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", s.baseURL, url.PathEscape(s.table), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &core.UpstreamError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return transportError(op, err)
		}
		return fmt.Errorf("store fetch failed (%s): decoding response: %w: %v", op, core.ErrUpstream, err)
	}
	return nil
}

func transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("store fetch failed (%s): %w", op, core.ErrUpstreamTimeout)
	}
	return fmt.Errorf("store fetch failed (%s): %w: %v", op, core.ErrUpstream, err)
}

package fetch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"

	"github.com/gaurav-prasanna/auditpipe/core"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore reads articles from a local SQLite database with the same table
// layout as the REST store.
type SQLStore struct {
	db    *sql.DB
	table string
}

// OpenSQLite opens the database at dsn and checks the connection.
func OpenSQLite(ctx context.Context, dsn, table string) (*SQLStore, error) {
	if dsn == "" {
		return nil, &core.ConfigError{Field: "store.dsn"}
	}
	if table == "" {
		table = defaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite %s: %w", dsn, err)
	}
	return &SQLStore{db: db, table: table}, nil
}

// EnsureSchema creates the article table when it does not exist yet.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		slug          TEXT PRIMARY KEY,
		keyword       TEXT NOT NULL DEFAULT '',
		final_article TEXT,
		category      TEXT,
		state         TEXT,
		last_mined_at TEXT,
		created_at    TEXT,
		pdf_url       TEXT,
		content_json  TEXT
	)`)
	if err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// DB exposes the underlying handle for seeding and maintenance.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// GetBySlug returns the row with exactly this slug, or nil when absent.
func (s *SQLStore) GetBySlug(ctx context.Context, slug string) (*core.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT slug, keyword, final_article, category, state,
		last_mined_at, created_at, pdf_url, content_json
		FROM `+s.table+` WHERE slug = ? LIMIT 1`, slug)

	var (
		a                             core.Article
		body, category, state         sql.NullString
		mined, created, pdf, contents sql.NullString
	)
	err := row.Scan(&a.Slug, &a.Keyword, &body, &category, &state, &mined, &created, &pdf, &contents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store fetch failed (detail): %w", err)
	}

	if body.Valid {
		a.FinalArticle = &body.String
	}
	a.Category = category.String
	a.State = state.String
	a.PDFURL = pdf.String
	if contents.Valid && contents.String != "" {
		a.ContentJSON = json.RawMessage(contents.String)
	}
	parseTimes(&a, mined, created)
	return &a, nil
}

// ListPublished returns up to limit rows with a body, newest first.
func (s *SQLStore) ListPublished(ctx context.Context, limit int) ([]core.Article, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, keyword, category, state, last_mined_at, created_at
		FROM `+s.table+`
		WHERE final_article IS NOT NULL
		ORDER BY last_mined_at IS NULL, last_mined_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store fetch failed (listing): %w", err)
	}
	defer rows.Close()

	articles := []core.Article{}
	for rows.Next() {
		var (
			a                             core.Article
			category, state, mined, added sql.NullString
		)
		if err := rows.Scan(&a.Slug, &a.Keyword, &category, &state, &mined, &added); err != nil {
			return nil, fmt.Errorf("scanning listing row: %w", err)
		}
		a.Category = category.String
		a.State = state.String
		parseTimes(&a, mined, added)
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store fetch failed (listing): %w", err)
	}
	return articles, nil
}

func parseTimes(a *core.Article, mined, created sql.NullString) {
	a.LastMinedAt = core.LenientTimestamp(mined.String)
	a.CreatedAt = core.LenientTimestamp(created.String)
}

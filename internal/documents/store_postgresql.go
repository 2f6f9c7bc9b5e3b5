package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore stores documents in PostgreSQL.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the documents table and indexes if needed.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			deadline TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at DESC, id DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create documents updated_at index: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_documents_status_deadline ON documents(status, deadline)"); err != nil {
		return nil, fmt.Errorf("failed to create documents status index: %w", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

const pgColumns = "id, organization_id, title, status, content, deadline, created_at, updated_at"

// Create inserts a new document.
func (s *PostgreSQLStore) Create(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (`+pgColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, doc.ID, doc.OrganizationID, doc.Title, string(doc.Status), doc.Content,
		doc.Deadline, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get returns a document by id.
func (s *PostgreSQLStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+pgColumns+" FROM documents WHERE id = $1", id)
	doc, err := scanPGDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query document: %w", err)
	}
	return doc, nil
}

// List returns matching documents ordered by updated_at desc, id desc.
func (s *PostgreSQLStore) List(ctx context.Context, params ListParams) ([]*Document, error) {
	limit := normalizeLimit(params.Limit)

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(params.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(statusStrings(params.Statuses))+")")
	}
	if params.DueBefore != nil {
		where = append(where, "deadline IS NOT NULL AND deadline <= "+arg(*params.DueBefore))
	}
	if params.Query != "" {
		p := arg(likePattern(params.Query))
		where = append(where, "(title ILIKE "+p+" OR content ILIKE "+p+")")
	}

	query := "SELECT " + pgColumns + " FROM documents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT " + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]*Document, 0, limit)
	for rows.Next() {
		doc, err := scanPGDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return items, nil
}

// Update replaces the mutable fields of a stored document.
func (s *PostgreSQLStore) Update(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	cmd, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET organization_id = $1, title = $2, status = $3, content = $4, deadline = $5, updated_at = $6
		WHERE id = $7
	`, doc.OrganizationID, doc.Title, string(doc.Status), doc.Content, doc.Deadline, doc.UpdatedAt, doc.ID)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document.
func (s *PostgreSQLStore) Delete(ctx context.Context, id string) error {
	cmd, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; pool lifecycle is managed by storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}

func scanPGDocument(row pgx.Row) (*Document, error) {
	var (
		doc    Document
		status string
	)
	if err := row.Scan(&doc.ID, &doc.OrganizationID, &doc.Title, &status, &doc.Content,
		&doc.Deadline, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Status = Status(status)
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	if doc.Deadline != nil {
		t := doc.Deadline.UTC()
		doc.Deadline = &t
	}
	return &doc, nil
}

package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore stores documents in SQLite. Timestamps are unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the documents table and indexes if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			deadline INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at DESC, id DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create documents updated_at index: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_documents_status_deadline ON documents(status, deadline)"); err != nil {
		return nil, fmt.Errorf("failed to create documents status index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const sqliteColumns = "id, organization_id, title, status, content, deadline, created_at, updated_at"

// Create inserts a new document.
func (s *SQLiteStore) Create(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.OrganizationID, doc.Title, string(doc.Status), doc.Content,
		nullableMillis(doc.Deadline), doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get returns a document by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanSQLiteDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query document: %w", err)
	}
	return doc, nil
}

// List returns matching documents ordered by updated_at desc, id desc.
func (s *SQLiteStore) List(ctx context.Context, params ListParams) ([]*Document, error) {
	limit := normalizeLimit(params.Limit)

	var (
		where []string
		args  []any
	)
	if len(params.Statuses) > 0 {
		where = append(where, "status IN ("+strings.TrimSuffix(strings.Repeat("?,", len(params.Statuses)), ",")+")")
		for _, st := range params.Statuses {
			args = append(args, string(st))
		}
	}
	if params.DueBefore != nil {
		where = append(where, "deadline IS NOT NULL AND deadline <= ?")
		args = append(args, params.DueBefore.UnixMilli())
	}
	if params.Query != "" {
		where = append(where, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(content) LIKE ? ESCAPE '\')`)
		pattern := likePattern(params.Query)
		args = append(args, pattern, pattern)
	}

	query := "SELECT " + sqliteColumns + " FROM documents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]*Document, 0, limit)
	for rows.Next() {
		doc, err := scanSQLiteDocument(rows)
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
func (s *SQLiteStore) Update(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET organization_id = ?, title = ?, status = ?, content = ?, deadline = ?, updated_at = ?
		WHERE id = ?
	`, doc.OrganizationID, doc.Title, string(doc.Status), doc.Content,
		nullableMillis(doc.Deadline), doc.UpdatedAt.UnixMilli(), doc.ID)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read update rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read delete rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; DB lifecycle is managed by storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDocument(row rowScanner) (*Document, error) {
	var (
		doc                  Document
		status               string
		deadline             sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&doc.ID, &doc.OrganizationID, &doc.Title, &status, &doc.Content,
		&deadline, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.Status = Status(status)
	doc.CreatedAt = time.UnixMilli(createdAt).UTC()
	doc.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if deadline.Valid {
		t := time.UnixMilli(deadline.Int64).UTC()
		doc.Deadline = &t
	}
	return &doc, nil
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

// Package documents persists tender documents.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indicates a requested document was not found.
var ErrNotFound = errors.New("document not found")

// Status is the lifecycle state of a document.
type Status string

// Document statuses
const (
	StatusDraft     Status = "draft"
	StatusInReview  Status = "in_review"
	StatusSubmitted Status = "submitted"
	StatusExpired   Status = "expired"
)

// OpenStatuses are the statuses whose deadline still matters.
var OpenStatuses = []Status{StatusDraft, StatusInReview}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInReview, StatusSubmitted, StatusExpired:
		return true
	}
	return false
}

// Final reports whether s is a terminal status.
func (s Status) Final() bool {
	return s == StatusSubmitted || s == StatusExpired
}

// MaxTitleLength bounds Document.Title.
const MaxTitleLength = 300

// Document is a tender response being drafted.
type Document struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id,omitempty"`
	Title          string     `json:"title"`
	Status         Status     `json:"status"`
	Content        string     `json:"content"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Validate checks the fields every store requires.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("document is nil")
	}
	if d.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("document title is required")
	}
	if len(d.Title) > MaxTitleLength {
		return fmt.Errorf("document title exceeds %d characters", MaxTitleLength)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("invalid document status %q", d.Status)
	}
	return nil
}

// ListParams filters List. Zero values match everything.
type ListParams struct {
	// Statuses restricts results to any of the given statuses.
	Statuses []Status

	// Query is a case-insensitive substring matched against title and content.
	Query string

	// DueBefore keeps only documents with a deadline at or before this time.
	DueBefore *time.Time

	// Limit is clamped to 1..MaxListLimit; zero means DefaultListLimit.
	Limit int
}

// List limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Store defines persistence operations for documents.
// List returns documents ordered by updated_at desc, id desc.
type Store interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, params ListParams) ([]*Document, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id string) error
	Close() error
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// likePattern builds a LIKE pattern matching q anywhere, escaping wildcards with '\'.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(q)) + "%"
}

func cloneDocument(src *Document) *Document {
	dst := *src
	if src.Deadline != nil {
		d := *src.Deadline
		dst.Deadline = &d
	}
	return &dst
}

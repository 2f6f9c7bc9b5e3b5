// Package server provides HTTP handlers and server setup for the CareDraft API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"caredraft/internal/assist"
	"caredraft/internal/cache"
	"caredraft/internal/core"
	"caredraft/internal/documents"
)

// CacheHeader reports whether a read was served from the request cache.
const CacheHeader = "X-Cache"

// DocumentList is the response body of list and search endpoints.
type DocumentList struct {
	Documents []*documents.Document `json:"documents"`
	Count     int                   `json:"count"`
}

// Caches are the request caches used by the document read paths.
type Caches struct {
	Documents *cache.Store[*documents.Document]
	Lists     *cache.Store[*DocumentList]
}

// NewCaches creates both document caches with the same bound.
func NewCaches(maxEntries int, singleFlight bool) Caches {
	return Caches{
		Documents: cache.New[*documents.Document](cache.Options{
			Name:         "documents",
			MaxEntries:   maxEntries,
			DefaultTTL:   cache.PresetDocuments.TTL(),
			SingleFlight: singleFlight,
		}),
		Lists: cache.New[*DocumentList](cache.Options{
			Name:         "document_lists",
			MaxEntries:   maxEntries,
			DefaultTTL:   cache.PresetRealtime.TTL(),
			SingleFlight: singleFlight,
		}),
	}
}

// InvalidateByTag drops tagged entries from both caches.
func (c Caches) InvalidateByTag(tag string) int {
	return c.Documents.InvalidateByTag(tag) + c.Lists.InvalidateByTag(tag)
}

// Sweep purges expired entries from both caches, at most max from each.
func (c Caches) Sweep(max int) int {
	return c.Documents.Sweep(max) + c.Lists.Sweep(max)
}

// Handler holds the HTTP handlers
type Handler struct {
	docs   documents.Store
	assist *assist.Router
	caches Caches
	now    func() time.Time
}

// NewHandler creates a handler. A nil router answers AI routes with 503.
func NewHandler(docs documents.Store, router *assist.Router, caches Caches) *Handler {
	if router == nil {
		router = assist.NewRouter(nil, nil)
	}
	if caches.Documents == nil || caches.Lists == nil {
		caches = NewCaches(cache.DefaultMaxEntries, true)
	}
	return &Handler{
		docs:   docs,
		assist: router,
		caches: caches,
		now:    time.Now,
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListDocuments handles GET /api/documents
func (h *Handler) ListDocuments(c echo.Context) error {
	params, err := listParams(c)
	if err != nil {
		return handleError(c, err)
	}
	return h.cachedList(c, cache.Key("documents", c.QueryParams()), params)
}

// Search handles GET /api/search
func (h *Handler) Search(c echo.Context) error {
	params, err := listParams(c)
	if err != nil {
		return handleError(c, err)
	}
	if strings.TrimSpace(params.Query) == "" {
		return handleError(c, core.NewInvalidRequestError("query parameter q is required", nil))
	}
	return h.cachedList(c, cache.Key("search", c.QueryParams()), params)
}

func (h *Handler) cachedList(c echo.Context, key string, params documents.ListParams) error {
	fetched := false
	list, err := h.caches.Lists.GetOrFetch(c.Request().Context(), key, func(ctx context.Context) (*DocumentList, error) {
		fetched = true
		docs, err := h.docs.List(ctx, params)
		if err != nil {
			return nil, err
		}
		return &DocumentList{Documents: docs, Count: len(docs)}, nil
	}, cache.PresetRealtime.Options(cache.DocumentsTag))
	if err != nil {
		return handleError(c, err)
	}
	setCacheHeader(c, fetched)
	return c.JSON(http.StatusOK, list)
}

// GetDocument handles GET /api/documents/:id
func (h *Handler) GetDocument(c echo.Context) error {
	id := c.Param("id")
	fetched := false
	doc, err := h.caches.Documents.GetOrFetch(c.Request().Context(), "document:"+id, func(ctx context.Context) (*documents.Document, error) {
		fetched = true
		return h.docs.Get(ctx, id)
	}, cache.PresetDocuments.Options(cache.DocumentTag(id)))
	if err != nil {
		return handleError(c, err)
	}
	setCacheHeader(c, fetched)
	return c.JSON(http.StatusOK, doc)
}

// documentRequest is the body of create and update calls. Omitted fields keep
// their current value on update.
type documentRequest struct {
	OrganizationID *string           `json:"organization_id"`
	Title          *string           `json:"title"`
	Status         *documents.Status `json:"status"`
	Content        *string           `json:"content"`
	Deadline       *time.Time        `json:"deadline"`
}

func (r *documentRequest) apply(doc *documents.Document) {
	if r.OrganizationID != nil {
		doc.OrganizationID = *r.OrganizationID
	}
	if r.Title != nil {
		doc.Title = strings.TrimSpace(*r.Title)
	}
	if r.Status != nil {
		doc.Status = *r.Status
	}
	if r.Content != nil {
		doc.Content = *r.Content
	}
	if r.Deadline != nil {
		d := r.Deadline.UTC()
		doc.Deadline = &d
	}
}

// CreateDocument handles POST /api/documents
func (h *Handler) CreateDocument(c echo.Context) error {
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	now := h.now().UTC()
	doc := &documents.Document{
		ID:        uuid.NewString(),
		Status:    documents.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.apply(doc)
	if err := doc.Validate(); err != nil {
		return handleError(c, core.NewInvalidRequestError(err.Error(), err))
	}

	if err := h.docs.Create(c.Request().Context(), doc); err != nil {
		return handleError(c, err)
	}
	h.caches.InvalidateByTag(cache.DocumentsTag)
	return c.JSON(http.StatusCreated, doc)
}

// UpdateDocument handles PUT /api/documents/:id
func (h *Handler) UpdateDocument(c echo.Context) error {
	id := c.Param("id")
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	ctx := c.Request().Context()
	doc, err := h.docs.Get(ctx, id)
	if err != nil {
		return handleError(c, err)
	}
	req.apply(doc)
	doc.UpdatedAt = h.now().UTC()
	if err := doc.Validate(); err != nil {
		return handleError(c, core.NewInvalidRequestError(err.Error(), err))
	}

	if err := h.docs.Update(ctx, doc); err != nil {
		return handleError(c, err)
	}
	h.invalidateDocument(id)
	return c.JSON(http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/:id
func (h *Handler) DeleteDocument(c echo.Context) error {
	id := c.Param("id")
	if err := h.docs.Delete(c.Request().Context(), id); err != nil {
		return handleError(c, err)
	}
	h.invalidateDocument(id)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) invalidateDocument(id string) {
	h.caches.InvalidateByTag(cache.DocumentTag(id))
	h.caches.InvalidateByTag(cache.DocumentsTag)
}

type assistRequest struct {
	Text string      `json:"text"`
	Tone assist.Tone `json:"tone"`
}

// Assist handles POST /api/ai/:operation
func (h *Handler) Assist(c echo.Context) error {
	op := assist.Operation(c.Param("operation"))
	if op.Extraction() {
		return handleError(c, core.NewInvalidRequestError("requirement extraction is served by POST /api/extract", nil))
	}

	var req assistRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	res, err := h.assist.Run(c.Request().Context(), assist.Request{Operation: op, Text: req.Text, Tone: req.Tone})
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Extract handles POST /api/extract
func (h *Handler) Extract(c echo.Context) error {
	var req assistRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	res, err := h.assist.Run(c.Request().Context(), assist.Request{Operation: assist.OpExtractRequirements, Text: req.Text})
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// listParams reads status, q and limit. Status may be repeated or comma separated.
func listParams(c echo.Context) (documents.ListParams, error) {
	var params documents.ListParams
	query := c.QueryParams()

	for _, raw := range query["status"] {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			status := documents.Status(s)
			if !status.Valid() {
				return params, core.NewInvalidRequestError("invalid status: "+s, nil)
			}
			params.Statuses = append(params.Statuses, status)
		}
	}

	params.Query = strings.TrimSpace(query.Get("q"))

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return params, core.NewInvalidRequestError("limit must be a positive integer", err)
		}
		params.Limit = limit
	}
	return params, nil
}

func setCacheHeader(c echo.Context, fetched bool) {
	if fetched {
		c.Response().Header().Set(CacheHeader, "MISS")
	} else {
		c.Response().Header().Set(CacheHeader, "HIT")
	}
}

// handleError converts errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return c.JSON(apiErr.HTTPStatusCode(), apiErr.ToJSON())
	}
	if errors.Is(err, documents.ErrNotFound) {
		notFound := core.NewNotFoundError("document not found")
		return c.JSON(notFound.HTTPStatusCode(), notFound.ToJSON())
	}

	slog.Error("request failed",
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"request_id", c.Response().Header().Get(RequestIDHeader),
		"error", err,
	)
	internal := core.NewInternalError("an unexpected error occurred", err)
	return c.JSON(internal.HTTPStatusCode(), internal.ToJSON())
}

// Package blobstore stores uploaded referral documents. Document refs
// embedded in a referral point at blob IDs here; the disclosure gate
// withholds the ref itself, so a receiver who has not paid never learns
// the ID to fetch.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medref/medref/internal/platform/apperr"
	"github.com/medref/medref/internal/platform/auth"
	"github.com/medref/medref/pkg/pagination"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed document size in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

// AllowedSlots lists the document slots a referral may carry.
var AllowedSlots = map[string]bool{
	"face_sheet":       true,
	"insurance_card":   true,
	"clinical_summary": true,
	"medication_list":  true,
	"imaging":          true,
	"other":            true,
}

// AllowedContentTypes lists accepted document MIME types.
var AllowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// BlobMetadata describes a stored document.
type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ReferralID  string    `json:"referral_id,omitempty"`
	Slot        string    `json:"slot"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
}

// SearchParams filters stored documents.
type SearchParams struct {
	ReferralID    string
	Slot          string
	ContentType   string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	FileName      string // partial match
	Limit         int
	Offset        int
}

// BlobStore is the contract for document storage backends.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
	ListByReferral(ctx context.Context, referralID string, slot string, limit, offset int) ([]*BlobMetadata, int, error)
	Search(ctx context.Context, params SearchParams) ([]*BlobMetadata, int, error)
}

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing
// and development.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
	}
}

// Upload validates inputs, reads the content, computes a SHA-256 hash,
// and stores the document.
func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if meta.ContentType != "" && !AllowedContentTypes[meta.ContentType] {
		return nil, ErrInvalidContentType
	}
	if !AllowedSlots[meta.Slot] {
		meta.Slot = "other"
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	meta.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return &meta, nil
}

// ListByReferral is Search restricted to one referral.
func (s *InMemoryBlobStore) ListByReferral(ctx context.Context, referralID, slot string, limit, offset int) ([]*BlobMetadata, int, error) {
	return s.Search(ctx, SearchParams{
		ReferralID: referralID,
		Slot:       slot,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *InMemoryBlobStore) Search(_ context.Context, params SearchParams) ([]*BlobMetadata, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*BlobMetadata
	for _, b := range s.blobs {
		if !matches(&b.metadata, params) {
			continue
		}
		m := b.metadata
		matched = append(matched, &m)
	}
	return page(matched, params.Limit, params.Offset), len(matched), nil
}

func page(items []*BlobMetadata, limit, offset int) []*BlobMetadata {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func matches(m *BlobMetadata, p SearchParams) bool {
	switch {
	case p.ReferralID != "" && m.ReferralID != p.ReferralID:
		return false
	case p.Slot != "" && m.Slot != p.Slot:
		return false
	case p.ContentType != "" && m.ContentType != p.ContentType:
		return false
	case p.CreatedAfter != nil && m.CreatedAt.Before(*p.CreatedAfter):
		return false
	case p.CreatedBefore != nil && m.CreatedAt.After(*p.CreatedBefore):
		return false
	case p.FileName != "" && !strings.Contains(strings.ToLower(m.FileName), strings.ToLower(p.FileName)):
		return false
	}
	return true
}

// httpError maps store sentinels onto the API error vocabulary.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrBlobNotFound):
		return apperr.ToHTTP(apperr.NotFound("document not found"))
	case errors.Is(err, ErrMissingFileName), errors.Is(err, ErrInvalidContentType):
		return apperr.ToHTTP(apperr.Validation("%s", err.Error()))
	case errors.Is(err, ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	default:
		return apperr.ToHTTP(err)
	}
}

// BlobHandler provides Echo HTTP handlers for document operations.
// Upload and delete are sender operations; download is open to any
// authenticated actor holding a ref, since refs are only disclosed
// through the payment gate.
type BlobHandler struct {
	store BlobStore
}

func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	write := g.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleSender))
	write.POST("/documents/upload", h.handleUpload)
	write.GET("/documents/referral/:referralId", h.handleListByReferral)
	write.DELETE("/documents/:id", h.handleDelete)
	write.GET("/documents", h.handleSearch)

	read := g.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleSender, auth.RoleReceiver))
	read.GET("/documents/:id/metadata", h.handleGetMetadata)
	read.GET("/documents/:id", h.handleDownload)
}

func (h *BlobHandler) handleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return apperr.ToHTTP(apperr.Validation("file is required"))
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}
	createdBy := ""
	if actor := auth.ActorFromContext(c.Request().Context()); actor != nil {
		createdBy = actor.UserID
	}

	result, err := h.store.Upload(c.Request().Context(), BlobMetadata{
		FileName:    file.Filename,
		ContentType: contentType,
		ReferralID:  c.FormValue("referral_id"),
		Slot:        c.FormValue("slot"),
		CreatedBy:   createdBy,
	}, src)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	rc, meta, err := h.store.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, contentType, rc)
}

func (h *BlobHandler) handleGetMetadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *BlobHandler) handleDelete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *BlobHandler) handleListByReferral(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.store.ListByReferral(c.Request().Context(), c.Param("referralId"), c.QueryParam("slot"), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*BlobMetadata{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *BlobHandler) handleSearch(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.store.Search(c.Request().Context(), SearchParams{
		ReferralID:  c.QueryParam("referral_id"),
		Slot:        c.QueryParam("slot"),
		ContentType: c.QueryParam("content_type"),
		FileName:    c.QueryParam("file_name"),
		Limit:       p.Limit,
		Offset:      p.Offset,
	})
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*BlobMetadata{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

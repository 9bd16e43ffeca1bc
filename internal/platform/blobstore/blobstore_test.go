package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func seedBlob(t *testing.T, store BlobStore, referralID, slot, fileName, contentType, content string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{
		FileName:    fileName,
		ContentType: contentType,
		ReferralID:  referralID,
		Slot:        slot,
		CreatedBy:   "test-user",
	}
	result, err := store.Upload(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

func TestInMemoryBlobStore_Upload(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := "face sheet PDF bytes"

	meta := BlobMetadata{
		FileName:    "face-sheet.pdf",
		ContentType: "application/pdf",
		ReferralID:  "referral-1",
		Slot:        "face_sheet",
		CreatedBy:   "user-1",
	}

	result, err := store.Upload(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if result.Size != int64(len(content)) {
		t.Errorf("expected Size=%d, got %d", len(content), result.Size)
	}
	wantHash := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
	if result.Hash != wantHash {
		t.Errorf("hash mismatch: got %s, want %s", result.Hash, wantHash)
	}
	if result.CreatedAt.IsZero() {
		t.Fatal("expected non-zero CreatedAt")
	}
}

func TestInMemoryBlobStore_Upload_MissingFileName(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, err := store.Upload(context.Background(), BlobMetadata{Slot: "other"}, strings.NewReader("x"))
	if err != ErrMissingFileName {
		t.Fatalf("expected ErrMissingFileName, got %v", err)
	}
}

func TestInMemoryBlobStore_Upload_InvalidContentType(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta := BlobMetadata{FileName: "a.exe", ContentType: "application/x-msdownload"}
	_, err := store.Upload(context.Background(), meta, strings.NewReader("x"))
	if err != ErrInvalidContentType {
		t.Fatalf("expected ErrInvalidContentType, got %v", err)
	}
}

func TestInMemoryBlobStore_Upload_UnknownSlotDefaultsToOther(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta := BlobMetadata{FileName: "a.pdf", ContentType: "application/pdf", Slot: "nonsense"}
	result, err := store.Upload(context.Background(), meta, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Slot != "other" {
		t.Errorf("slot = %q, want other", result.Slot)
	}
}

func TestInMemoryBlobStore_DownloadRoundTrip(t *testing.T) {
	store := NewInMemoryBlobStore()
	seeded := seedBlob(t, store, "ref-1", "face_sheet", "face.pdf", "application/pdf", "content-bytes")

	rc, meta, err := store.Download(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "content-bytes" {
		t.Errorf("content = %q", data)
	}
	if meta.FileName != "face.pdf" {
		t.Errorf("file name = %q", meta.FileName)
	}
}

func TestInMemoryBlobStore_Download_NotFound(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, _, err := store.Download(context.Background(), "missing")
	if err != ErrBlobNotFound {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_Delete(t *testing.T) {
	store := NewInMemoryBlobStore()
	seeded := seedBlob(t, store, "ref-1", "other", "a.txt", "text/plain", "x")

	if err := store.Delete(context.Background(), seeded.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetMetadata(context.Background(), seeded.ID); err != ErrBlobNotFound {
		t.Fatalf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), seeded.ID); err != ErrBlobNotFound {
		t.Fatalf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestInMemoryBlobStore_ListByReferral(t *testing.T) {
	store := NewInMemoryBlobStore()
	seedBlob(t, store, "ref-1", "face_sheet", "face.pdf", "application/pdf", "a")
	seedBlob(t, store, "ref-1", "insurance_card", "card.png", "image/png", "b")
	seedBlob(t, store, "ref-2", "face_sheet", "other.pdf", "application/pdf", "c")

	items, total, err := store.ListByReferral(context.Background(), "ref-1", "", 20, 0)
	if err != nil {
		t.Fatalf("ListByReferral: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("got %d items (total %d), want 2", len(items), total)
	}

	items, total, err = store.ListByReferral(context.Background(), "ref-1", "face_sheet", 20, 0)
	if err != nil {
		t.Fatalf("ListByReferral with slot: %v", err)
	}
	if total != 1 || items[0].FileName != "face.pdf" {
		t.Fatalf("slot filter returned %d items", total)
	}
}

func TestInMemoryBlobStore_Search(t *testing.T) {
	store := NewInMemoryBlobStore()
	seedBlob(t, store, "ref-1", "face_sheet", "jane-face-sheet.pdf", "application/pdf", "a")
	seedBlob(t, store, "ref-1", "imaging", "scan.png", "image/png", "b")

	items, total, err := store.Search(context.Background(), SearchParams{FileName: "face"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || items[0].FileName != "jane-face-sheet.pdf" {
		t.Fatalf("filename search returned %d items", total)
	}

	_, total, err = store.Search(context.Background(), SearchParams{ReferralID: "ref-1", ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 {
		t.Fatalf("content type search returned %d items", total)
	}
}

func TestBlobHandler_UploadAndDownload(t *testing.T) {
	store := NewInMemoryBlobStore()
	h := NewBlobHandler(store)
	e := echo.New()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "face.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("pdf-bytes")); err != nil {
		t.Fatal(err)
	}
	_ = w.WriteField("referral_id", "ref-1")
	_ = w.WriteField("slot", "face_sheet")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.handleUpload(c); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var meta BlobMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if meta.ReferralID != "ref-1" || meta.Slot != "face_sheet" {
		t.Errorf("unexpected metadata: %+v", meta)
	}

	req = httptest.NewRequest(http.MethodGet, "/documents/"+meta.ID, nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(meta.ID)

	if err := h.handleDownload(c); err != nil {
		t.Fatalf("download: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "pdf-bytes" {
		t.Fatalf("download returned %d %q", rec.Code, rec.Body.String())
	}
}

func TestBlobHandler_Download_NotFound(t *testing.T) {
	h := NewBlobHandler(NewInMemoryBlobStore())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/documents/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.handleDownload(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 HTTPError", err)
	}
}

package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sitecontent/internal/blob"
	"sitecontent/pkg/domain"
)

func fileHeaders(t *testing.T, files map[string]string) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		w, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("parse form: %v", err)
	}
	return req.MultipartForm.File["files"]
}

func TestSaveStoresUnderGeneratedName(t *testing.T) {
	store := blob.NewMemory()
	var stored []string
	clock := time.UnixMilli(1700000000000)
	u := New(store,
		WithBaseURL("https://example.com/"),
		WithClock(func() time.Time { return clock }),
		WithStoredHook(func(key string) { stored = append(stored, key) }),
	)
	ctx := context.Background()

	f, err := u.Save(ctx, fileHeaders(t, map[string]string{"Photo.PNG": "png-bytes"})[0])
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(f.Filename, "1700000000000-") || !strings.HasSuffix(f.Filename, ".png") {
		t.Fatalf("unexpected filename %q", f.Filename)
	}
	if f.URL != "/uploads/"+f.Filename || f.AbsoluteURL != "https://example.com"+f.URL {
		t.Fatalf("unexpected urls %+v", f)
	}
	if f.Size != int64(len("png-bytes")) || f.MimeType != "image/png" {
		t.Fatalf("unexpected size or type %+v", f)
	}
	info, rc, err := store.Get(ctx, "uploads/"+f.Filename)
	if err != nil {
		t.Fatalf("get stored blob: %v", err)
	}
	defer rc.Close()
	if info.ContentType != "image/png" {
		t.Fatalf("unexpected stored content type %q", info.ContentType)
	}
	if len(stored) != 1 || stored[0] != "uploads/"+f.Filename {
		t.Fatalf("unexpected stored hook calls %v", stored)
	}
}

func TestSaveAllRejectsDisallowedExtension(t *testing.T) {
	store := blob.NewMemory()
	u := New(store)
	_, err := u.SaveAll(context.Background(), fileHeaders(t, map[string]string{
		"ok.jpg":     "jpg",
		"script.exe": "MZ",
	}))
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	list, _ := store.List(context.Background(), KeyPrefix)
	if len(list) != 0 {
		t.Fatalf("expected nothing stored, got %v", list)
	}
}

func TestSaveRejectsOversizedFile(t *testing.T) {
	u := New(blob.NewMemory(), WithMaxSize(4))
	_, err := u.Save(context.Background(), fileHeaders(t, map[string]string{"big.gif": "0123456789"})[0])
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestAllowed(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.gif", "e.webp"} {
		if !Allowed(name) {
			t.Fatalf("expected %s allowed", name)
		}
	}
	for _, name := range []string{"a.svg", "b", "c.png.exe"} {
		if Allowed(name) {
			t.Fatalf("expected %s rejected", name)
		}
	}
}

func TestDiscardRemovesFiles(t *testing.T) {
	store := blob.NewMemory()
	u := New(store)
	ctx := context.Background()
	files, err := u.SaveAll(ctx, fileHeaders(t, map[string]string{"a.jpg": "a", "b.webp": "b"}))
	if err != nil {
		t.Fatalf("save all: %v", err)
	}
	if urls := URLs(files); len(urls) != 2 {
		t.Fatalf("unexpected urls %v", urls)
	}
	u.Discard(ctx, files)
	list, _ := store.List(ctx, KeyPrefix)
	if len(list) != 0 {
		t.Fatalf("expected discarded uploads, got %v", list)
	}
}

package contentstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agentgate/internal/domain"
)

func TestHTTPClientListFiles(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/t1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"file_id":"f1","filename":"a.pdf","file_type":"pdf","page_count":3}]`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	files, err := client.ListFiles(context.Background(), "t1")
	if err != nil {
		t.Fatalf("list files failed: %v", err)
	}
	if len(files) != 1 || files[0].FileID != "f1" || files[0].PageCount != 3 {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestHTTPClientGetFileNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	_, err := client.GetFile(context.Background(), "t1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got=%v", err)
	}
}

func TestHTTPClientGetFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/t1/f1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"file_id":"f1","filename":"a.xlsx","file_type":"excel","sheet_count":2,"total_rows":10,"text":"cells"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	record, err := client.GetFile(context.Background(), "t1", "f1")
	if err != nil {
		t.Fatalf("get file failed: %v", err)
	}
	if record.FileType != domain.FileTypeExcel || record.SheetCount != 2 || record.TotalRows != 10 {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestHTTPClientServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	if _, err := client.ListFiles(context.Background(), "t1"); err == nil {
		t.Fatalf("expected transport error")
	} else if errors.Is(err, ErrNotFound) {
		t.Fatalf("500 must not map to ErrNotFound")
	}
}

func TestLocalClientRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore()
	store.Put("t1", domain.FileRecord{FileID: "f1", Filename: "notes.txt", FileType: domain.FileTypeText})
	client := NewLocalClient(store)

	files, err := client.ListFiles(context.Background(), "t1")
	if err != nil || len(files) != 1 {
		t.Fatalf("unexpected list result: %v %+v", err, files)
	}
	record, err := client.GetFile(context.Background(), "t1", files[0].FileID)
	if err != nil || record.Filename != "notes.txt" {
		t.Fatalf("unexpected get result: %v %+v", err, record)
	}
	if _, err := client.GetFile(context.Background(), "t1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got=%v", err)
	}
}

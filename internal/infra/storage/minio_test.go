package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bryanwahyu/medcoder/internal/config"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodHead:
		if r.URL.Path == "/archive" || r.URL.Path == "/archive/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestPutArchivesObject(t *testing.T) {
	s3 := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(s3)
	defer srv.Close()

	store, err := New(context.Background(), config.MinioConfig{
		Endpoint:   strings.TrimPrefix(srv.URL, "http://"),
		AccessKey:  "access",
		SecretKey:  "secret",
		BucketName: "archive",
		Region:     "us-east-1",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	url, err := store.Put(context.Background(), "u1/doc-1/result.json", []byte(`{"status":"success"}`), "application/json")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != srv.URL+"/archive/u1/doc-1/result.json" {
		t.Errorf("url = %s", url)
	}
	if got := s3.objects["/archive/u1/doc-1/result.json"]; !strings.Contains(got, `"status":"success"`) {
		t.Errorf("stored %q", got)
	}
	if ct := s3.types["/archive/u1/doc-1/result.json"]; ct != "application/json" {
		t.Errorf("content type %q", ct)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

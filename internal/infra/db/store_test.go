package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryanwahyu/medcoder/internal/config"
	"github.com/bryanwahyu/medcoder/internal/domain/documents"
)

func TestOpenSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "medcoder.db")
	ctx := context.Background()

	s, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	doc := &documents.MedicalDocument{ID: "d1", UserID: "u1", FileName: "a.pdf", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := s.Documents.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, err := s.Documents.Get(ctx, "u1", "d1")
	if err != nil || got.FileName != "a.pdf" {
		t.Fatalf("Get = %+v, %v", got, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatal("expected error")
	}
}

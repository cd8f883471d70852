package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/medcoder/internal/config"
	"github.com/bryanwahyu/medcoder/internal/domain/documents"
)

// Store archives pipeline artifacts in a MinIO bucket.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

var _ documents.ArtifactStore = (*Store)(nil)

// New buat koneksi MinIO dan pastikan bucket ada
func New(ctx context.Context, cfg config.MinioConfig) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.BucketName, err)
		}
	}

	return &Store{client: cli, bucketName: cfg.BucketName, region: cfg.Region}, nil
}

// Put implementasi ArtifactStore
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return s.URL(key), nil
}

// URL of an object. It is only reachable directly when the bucket is public.
func (s *Store) URL(key string) string {
	u := *s.client.EndpointURL()
	u.Path = "/" + s.bucketName + "/" + key
	u.RawQuery = ""
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()
}

// Ping checks the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", s.bucketName)
	}
	return nil
}

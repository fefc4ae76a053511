package s3storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/pdfsummarizer/internal/config"
)

const summaryContentType = "text/markdown; charset=utf-8"

// Storage wraps MinIO/S3 interactions for archived summaries.
type Storage struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{client: client, bucket: cfg.SummaryBucket, region: cfg.S3Region}, nil
}

// Bucket reports the bucket summaries are written to.
func (s *Storage) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the summary bucket when it is missing.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PutSummary stores the markdown summary under objectKey.
func (s *Storage) PutSummary(ctx context.Context, objectKey, summary string) error {
	opts := minio.PutObjectOptions{ContentType: summaryContentType}
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, strings.NewReader(summary), int64(len(summary)), opts)
	if err != nil {
		return fmt.Errorf("upload summary: %w", err)
	}
	return nil
}

// PresignSummaryURL returns a signed GET URL for an archived summary.
func (s *Storage) PresignSummaryURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign summary: %w", err)
	}
	return u.String(), nil
}

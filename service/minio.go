package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/AnTengye/solarflow/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object prefixes inside the bucket
const (
	attachmentPrefix = "attachments"
	exportPrefix     = "exports"
)

// MinioService stores record attachments and shared exports in a bucket.
type MinioService struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioService(cfg *config.MinioConfig) (*MinioService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (s *MinioService) put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", objectName, err)
	}
	return nil
}

// Upload stores a record attachment. The URL is written into the sheet and
// must not expire, so the public object URL is returned.
func (s *MinioService) Upload(ctx context.Context, file FileUpload) (string, error) {
	objectName := path.Join(attachmentPrefix, file.Name)
	if err := s.put(ctx, objectName, bytes.NewReader(file.Data), int64(len(file.Data)), file.MimeType); err != nil {
		return "", err
	}
	return s.GetPublicURL(objectName), nil
}

// ShareExport stores a generated workbook and returns a link that expires
// after the configured number of days.
func (s *MinioService) ShareExport(ctx context.Context, name string, data []byte) (string, error) {
	objectName := path.Join(exportPrefix, name)
	contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if err := s.put(ctx, objectName, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", err
	}
	return s.GetPresignedURL(ctx, objectName)
}

// GetPresignedURL generates a presigned URL for the object with expiration
func (s *MinioService) GetPresignedURL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url.String(), nil
}

// GetPublicURL returns the object URL; the bucket policy must allow reads.
func (s *MinioService) GetPublicURL(objectName string) string {
	protocol := "http"
	if s.config.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.config.Endpoint, s.bucket, objectName)
}

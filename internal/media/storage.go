// Package media ingests provider-hosted message attachments into object
// storage. Provider media references expire quickly, so ingestion is
// best-effort: a failed download degrades the message to text-only instead
// of failing the whole job.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"visadesk_backend/platform/config"
	"visadesk_backend/platform/logger"
)

// ErrExpired marks a media reference the provider no longer resolves.
var ErrExpired = fmt.Errorf("media reference expired")

const maxMediaBytes = 32 << 20

// Store downloads provider media and keeps it in a MinIO bucket.
type Store struct {
	client *minio.Client
	bucket string
	http   *http.Client
	log    *logger.Logger
}

// NewStore builds the media store, or nil when storage is not configured.
// A nil *Store is safe to call.
func NewStore(cfg config.MediaConfig, log *logger.Logger) (*Store, error) {
	if !cfg.IsMediaStorageEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Store{
		client: client,
		bucket: cfg.GetMediaBucket(),
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}, nil
}

// EnsureBucket creates the media bucket if it doesn't exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	if s == nil {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Ingest downloads the referenced media and stores it under the message id.
// Returns the object key, or ErrExpired when the provider no longer serves
// the reference.
func (s *Store) Ingest(ctx context.Context, messageID uuid.UUID, url, mimeType string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("media storage not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusForbidden:
		return "", ErrExpired
	case resp.StatusCode >= http.StatusBadRequest:
		return "", fmt.Errorf("media download returned %d", resp.StatusCode)
	}

	contentType := mimeType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	objectKey := path.Join("inbound", messageID.String()+extensionFor(contentType))

	body := io.LimitReader(resp.Body, maxMediaBytes)
	if _, err := s.client.PutObject(ctx, s.bucket, objectKey, body, -1, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("store media object: %w", err)
	}

	s.log.Info("media ingested", "objectKey", objectKey, "contentType", contentType)
	return objectKey, nil
}

func extensionFor(contentType string) string {
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

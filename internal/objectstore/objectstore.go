package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Bucket names. EnsureBuckets creates all of them on startup.
const (
	BucketProfilePhotos      = "profile-photos"
	BucketViolationSnapshots = "violation-snapshots"
	BucketAudioClips         = "audio-clips"
)

// Store wraps the S3-compatible object store.
type Store struct {
	client *minio.Client
	log    zerolog.Logger
}

// New creates and validates an object store client.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Store, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	s := &Store{
		client: client,
		log:    log.With().Str("component", "objectstore").Logger(),
	}

	if err := s.EnsureBuckets(ctx); err != nil {
		return nil, err
	}

	s.log.Info().Str("endpoint", cfg.MinioEndpoint).Msg("Object store connected")
	return s, nil
}

// EnsureBuckets creates the required buckets if they do not exist.
func (s *Store) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{BucketProfilePhotos, BucketViolationSnapshots, BucketAudioClips} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		s.log.Info().Str("bucket", bucket).Msg("Bucket created")
	}
	return nil
}

// Upload stores an object and returns its name.
func (s *Store) Upload(ctx context.Context, bucket, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", bucket, objectName, err)
	}
	return objectName, nil
}

// Remove deletes a single object.
func (s *Store) Remove(ctx context.Context, bucket, objectName string) error {
	return s.client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{})
}

// PresignedURL returns a time-limited read URL for an object.
func (s *Store) PresignedURL(ctx context.Context, bucket, objectName string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, objectName, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, objectName, err)
	}
	return u.String(), nil
}

// RemoveOlderThan deletes every object in the bucket last modified before the
// cutoff and reports how many were removed.
func (s *Store) RemoveOlderThan(ctx context.Context, bucket string, cutoff time.Time) (int, error) {
	removed := 0
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return removed, fmt.Errorf("list %s: %w", bucket, obj.Err)
		}
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := s.client.RemoveObject(ctx, bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			s.log.Error().Err(err).Str("object", obj.Key).Msg("Failed to remove expired object")
			continue
		}
		removed++
	}
	return removed, nil
}

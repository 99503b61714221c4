// Package storage uploads profile photos to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// MaxAvatarSize is the largest accepted avatar upload.
const MaxAvatarSize = 5 << 20

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("file too large")
	ErrNotConfigured   = errors.New("object storage not configured")
)

var avatarTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// s3Client is the subset of the S3 API the uploader needs.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds S3-compatible storage settings. PublicBaseURL is the prefix
// under which uploaded objects are publicly readable.
type Config struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// Object is a stored file.
type Object struct {
	Key string
	URL string
}

// Uploader stores avatars in a bucket.
type Uploader struct {
	client  s3Client
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// New returns an uploader for cfg. Without a bucket and credentials the
// uploader reports ErrNotConfigured on every upload.
func New(cfg Config, logger *slog.Logger) *Uploader {
	u := &Uploader{
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:  logger,
	}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		u.client = newS3Client(cfg)
	}
	if u.baseURL == "" && cfg.Endpoint != "" {
		u.baseURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return u
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Configured reports whether uploads can be stored.
func (u *Uploader) Configured() bool {
	return u.client != nil
}

// UploadAvatar validates and stores an avatar for the household. The content
// type is sniffed from the data, not taken from the client.
func (u *Uploader) UploadAvatar(ctx context.Context, householdID int64, r io.Reader) (*Object, error) {
	if u.client == nil {
		return nil, ErrNotConfigured
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxAvatarSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxAvatarSize {
		return nil, ErrTooLarge
	}

	contentType := http.DetectContentType(data)
	ext, ok := avatarTypes[contentType]
	if !ok {
		return nil, ErrUnsupportedType
	}

	key := fmt.Sprintf("avatars/%d/%s.%s", householdID, uuid.NewString(), ext)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}

	return &Object{Key: key, URL: u.baseURL + "/" + key}, nil
}

// Delete removes an object. Failures are logged, not returned.
func (u *Uploader) Delete(ctx context.Context, key string) {
	if u.client == nil || key == "" {
		return
	}
	if _, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}); err != nil {
		u.logger.Warn("delete stored object", "key", key, "error", err)
	}
}

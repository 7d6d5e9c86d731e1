// Package s3 keeps cached values as objects in an S3-compatible bucket. Expiry is
// recorded in object metadata and enforced on read; a bucket lifecycle rule can be
// added for physical cleanup but is not required for correctness.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const expiresMetaKey = "Expires-At"

type Config struct {
	Endpoint   string
	Region     string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Prefix     string
	UseSSL     bool
	DefaultTTL time.Duration
}

// CanConnect reports whether the config has everything NewStore requires.
func (c Config) CanConnect() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

// bucketAPI is the part of *minio.Client used to prepare the bucket.
type bucketAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

type Store struct {
	client     *minio.Client
	buckets    bucketAPI
	bucket     string
	region     string
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time

	initMu    sync.Mutex
	initReady bool
}

func NewStore(cfg Config) (*Store, error) {
	if !cfg.CanConnect() {
		return nil, fmt.Errorf("s3 cache: endpoint, credentials and bucket are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 cache: init client: %w", err)
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "result-cache"
	}
	return &Store{
		client:     client,
		buckets:    client,
		bucket:     strings.TrimSpace(cfg.Bucket),
		region:     region,
		prefix:     prefix,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
	}, nil
}

// ensureBucket creates the bucket on first use. A failed attempt is retried by the next call.
func (s *Store) ensureBucket(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initReady {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	exists, err := s.buckets.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.buckets.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.initReady = true
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, fmt.Errorf("s3 cache: store is nil")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, false, fmt.Errorf("s3 cache: ensure bucket: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if expired(info.UserMetadata, s.now()) {
		_ = s.client.RemoveObject(ctx, s.bucket, s.objectKey(key), minio.RemoveObjectOptions{})
		return nil, false, nil
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("s3 cache: store is nil")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("s3 cache: ensure bucket: %w", err)
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.objectKey(key), bytes.NewReader(value), int64(len(value)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{expiresMetaKey: formatExpiry(s.now().Add(ttl))},
	})
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, s.objectKey(key), minio.RemoveObjectOptions{})
}

func (s *Store) Clear(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix + "/", Recursive: true}) {
		if obj.Err != nil {
			return obj.Err
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) objectKey(key string) string {
	return s.prefix + "/" + strings.TrimSpace(key) + ".json"
}

func formatExpiry(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// expired treats missing or unreadable metadata as expired so a stray object is never served.
func expired(meta map[string]string, now time.Time) bool {
	for k, v := range meta {
		if !strings.EqualFold(k, expiresMetaKey) {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
		if err != nil {
			return true
		}
		return !now.Before(at)
	}
	return true
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

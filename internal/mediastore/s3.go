// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mediastore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jeranaias/prism/internal/media"
	"github.com/jeranaias/prism/internal/model"
)

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
	UseSSL    bool
}

// Validate checks that the required fields are set.
func (c S3Config) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		missing = append(missing, "credentials")
	}
	if len(missing) > 0 {
		return fmt.Errorf("s3 media store: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// S3Store keeps media in an S3-compatible bucket.
type S3Store struct {
	client *minio.Client
	cfg    S3Config

	bucketOnce sync.Once
	bucketErr  error
}

// NewS3Store creates a store for the configured bucket. The bucket is
// created on first write if it does not exist.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &S3Store{client: client, cfg: cfg}, nil
}

// ObjectName returns the object name for a key and MIME type.
func (s *S3Store) ObjectName(key, mimeType string) string {
	return path.Join(s.cfg.Prefix, key+media.Extension(mimeType))
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.bucketOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
		if err != nil {
			s.bucketErr = fmt.Errorf("failed to check bucket %s: %w", s.cfg.Bucket, err)
			return
		}
		if exists {
			return
		}
		err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region})
		if err != nil {
			s.bucketErr = fmt.Errorf("failed to create bucket %s: %w", s.cfg.Bucket, err)
		}
	})
	return s.bucketErr
}

// Put uploads the media and returns an s3:// URI.
func (s *S3Store) Put(ctx context.Context, key string, m *model.Media) (string, error) {
	if err := checkPut(key, m); err != nil {
		return "", err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	name := s.ObjectName(key, m.MIMEType)
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, name, bytes.NewReader(m.Data), int64(len(m.Data)),
		minio.PutObjectOptions{ContentType: m.MIMEType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return "s3://" + s.cfg.Bucket + "/" + name, nil
}

// Get downloads the media stored under key. Objects are looked up by prefix
// because the extension depends on the MIME type.
func (s *S3Store) Get(ctx context.Context, key string) (*model.Media, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var name string
	for obj := range s.client.ListObjects(listCtx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:  path.Join(s.cfg.Prefix, key) + ".",
		MaxKeys: 1,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list media: %w", obj.Err)
		}
		name = obj.Key
		break
	}
	if name == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	mimeType := info.ContentType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = media.DetectMIME(name, data)
	}
	return &model.Media{MIMEType: mimeType, Data: data, URI: "s3://" + s.cfg.Bucket + "/" + name}, nil
}

var _ Store = (*S3Store)(nil)

package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/Heyzerohey/packhey/internal/config"
)

// Store persists uploaded signer documents. Paths are opaque to callers and
// recorded verbatim on the uploaded_documents row.
type Store interface {
	Put(ctx context.Context, path string, content []byte, contentType string) error
}

var (
	ErrInvalidPath      = errors.New("invalid_storage_path")
	ErrEmptyContent     = errors.New("empty_storage_content")
	ErrStoreUnavailable = errors.New("storage_unavailable")
)

type s3Store struct {
	client *s3.Client
	bucket string
	log    *zap.Logger
}

// NewS3Store builds the S3-backed document store. A custom endpoint switches
// to path-style addressing for S3-compatible providers.
func NewS3Store(cfg config.Config, log *zap.Logger) (Store, error) {
	storageCfg := cfg.Storage
	if strings.TrimSpace(storageCfg.Bucket) == "" {
		return nil, errors.New("missing_storage_bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(storageCfg.Region),
	}
	if storageCfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storageCfg.AccessKeyID, storageCfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if storageCfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(storageCfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	return &s3Store{
		client: client,
		bucket: storageCfg.Bucket,
		log:    log.Named("storage.s3"),
	}, nil
}

func (s *s3Store) Put(ctx context.Context, path string, content []byte, contentType string) error {
	path = strings.TrimSpace(path)
	if path == "" || strings.Contains(path, "..") {
		return ErrInvalidPath
	}
	if len(content) == 0 {
		return ErrEmptyContent
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.log.Warn("object upload failed", zap.String("path", path), zap.Error(err))
		return ErrStoreUnavailable
	}
	return nil
}

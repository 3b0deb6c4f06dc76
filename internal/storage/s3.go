package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store implements ObjectStore on an S3-compatible backend (AWS S3 or
// MinIO). Single bucket; attachment keys map to object keys directly.
type S3Store struct {
	client *s3.Client
	bucket string
	// base URL used to construct the public-ish object URL returned from
	// Upload; defaults to the standard S3 virtual-host form.
	baseURL string
}

// S3Config holds explicit construction parameters.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional; if set enables a custom endpoint (e.g. MinIO)
	PathStyle bool
}

// NewS3 creates an S3-backed object store from S3Config.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	base := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	if cfg.Endpoint != "" {
		base = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Store{client: client, bucket: cfg.Bucket, baseURL: base}, nil
}

// Upload writes the object under key and returns its descriptor.
func (s *S3Store) Upload(ctx context.Context, key string, r io.Reader, opts UploadOptions) (Object, error) {
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: r}
	if opts.ContentType != "" {
		input.ContentType = &opts.ContentType
	}
	if opts.FileName != "" {
		input.Metadata = map[string]string{"filename": opts.FileName}
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Object{}, err
	}
	obj := Object{
		Key:         key,
		URL:         s.baseURL + "/" + key,
		FileName:    opts.FileName,
		ContentType: opts.ContentType,
	}
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err == nil && head.ContentLength != nil {
		obj.Size = *head.ContentLength
	}
	return obj, nil
}

// Delete removes the object under key. S3 DeleteObject succeeds for absent
// keys, which gives us the idempotency the lifecycle engine relies on.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key})
	return err
}

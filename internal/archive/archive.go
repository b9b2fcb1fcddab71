// Package archive copies raw gateway payloads to S3-compatible object
// storage for compliance retention. Archiving is best effort; payment
// processing never blocks on it.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	Endpoint  string // non-AWS endpoints (R2, MinIO) go here
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

type S3Archiver struct {
	client *s3.Client
	bucket string
}

func NewS3Archiver(ctx context.Context, cfg Config) (*S3Archiver, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load archive credentials: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archiver{client: client, bucket: cfg.Bucket}, nil
}

// Store writes one payload under a date-prefixed key.
func (a *S3Archiver) Store(ctx context.Context, key string, body []byte) error {
	fullKey := time.Now().UTC().Format("2006/01/02") + "/" + key
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive put %s: %w", fullKey, err)
	}
	return nil
}

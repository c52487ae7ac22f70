// Package snapshot archives banlist exports in S3.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of *s3.Client the store needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Store struct {
	client PutObjectAPI
	bucket string
	logger *slog.Logger
}

func NewS3Store(client PutObjectAPI, bucket string, logger *slog.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, logger: logger.With("component", "snapshot_s3")}
}

// NewS3StoreFromEnv builds the S3 client from the default AWS credential chain.
func NewS3StoreFromEnv(ctx context.Context, bucket, region string, logger *slog.Logger) (*S3Store, error) {
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	logger.Info("Snapshot store initialized", "bucket", bucket, "region", region)
	return NewS3Store(s3.NewFromConfig(awsCfg), bucket, logger), nil
}

// Put uploads body under key and returns its s3:// location.
func (s *S3Store) Put(ctx context.Context, key string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("text/csv"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", s.bucket, key, err)
	}
	s.logger.DebugContext(ctx, "Snapshot uploaded", "key", key, "bytes", len(body))
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

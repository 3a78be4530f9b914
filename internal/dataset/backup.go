package dataset

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/school-platform/attendance-service/internal/config"
	"github.com/school-platform/attendance-service/internal/store"
)

// S3Backup fetches dataset backup objects from an S3-compatible store.
type S3Backup struct {
	client *s3.Client
	bucket string
}

// NewS3Backup creates the backup store from config.
func NewS3Backup(ctx context.Context, cfg config.BackupConfig) (*S3Backup, error) {
	if cfg.Bucket == "" {
		return nil, store.WrapError(store.ErrBadConfig, "backup bucket is not configured", nil)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	// Custom endpoint for localstack/minio.
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &S3Backup{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Fetch downloads the backup object with the given identifier.
func (b *S3Backup) Fetch(ctx context.Context, objectID string) ([]byte, error) {
	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		return nil, store.WrapError(store.ErrInvalidValue, "backup object identifier is empty", nil)
	}

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectID),
	})
	if err != nil {
		return nil, store.WrapError(store.ErrUpstream, "failed to download backup object", err)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}

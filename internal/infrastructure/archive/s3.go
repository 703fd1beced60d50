package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
)

// Config points at an S3-compatible bucket
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Archiver copies analyzed images into object storage
type S3Archiver struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3Archiver builds a client from static credentials when given, else the default AWS chain
func NewS3Archiver(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// ObjectKey is analyses/YYYY/MM/DD/<id><ext>, dated by upload time in UTC
func ObjectKey(asset *domain.UploadedAsset) string {
	day := asset.UploadedAt.UTC().Format("2006/01/02")
	return fmt.Sprintf("analyses/%s/%s%s", day, asset.ID, filepath.Ext(asset.Path))
}

// metadataValue RFC 2047-encodes non-ASCII text; S3 user metadata travels as HTTP headers
func metadataValue(v string) string {
	return mime.QEncoding.Encode("utf-8", v)
}

// Archive uploads the staged file and returns its object key
func (a *S3Archiver) Archive(ctx context.Context, asset *domain.UploadedAsset) (string, error) {
	f, err := os.Open(asset.Path)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	key := ObjectKey(asset)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentType:   aws.String(asset.MimeType),
		ContentLength: aws.Int64(asset.Size),
		Metadata: map[string]string{
			"original-filename": metadataValue(asset.OriginalFilename),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	a.logger.Info("staged file archived",
		slog.String("image_id", asset.ID),
		slog.String("bucket", a.bucket),
		slog.String("key", key),
	)
	return key, nil
}

package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/iconidentify/mediagrabba/internal/config"
)

// objectUploader is the part of manager.Uploader the archiver needs.
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver copies media files into an S3-compatible bucket.
type S3Archiver struct {
	uploader objectUploader
	bucket   string
	prefix   string
}

// NewS3Archiver configures an uploader targeting the cold storage bucket.
func NewS3Archiver(ctx context.Context, cfg config.ColdStorageConfig) (*S3Archiver, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 archiver: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return newS3Archiver(uploader, cfg.Bucket, cfg.Prefix), nil
}

func newS3Archiver(uploader objectUploader, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// Archive implements Archiver. key is the slash-separated path relative to
// the storage root.
func (a *S3Archiver) Archive(ctx context.Context, key, localPath string) error {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return fmt.Errorf("s3 archiver: empty key")
	}
	if a.prefix != "" {
		key = path.Join(a.prefix, key)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("s3 archiver: open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("s3 archiver upload %s: %w", key, err)
	}
	return nil
}

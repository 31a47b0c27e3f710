// Package s3 stores objects in an Amazon S3 (or compatible) bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/sink"
	"github.com/ajitpratap0/graphsink/pkg/sink/blob"
)

func init() {
	sink.Register("s3", New)
}

// Store uploads objects with the S3 upload manager.
type Store struct {
	bucket   string
	uploader *manager.Uploader
}

// New creates an S3 sink. Settings: bucket (required), region, prefix,
// endpoint, force_path_style, access_key_id, secret_access_key, part_size_mb,
// concurrency, format, compression.
func New(ctx context.Context, settings sink.Settings, logger *zap.Logger) (sink.Sink, error) {
	bucket, err := settings.Require("bucket")
	if err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(settings.String("region", "us-east-1")),
	}
	if key := settings.String("access_key_id", ""); key != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, settings.String("secret_access_key", ""), ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := settings.String("endpoint", "")
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = settings.Bool("force_path_style", endpoint != "")
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = int64(settings.Int("part_size_mb", 8)) * 1024 * 1024
		u.Concurrency = settings.Int("concurrency", manager.DefaultUploadConcurrency)
	})

	s, err := blob.FromSettings(&Store{bucket: bucket, uploader: uploader}, settings, logger.With(zap.String("bucket", bucket)))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte, contentType, contentEncoding string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if contentEncoding != "" {
		input.ContentEncoding = aws.String(contentEncoding)
	}
	_, err := s.uploader.Upload(ctx, input)
	return err
}

func (s *Store) Close(context.Context) error { return nil }

// Package gcs stores objects in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/graphsink/pkg/sink"
	"github.com/ajitpratap0/graphsink/pkg/sink/blob"
)

func init() {
	sink.Register("gcs", New)
}

// Store writes objects through a bucket handle.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// New creates a GCS sink. Settings: bucket (required), credentials_file,
// endpoint, prefix, format, compression.
func New(ctx context.Context, settings sink.Settings, logger *zap.Logger) (sink.Sink, error) {
	bucket, err := settings.Require("bucket")
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if file := settings.String("credentials_file", ""); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	if endpoint := settings.String("endpoint", ""); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	s, err := blob.FromSettings(&Store{client: client, bucket: client.Bucket(bucket)}, settings, logger.With(zap.String("bucket", bucket)))
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte, contentType, contentEncoding string) error {
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.ContentEncoding = contentEncoding

	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (s *Store) Close(context.Context) error {
	return s.client.Close()
}

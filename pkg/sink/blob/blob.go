// Package blob writes batches as one object per model to an object store.
package blob

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/errors"
	"github.com/ajitpratap0/graphsink/pkg/sink"
)

// ObjectStore stores named objects. Put must replace an existing object of
// the same name.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte, contentType, contentEncoding string) error
	Close(ctx context.Context) error
}

// Sink adapts an ObjectStore to sink.Sink.
type Sink struct {
	store    ObjectStore
	encoding sink.Encoding
	prefix   string
	logger   *zap.Logger
}

// New creates a blob sink. Objects are named prefix/model/batchID.ext.
func New(store ObjectStore, encoding sink.Encoding, prefix string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{store: store, encoding: encoding, prefix: prefix, logger: logger}
}

// FromSettings builds a blob sink reading "prefix", "format" and
// "compression" from settings.
func FromSettings(store ObjectStore, settings sink.Settings, logger *zap.Logger) (*Sink, error) {
	enc, err := sink.ParseEncoding(settings)
	if err != nil {
		return nil, err
	}
	return New(store, enc, settings.String("prefix", ""), logger), nil
}

func (s *Sink) Write(ctx context.Context, b *sink.Batch) error {
	for _, mb := range b.Models {
		if len(mb.Records) == 0 {
			continue
		}
		data, err := s.encoding.Encode(b.Origin, mb)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "encode "+mb.Model)
		}

		name := s.encoding.ObjectName(s.prefix, mb.Model, b.ID)
		if err := s.store.Put(ctx, name, data, s.encoding.ContentType(), s.encoding.Compression.ContentEncoding()); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("put object %s", name))
		}
		s.logger.Debug("object written",
			zap.String("object", name),
			zap.Int("records", len(mb.Records)),
			zap.Int("bytes", len(data)))
	}
	return nil
}

func (s *Sink) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}

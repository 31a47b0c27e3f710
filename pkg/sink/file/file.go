// Package file stores objects under a local directory.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/sink"
	"github.com/ajitpratap0/graphsink/pkg/sink/blob"
)

func init() {
	sink.Register("file", New)
}

// Store writes objects as files below Dir. Each object is written to a
// temporary file and renamed into place.
type Store struct {
	Dir string
}

// New creates a file sink from the "path" setting.
func New(_ context.Context, settings sink.Settings, logger *zap.Logger) (sink.Sink, error) {
	dir, err := settings.Require("path")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	s, err := blob.FromSettings(&Store{Dir: dir}, settings, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte, _, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(s.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *Store) Close(context.Context) error { return nil }

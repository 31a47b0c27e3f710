// Package bigquery streams entities into a single BigQuery table.
package bigquery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/json"
	"github.com/ajitpratap0/graphsink/pkg/sink"
)

func init() {
	sink.Register("bigquery", New)
}

// Schema of the entities table.
var Schema = bigquery.Schema{
	{Name: "model", Type: bigquery.StringFieldType, Required: true},
	{Name: "key", Type: bigquery.StringFieldType, Required: true},
	{Name: "origin", Type: bigquery.StringFieldType},
	{Name: "record", Type: bigquery.JSONFieldType},
	{Name: "written_at", Type: bigquery.TimestampFieldType},
}

// Sink inserts rows with the streaming API. Insert IDs are derived from
// (model, key) so BigQuery drops retried rows on a best-effort basis.
type Sink struct {
	client   *bigquery.Client
	table    *bigquery.Table
	inserter *bigquery.Inserter
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a BigQuery sink. Settings: project_id and dataset (required),
// table (default "entities"), credentials_file, create_table.
func New(ctx context.Context, settings sink.Settings, logger *zap.Logger) (sink.Sink, error) {
	projectID, err := settings.Require("project_id")
	if err != nil {
		return nil, err
	}
	datasetID, err := settings.Require("dataset")
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if file := settings.String("credentials_file", ""); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}

	table := client.Dataset(datasetID).Table(settings.String("table", "entities"))
	if settings.Bool("create_table", false) {
		if _, err := table.Metadata(ctx); err != nil {
			if err := table.Create(ctx, &bigquery.TableMetadata{Schema: Schema}); err != nil {
				client.Close()
				return nil, fmt.Errorf("failed to create table: %w", err)
			}
			logger.Info("created entities table", zap.String("table", table.FullyQualifiedName()))
		}
	}

	return &Sink{
		client:   client,
		table:    table,
		inserter: table.Inserter(),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// row is one entity as a bigquery.ValueSaver.
type row struct {
	model     string
	record    converter.DestinationRecord
	origin    string
	writtenAt time.Time
}

func (r row) Save() (map[string]bigquery.Value, string, error) {
	data, err := json.MarshalNoEscape(r.record.Record)
	if err != nil {
		return nil, "", err
	}
	return map[string]bigquery.Value{
		"model":      r.model,
		"key":        r.record.Key,
		"origin":     r.origin,
		"record":     string(data),
		"written_at": r.writtenAt,
	}, InsertID(r.model, r.record.Key), nil
}

// InsertID is the dedup id of an entity.
func InsertID(model, key string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + key))
	return hex.EncodeToString(sum[:16])
}

func (s *Sink) Write(ctx context.Context, b *sink.Batch) error {
	now := s.now().UTC()
	rows := make([]bigquery.ValueSaver, 0, b.Len())
	for _, mb := range b.Models {
		for _, rec := range mb.Records {
			rows = append(rows, row{model: mb.Model, record: rec, origin: b.Origin, writtenAt: now})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("failed to insert %d rows: %w", len(rows), err)
	}
	return nil
}

func (s *Sink) Close(context.Context) error {
	return s.client.Close()
}

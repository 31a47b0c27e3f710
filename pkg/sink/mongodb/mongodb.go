// Package mongodb upserts entities into one collection per model.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/sink"
)

func init() {
	sink.Register("mongodb", New)
}

// Sink replaces documents by _id = record key.
type Sink struct {
	client *mongo.Client
	db     *mongo.Database
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// New creates a MongoDB sink. Settings: uri and database (required),
// collection_prefix.
func New(ctx context.Context, settings sink.Settings, logger *zap.Logger) (sink.Sink, error) {
	uri, err := settings.Require("uri")
	if err != nil {
		return nil, err
	}
	database, err := settings.Require("database")
	if err != nil {
		return nil, err
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(settings.Duration("connect_timeout", 10*time.Second))
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return &Sink{
		client: client,
		db:     client.Database(database),
		prefix: settings.String("collection_prefix", ""),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Models builds the bulk write models for one model batch.
func Models(origin string, mb sink.ModelBatch, at time.Time) []mongo.WriteModel {
	writes := make([]mongo.WriteModel, 0, len(mb.Records))
	for _, rec := range mb.Records {
		doc := bson.M{
			"_id":        rec.Key,
			"model":      mb.Model,
			"origin":     origin,
			"record":     rec.Record,
			"updated_at": at,
		}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": rec.Key}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	return writes
}

func (s *Sink) Write(ctx context.Context, b *sink.Batch) error {
	at := s.now().UTC()
	for _, mb := range b.Models {
		if len(mb.Records) == 0 {
			continue
		}
		coll := s.db.Collection(s.prefix + mb.Model)
		res, err := coll.BulkWrite(ctx, Models(b.Origin, mb, at), options.BulkWrite().SetOrdered(false))
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", mb.Model, err)
		}
		s.logger.Debug("bulk write",
			zap.String("collection", coll.Name()),
			zap.Int64("upserted", res.UpsertedCount),
			zap.Int64("modified", res.ModifiedCount))
	}
	return nil
}

func (s *Sink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

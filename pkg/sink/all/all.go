// Package all registers every built in sink.
package all

import (
	_ "github.com/ajitpratap0/graphsink/pkg/sink/bigquery"
	_ "github.com/ajitpratap0/graphsink/pkg/sink/file"
	_ "github.com/ajitpratap0/graphsink/pkg/sink/gcs"
	_ "github.com/ajitpratap0/graphsink/pkg/sink/kafka"
	_ "github.com/ajitpratap0/graphsink/pkg/sink/mongodb"
	_ "github.com/ajitpratap0/graphsink/pkg/sink/postgres"
	_ "github.com/ajitpratap0/graphsink/pkg/sink/s3"
	_ "github.com/ajitpratap0/graphsink/pkg/sink/sqlsink"
)

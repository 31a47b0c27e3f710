package sink

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/graphsink/pkg/compression"
	"github.com/ajitpratap0/graphsink/pkg/json"
)

// Format is the object layout written by the blob sinks.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatAvro  Format = "avro"
)

const entitySchema = `{
  "type": "record",
  "name": "Entity",
  "namespace": "graphsink",
  "fields": [
    {"name": "model", "type": "string"},
    {"name": "key", "type": "string"},
    {"name": "origin", "type": "string"},
    {"name": "record", "type": "string"}
  ]
}`

// Entity is the wire form of one destination record inside an object.
type Entity struct {
	Model  string                 `json:"model"`
	Key    string                 `json:"key"`
	Origin string                 `json:"origin"`
	Record map[string]interface{} `json:"record"`
}

// Encoding selects the format and compression of blob objects.
type Encoding struct {
	Format      Format
	Compression compression.Algorithm
	Level       compression.Level
}

// ParseEncoding reads the "format" and "compression" settings.
func ParseEncoding(s Settings) (Encoding, error) {
	enc := Encoding{Format: FormatJSONL, Compression: compression.None, Level: compression.Default}

	switch f := Format(strings.ToLower(s.String("format", string(FormatJSONL)))); f {
	case FormatJSONL, FormatAvro:
		enc.Format = f
	default:
		return enc, fmt.Errorf("unsupported object format: %s", f)
	}

	algo, err := compression.Parse(s.String("compression", ""))
	if err != nil {
		return enc, err
	}
	enc.Compression = algo
	enc.Level = compression.Level(s.Int("compression_level", int(compression.Default)))
	return enc, nil
}

// Extension returns the object suffix, e.g. ".jsonl.gz".
func (e Encoding) Extension() string {
	return "." + string(e.Format) + e.Compression.Extension()
}

// ContentType is the MIME type of encoded objects.
func (e Encoding) ContentType() string {
	if e.Format == FormatAvro {
		return "avro/binary"
	}
	return "application/x-ndjson"
}

// ObjectName returns prefix/model/batchID.ext. The same batch always maps to
// the same name, so a retried flush overwrites rather than duplicates.
func (e Encoding) ObjectName(prefix, model, batchID string) string {
	return path.Join(prefix, model, batchID+e.Extension())
}

// Encode serialises one model's records.
func (e Encoding) Encode(origin string, mb ModelBatch) ([]byte, error) {
	var raw bytes.Buffer
	switch e.Format {
	case FormatAvro:
		if err := encodeAvro(&raw, origin, mb); err != nil {
			return nil, err
		}
	default:
		entities := make([]Entity, 0, len(mb.Records))
		for _, r := range mb.Records {
			entities = append(entities, Entity{Model: mb.Model, Key: r.Key, Origin: origin, Record: r.Record})
		}
		lines, err := json.MarshalLines(entities)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s records: %w", mb.Model, err)
		}
		raw.Write(lines)
	}
	if e.Compression == compression.None {
		return raw.Bytes(), nil
	}
	return compression.Compress(raw.Bytes(), e.Compression, e.Level)
}

func encodeAvro(buf *bytes.Buffer, origin string, mb ModelBatch) error {
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               buf,
		Schema:          entitySchema,
		CompressionName: goavro.CompressionNullLabel,
	})
	if err != nil {
		return fmt.Errorf("failed to create Avro writer: %w", err)
	}

	rows := make([]interface{}, 0, len(mb.Records))
	for _, r := range mb.Records {
		record, err := json.MarshalNoEscape(r.Record)
		if err != nil {
			return fmt.Errorf("failed to encode %s record: %w", mb.Model, err)
		}
		rows = append(rows, map[string]interface{}{
			"model":  mb.Model,
			"key":    r.Key,
			"origin": origin,
			"record": string(record),
		})
	}
	if err := ocfw.Append(rows); err != nil {
		return fmt.Errorf("failed to append Avro rows: %w", err)
	}
	return nil
}

// Decode parses an object produced by Encode.
func (e Encoding) Decode(data []byte) ([]Entity, error) {
	raw, err := compression.Decompress(data, e.Compression)
	if err != nil {
		return nil, err
	}

	var out []Entity
	if e.Format == FormatAvro {
		ocfr, err := goavro.NewOCFReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to read Avro object: %w", err)
		}
		for ocfr.Scan() {
			datum, err := ocfr.Read()
			if err != nil {
				return nil, err
			}
			row, _ := datum.(map[string]interface{})
			ent := Entity{}
			ent.Model, _ = row["model"].(string)
			ent.Key, _ = row["key"].(string)
			ent.Origin, _ = row["origin"].(string)
			recordJSON, _ := row["record"].(string)
			if err := json.Unmarshal([]byte(recordJSON), &ent.Record); err != nil {
				return nil, err
			}
			out = append(out, ent)
		}
		return out, ocfr.Err()
	}

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		var ent Entity
		if err := json.Unmarshal(sc.Bytes(), &ent); err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, sc.Err()
}

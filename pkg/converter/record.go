package converter

import (
	"fmt"

	"github.com/ajitpratap0/graphsink/pkg/json"
)

// Fields is a mapping of attribute name to value.
type Fields = map[string]interface{}

// DestinationRecord is one entity to upsert into the graph. Key is the
// canonical JSON of the identity fields and is stable across runs.
type DestinationRecord struct {
	Model  string `json:"model"`
	Key    string `json:"key"`
	Record Fields `json:"record"`
}

// NewRecord builds a DestinationRecord. The key fields are merged into the
// attributes; attrs must not be modified afterwards.
func NewRecord(model string, key Fields, attrs Fields) DestinationRecord {
	record := make(Fields, len(key)+len(attrs))
	for k, v := range attrs {
		if v != nil {
			record[k] = v
		}
	}
	for k, v := range key {
		record[k] = v
	}
	return DestinationRecord{Model: model, Key: Canonical(key), Record: record}
}

// Ref returns a reference value for an entity identified by key. The copy
// keeps the referring record independent of the caller's map.
func Ref(key Fields) Fields {
	ref := make(Fields, len(key))
	for k, v := range key {
		ref[k] = v
	}
	return ref
}

// Canonical encodes v deterministically. Map keys are sorted by the encoder.
func Canonical(v interface{}) string {
	data, err := json.MarshalNoEscape(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// EncodedSize estimates the encoded size of the record in bytes.
func (r DestinationRecord) EncodedSize() int {
	data, err := json.Marshal(r.Record)
	if err != nil {
		return len(r.Model) + len(r.Key)
	}
	return len(r.Model) + len(r.Key) + len(data)
}

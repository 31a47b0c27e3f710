// Package converter defines the contract between the conversion engine and
// the per-stream converters that map source records onto graph entities.
//
// A converter is stateless: everything it needs beyond the record comes
// through the StreamContext. Entities refer to one another by key value,
// never by pointer, so references resolve regardless of write order.
package converter

import (
	"context"
	"strings"

	"github.com/ajitpratap0/graphsink/pkg/catalog"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
)

// StreamIdentity identifies an input stream by name and namespace.
type StreamIdentity = catalog.Identity

// Converter maps records of one stream onto destination records.
type Converter interface {
	// Source is the vendor name, e.g. "pagerduty"
	Source() string
	// Stream is the unprefixed stream name, e.g. "incidents"
	Stream() string
	// Accepts reports whether the converter handles records of id.
	Accepts(id StreamIdentity) bool
	// Convert produces zero or more entities for a record.
	Convert(ctx context.Context, record *protocol.Record, sc *StreamContext) ([]DestinationRecord, error)
}

// StreamKey is the registry key of a converter.
type StreamKey struct {
	Source string
	Name   string
}

// String renders the key as source__name
func (k StreamKey) String() string {
	return k.Source + "__" + k.Name
}

const streamSeparator = "__"

// ParseStreamName splits a prefixed stream name of the form
// origin__source__stream or source__stream. Unprefixed names use
// defaultSource and an empty origin.
func ParseStreamName(name, defaultSource string) (origin string, key StreamKey) {
	parts := strings.SplitN(name, streamSeparator, 3)
	switch len(parts) {
	case 3:
		return parts[0], StreamKey{Source: strings.ToLower(parts[1]), Name: parts[2]}
	case 2:
		return "", StreamKey{Source: strings.ToLower(parts[0]), Name: parts[1]}
	default:
		return "", StreamKey{Source: strings.ToLower(defaultSource), Name: name}
	}
}

// Base implements the identity half of Converter for embedding.
type Base struct {
	source string
	stream string
}

// NewBase returns a Base for source and stream.
func NewBase(source, stream string) Base {
	return Base{source: strings.ToLower(source), stream: stream}
}

func (b Base) Source() string { return b.source }

func (b Base) Stream() string { return b.stream }

// Accepts matches prefixed names for this source and unprefixed names equal
// to the stream.
func (b Base) Accepts(id StreamIdentity) bool {
	_, key := ParseStreamName(id.Name, b.source)
	return key.Source == b.source && key.Name == b.stream
}

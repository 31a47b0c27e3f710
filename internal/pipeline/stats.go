package pipeline

import (
	"fmt"
	"sync"

	"github.com/ajitpratap0/graphsink/pkg/json"
)

// StreamStats counts the outcomes of one stream.
type StreamStats struct {
	Processed int `json:"processed"`
	Errored   int `json:"errored"`
	Skipped   int `json:"skipped"`
}

// Stats aggregates per stream outcomes and per model writes. Counts only
// grow during a run.
type Stats struct {
	mu      sync.Mutex
	streams map[string]*StreamStats
	written map[string]int
}

// NewStats creates empty stats.
func NewStats() *Stats {
	return &Stats{
		streams: make(map[string]*StreamStats),
		written: make(map[string]int),
	}
}

// Record counts one record of stream.
func (s *Stats) Record(stream string, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[stream]
	if !ok {
		st = &StreamStats{}
		s.streams[stream] = st
	}
	switch o {
	case Converted:
		st.Processed++
	case Errored:
		st.Errored++
	case Skipped:
		st.Skipped++
	}
}

// AddWritten counts records stored by a successful flush.
func (s *Stats) AddWritten(counts map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for model, n := range counts {
		s.written[model] += n
	}
}

// Totals returns the processed, errored, skipped and written totals.
func (s *Stats) Totals() (processed, errored, skipped, written int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streams {
		processed += st.Processed
		errored += st.Errored
		skipped += st.Skipped
	}
	for _, n := range s.written {
		written += n
	}
	return processed, errored, skipped, written
}

// Stream returns a copy of the counts of stream.
func (s *Stats) Stream(stream string) StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[stream]; ok {
		return *st
	}
	return StreamStats{}
}

// ProcessedByStream returns processed counts of streams with at least one
// processed record.
func (s *Stats) ProcessedByStream() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.streams))
	for name, st := range s.streams {
		if st.Processed > 0 {
			out[name] = st.Processed
		}
	}
	return out
}

// WrittenByModel returns a copy of the written counts.
func (s *Stats) WrittenByModel() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.written))
	for model, n := range s.written {
		out[model] = n
	}
	return out
}

// Summary renders the terminal summary lines.
func (s *Stats) Summary(dryRun bool) []string {
	processed, errored, skipped, written := s.Totals()
	verb := "Wrote"
	if dryRun {
		verb = "Would write"
	}
	return []string{
		fmt.Sprintf("Processed %d records", processed),
		fmt.Sprintf("%s %d records", verb, written),
		fmt.Sprintf("Errored %d records", errored),
		fmt.Sprintf("Skipped %d records", skipped),
		"Processed records by stream: " + sortedJSON(s.ProcessedByStream()),
		verb + " records by model: " + sortedJSON(s.WrittenByModel()),
	}
}

func sortedJSON(m map[string]int) string {
	data, err := json.MarshalNoEscape(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

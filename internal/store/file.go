package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONLSink appends one JSON object per record to a single file. Lines
// with "kind":"decision" and "kind":"cycle" interleave chronologically.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewJSONLSink opens (or creates) the record file for appending.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open record file: %w", err)
	}
	return &JSONLSink{file: f}, nil
}

func (s *JSONLSink) RecordDecision(rec DecisionRecord) error {
	return s.writeLine(struct {
		Kind string `json:"kind"`
		DecisionRecord
	}{"decision", rec})
}

func (s *JSONLSink) RecordCycle(sum CycleSummary) error {
	return s.writeLine(struct {
		Kind string `json:"kind"`
		CycleSummary
	}{"cycle", sum})
}

func (s *JSONLSink) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

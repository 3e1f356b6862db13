package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/getmockd/bizlog/pkg/record"
)

// JSONL appends records as JSON lines to a file and answers queries by
// scanning it.
type JSONL struct {
	path    string
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONL opens the file at path, creating it if it doesn't exist and
// appending to it if it does.
func NewJSONL(path string) (*JSONL, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open record file: %w", err)
	}
	return &JSONL{
		path:    path,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Flush implements record.Sink.
func (s *JSONL) Flush(_ context.Context, _, _ string, records []record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return errors.New("store: jsonl store is closed")
	}
	for _, r := range records {
		if err := s.encoder.Encode(r); err != nil {
			return fmt.Errorf("store: failed to encode record: %w", err)
		}
	}
	return nil
}

// Query implements Store.
func (s *JSONL) Query(ctx context.Context, f Filter) ([]record.Record, error) {
	s.mu.Lock()
	closed := s.file == nil
	s.mu.Unlock()
	if closed {
		return nil, errors.New("store: jsonl store is closed")
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open record file: %w", err)
	}
	defer file.Close()

	var recs []sequenced
	dec := json.NewDecoder(bufio.NewReader(file))
	for seq := int64(1); ; seq++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r record.Record
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("store: corrupt record file %s: %w", s.path, err)
		}
		recs = append(recs, sequenced{seq: seq, rec: r})
	}
	return apply(recs, f)
}

// Close flushes and closes the underlying file.
func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	_ = s.file.Sync()
	err := s.file.Close()
	s.file = nil
	return err
}

// Ensure JSONL implements Store.
var _ Store = (*JSONL)(nil)

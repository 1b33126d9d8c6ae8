// Package file provides JSON-lines file plugins: a source, a sink, and a
// row-count report sink.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

func pathFrom(props map[string]string) (string, error) {
	path, ok := props["path"]
	if !ok || path == "" {
		return "", fmt.Errorf("file plugin requires a path property")
	}
	return path, nil
}

// Source reads one JSON object per line.
type Source struct {
	path string
}

// NewSource builds a Source from its properties.
func NewSource(props map[string]string) (any, error) {
	path, err := pathFrom(props)
	if err != nil {
		return nil, err
	}
	return &Source{path: path}, nil
}

// Read parses the file line by line. Unparseable lines become error records
// so a downstream error transform can pick them up.
func (s *Source) Read(ctx context.Context, emitter plugin.Emitter) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		text := scanner.Text()
		if len(text) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			emitter.EmitError(&record.ErrorRecord{Record: text, Message: err.Error(), Code: line})
			continue
		}
		emitter.Emit(row)
	}
	return scanner.Err()
}

// Sink writes one JSON object per line, truncating the file on its first
// write and appending after that. Partitions may write concurrently,
// so writes are serialized on a mutex.
type Sink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewSink builds a Sink from its properties.
func NewSink(props map[string]string) (any, error) {
	path, err := pathFrom(props)
	if err != nil {
		return nil, err
	}
	return &Sink{path: path}, nil
}

// Write encodes the partition's records.
func (s *Sink) Write(ctx context.Context, records []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		s.file = f
	}

	w := bufio.NewWriter(s.file)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReportSink writes a one-line JSON summary of the whole dataset.
type ReportSink struct {
	path string
}

// NewReportSink builds a ReportSink from its properties.
func NewReportSink(props map[string]string) (any, error) {
	path, err := pathFrom(props)
	if err != nil {
		return nil, err
	}
	return &ReportSink{path: path}, nil
}

// Run writes the record count.
func (s *ReportSink) Run(_ context.Context, records []any) error {
	summary, err := json.Marshal(map[string]any{"records": len(records)})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(summary, '\n'), 0o644)
}

// Register adds the plugins to a registry.
func Register(reg *plugin.Registry) error {
	if err := reg.Register(plan.KindSource, "jsonl", NewSource); err != nil {
		return err
	}
	if err := reg.Register(plan.KindSink, "jsonl", NewSink); err != nil {
		return err
	}
	return reg.Register(plan.KindComputeSink, "report", NewReportSink)
}

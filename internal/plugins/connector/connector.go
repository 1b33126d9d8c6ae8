// Package connector provides the local connector: a stage that spills
// records to a JSON-lines file in its sink role and replays them in its
// source role. Connectors bridge pipeline phases, so the same plugin
// implements both contracts.
package connector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// Local spills to and replays from a file under the configured directory.
type Local struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// New builds a Local connector from the "dir" and "name" properties.
func New(props map[string]string) (any, error) {
	dir := props["dir"]
	if dir == "" {
		return nil, fmt.Errorf("local connector requires a dir property")
	}
	name := props["name"]
	if name == "" {
		return nil, fmt.Errorf("local connector requires a name property")
	}
	return &Local{path: filepath.Join(dir, name+".jsonl")}, nil
}

// Write spills one partition of records.
func (c *Local) Write(ctx context.Context, records []any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		c.file = f
	}

	w := bufio.NewWriter(c.file)
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

// Read replays the spilled records.
func (c *Local) Read(ctx context.Context, emitter plugin.Emitter) error {
	f, err := os.Open(c.path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return fmt.Errorf("replaying %s: %w", c.path, err)
		}
		emitter.Emit(row)
	}
	return scanner.Err()
}

var _ plugin.Source = (*Local)(nil)
var _ plugin.Sink = (*Local)(nil)

// Register adds the plugin to a registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plan.KindConnector, "local", New)
}

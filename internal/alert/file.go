package alert

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends alerts to a file as JSON lines.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewFileSink opens path for appending, creating parent directories.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create alert directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert file: %w", err)
	}

	return &FileSink{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (f *FileSink) Send(_ context.Context, a Alert) error {
	line, err := json.Marshal(a)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.writer.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.writer.Flush()
}

// Close flushes and closes the file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.writer.Flush(); err != nil {
		return err
	}
	return f.file.Close()
}

// Package journal writes append-only JSONL streams with size-based
// rotation. Each stream is one file under the journal directory; writes
// are best effort and never fail the caller.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config tunes journal rotation.
type Config struct {
	// Dir is the journal directory. Created on first write.
	Dir string

	// MaxSizeMB rotates a stream file when it exceeds this size.
	// Default: 20.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept per stream.
	// Default: 5.
	MaxBackups int

	// MaxAgeDays prunes rotated files older than this. Zero keeps them
	// until MaxBackups evicts them.
	MaxAgeDays int
}

func (c *Config) defaults() {
	if c.Dir == "" {
		c.Dir = "logs"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 20
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
}

// Journal multiplexes named JSONL streams over rotating files.
type Journal struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	writers map[string]*lumberjack.Logger
}

// Option configures optional Journal behavior.
type Option func(*Journal)

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// New creates a Journal rooted at cfg.Dir.
func New(cfg Config, opts ...Option) *Journal {
	cfg.defaults()
	j := &Journal{
		cfg:     cfg,
		writers: make(map[string]*lumberjack.Logger),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = slog.New(slog.DiscardHandler)
	}
	return j
}

// Record appends one JSON line to the named stream. Marshal or write
// failures are logged and swallowed: journals never fail requests.
func (j *Journal) Record(stream string, record any) {
	if err := validStream(stream); err != nil {
		j.logger.Warn("journal record rejected", "stream", stream, "error", err)
		return
	}
	line, err := json.Marshal(record)
	if err != nil {
		j.logger.Warn("journal marshal failed", "stream", stream, "error", err)
		return
	}
	line = append(line, '\n')

	w := j.writer(stream)
	j.mu.Lock()
	_, err = w.Write(line)
	j.mu.Unlock()
	if err != nil {
		j.logger.Warn("journal write failed", "stream", stream, "error", err)
	}
}

// Tail returns up to limit most recent records from a stream's current
// file, oldest first. Rotated files are not read: the current file covers
// the window a dashboard needs.
func (j *Journal) Tail(stream string, limit int) ([]json.RawMessage, error) {
	if err := validStream(stream); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	f, err := os.Open(j.path(stream))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: open %s: %w", stream, err)
	}
	defer f.Close()

	var lines []json.RawMessage
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		line := make(json.RawMessage, len(b))
		copy(line, b)
		lines = append(lines, line)
		if len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan %s: %w", stream, err)
	}
	return lines, nil
}

// Close flushes and closes every open stream.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	for stream, w := range j.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("journal: close %s: %w", stream, err)
		}
	}
	j.writers = make(map[string]*lumberjack.Logger)
	return firstErr
}

func (j *Journal) writer(stream string) *lumberjack.Logger {
	j.mu.Lock()
	defer j.mu.Unlock()

	if w, ok := j.writers[stream]; ok {
		return w
	}
	w := &lumberjack.Logger{
		Filename:   j.path(stream),
		MaxSize:    j.cfg.MaxSizeMB,
		MaxBackups: j.cfg.MaxBackups,
		MaxAge:     j.cfg.MaxAgeDays,
	}
	j.writers[stream] = w
	return w
}

func (j *Journal) path(stream string) string {
	return filepath.Join(j.cfg.Dir, stream+".jsonl")
}

// validStream keeps stream names confined to the journal directory.
func validStream(stream string) error {
	if stream == "" {
		return fmt.Errorf("journal: empty stream name")
	}
	if strings.ContainsAny(stream, "/\\") || strings.Contains(stream, "..") {
		return fmt.Errorf("journal: invalid stream name %q", stream)
	}
	return nil
}

package moe

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// ErrSinkFailed is returned by AppendRoute after a write failure has been
// latched. The session does not recover; the recorder drops the remainder of
// the capture and inference continues.
var ErrSinkFailed = errors.New("moe: capture sink failed")

// RouteSink receives serialized capture records. SessionWriter is the
// production implementation; tests substitute call-counting fakes.
type RouteSink interface {
	WriteMeta(meta MetaRecord) error
	AppendRoute(rec RouteRecord) error
}

// SessionWriter owns one append-only capture log for the lifetime of a
// session. Appends are buffered for throughput and serialized under a single
// mutex so concurrent callers never interleave within a line. The meta header
// is written at most once and flushed immediately.
type SessionWriter struct {
	mu       sync.Mutex
	file     *os.File
	buf      *bufio.Writer
	metaDone bool
	closed   bool
	seq      atomic.Int64
	failed   atomic.Bool
}

// OpenSession creates (or truncates) the capture log at path.
func OpenSession(path string) (*SessionWriter, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("moe: opening capture log %s: %w", path, err)
	}
	return &SessionWriter{file: file, buf: bufio.NewWriter(file)}, nil
}

// WriteMeta serializes the session header. Idempotent: the second and later
// calls are no-ops. The header is flushed before returning; it is written
// once, so durability wins over throughput here.
func (w *SessionWriter) WriteMeta(meta MetaRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.metaDone {
		return nil
	}
	if w.closed {
		return ErrSinkFailed
	}
	if err := w.writeLine(meta); err != nil {
		return err
	}
	if err := w.buf.Flush(); err != nil {
		w.failed.Store(true)
		return fmt.Errorf("moe: flushing meta record: %w", err)
	}
	w.metaDone = true
	return nil
}

// AppendRoute serializes one route record to one line. After the first write
// failure the sink is latched and every subsequent call fails fast with
// ErrSinkFailed without touching the file.
func (w *SessionWriter) AppendRoute(rec RouteRecord) error {
	if w.failed.Load() {
		return ErrSinkFailed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.failed.Store(true)
		return ErrSinkFailed
	}
	if err := w.writeLine(rec); err != nil {
		return err
	}
	w.seq.Add(1)
	return nil
}

// writeLine marshals v and appends it with a trailing newline. Caller holds
// the mutex. A short write latches the failure flag.
func (w *SessionWriter) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("moe: marshaling capture record: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.buf.Write(data); err != nil {
		w.failed.Store(true)
		return fmt.Errorf("moe: appending capture record: %w", err)
	}
	return nil
}

// Seq returns the number of route records appended so far.
func (w *SessionWriter) Seq() int64 {
	return w.seq.Load()
}

// Failed reports whether a write failure has been latched.
func (w *SessionWriter) Failed() bool {
	return w.failed.Load()
}

// Close flushes buffered records and closes the log. Safe to call more than
// once; callers defer it at the composition root so every exit path flushes.
func (w *SessionWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		w.failed.Store(true)
		return fmt.Errorf("moe: flushing capture log: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("moe: closing capture log: %w", closeErr)
	}
	return nil
}

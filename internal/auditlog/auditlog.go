// Package auditlog appends evaluation records to a JSON-Lines file.
//
// Each record is marshaled to a single line and written with one write(2)
// call on a file opened with O_APPEND, so concurrent hook invocations
// writing to the same file interleave whole records, never partial ones.
// Rotation and retention belong to whatever ships the file away; this
// package only appends.
package auditlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Writer appends records to one audit file.
type Writer struct {
	path string
}

// New creates a writer for the given path. An empty path yields a disabled
// writer whose Append is a no-op.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Enabled reports whether records will actually be written.
func (w *Writer) Enabled() bool {
	return w != nil && w.path != ""
}

// Append marshals record and appends it as one line. The parent directory
// is created on first use.
func (w *Writer) Append(record any) error {
	if !w.Enabled() {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(w.path), 0o700); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	// One Write call per record keeps the O_APPEND atomicity guarantee.
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

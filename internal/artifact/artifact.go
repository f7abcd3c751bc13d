// Package artifact reads and writes batch artifacts: line-delimited JSON
// listing records with a companion completion marker.
package artifact

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-classifier/internal/model"
)

// MarkerSuffix is appended to an artifact path to name its completion marker.
const MarkerSuffix = ".complete"

// DefaultBatchSize is how many records are buffered between flushes.
const DefaultBatchSize = 100

// MarkerPath returns the completion marker path for an artifact.
func MarkerPath(path string) string {
	return path + MarkerSuffix
}

// Exists reports whether the artifact file exists.
func Exists(path string) (bool, error) {
	return fileExists(path)
}

// Complete reports whether the artifact and its completion marker both
// exist.
func Complete(path string) (bool, error) {
	ok, err := fileExists(path)
	if err != nil || !ok {
		return false, err
	}
	return fileExists(MarkerPath(path))
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "artifact: stat %s", path)
	}
	if info.IsDir() {
		return false, eris.Errorf("artifact: %s is a directory", path)
	}
	return true, nil
}

// ReadAll decodes every record of the artifact at path.
func ReadAll(path string) ([]model.Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var out []model.Listing
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var rec model.Listing
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "artifact: decode record %d of %s", len(out)+1, path)
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteAll writes records to path and commits it.
func WriteAll(path string, records []model.Listing, opts ...WriterOption) error {
	w, err := Create(path, opts...)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			_ = w.Abort()
			return err
		}
	}
	return w.Commit()
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBatchSize sets how many records are buffered between flushes.
func WithBatchSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// Writer streams records into a temporary file next to the artifact. Commit
// renames it into place and writes the completion marker; until then the
// artifact path is untouched.
type Writer struct {
	path      string
	tmp       *os.File
	buf       *bufio.Writer
	enc       *json.Encoder
	batchSize int
	pending   int
	count     int
	done      bool
}

// Create starts a new artifact at path. An existing artifact and its
// completion marker stay in place until Commit.
func Create(path string, opts ...WriterOption) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "artifact: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: create temp file for %s", path)
	}

	buf := bufio.NewWriter(tmp)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	w := &Writer{
		path:      path,
		tmp:       tmp,
		buf:       buf,
		enc:       enc,
		batchSize: DefaultBatchSize,
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(rec model.Listing) error {
	if w.done {
		return eris.Errorf("artifact: write to finished writer for %s", w.path)
	}
	if err := w.enc.Encode(rec); err != nil {
		return eris.Wrapf(err, "artifact: encode record %d", w.count+1)
	}
	w.count++
	w.pending++
	if w.pending >= w.batchSize {
		if err := w.buf.Flush(); err != nil {
			return eris.Wrapf(err, "artifact: flush %s", w.tmp.Name())
		}
		w.pending = 0
	}
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

// Path returns the final artifact path.
func (w *Writer) Path() string {
	return w.path
}

// Commit flushes, moves the artifact into place and writes its completion
// marker.
func (w *Writer) Commit() error {
	if w.done {
		return eris.Errorf("artifact: %s already finished", w.path)
	}
	w.done = true

	tmpName := w.tmp.Name()
	if err := w.buf.Flush(); err != nil {
		w.discard()
		return eris.Wrapf(err, "artifact: flush %s", tmpName)
	}
	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return eris.Wrapf(err, "artifact: sync %s", tmpName)
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "artifact: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "artifact: chmod %s", tmpName)
	}
	if err := os.Remove(MarkerPath(w.path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "artifact: remove stale marker for %s", w.path)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "artifact: rename %s", tmpName)
	}
	if err := os.WriteFile(MarkerPath(w.path), nil, 0o644); err != nil {
		return eris.Wrapf(err, "artifact: write marker for %s", w.path)
	}
	return nil
}

// Abort discards everything written. The artifact path is left as it was.
// Calling Abort after Commit is a no-op.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	name := w.tmp.Name()
	_ = w.tmp.Close()
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "artifact: remove %s", name)
	}
	return nil
}

func (w *Writer) discard() {
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
}

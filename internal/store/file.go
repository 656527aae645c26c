package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"covmeter/internal/analyze"
	"covmeter/internal/numbits"
)

// The persisted format is line-delimited JSON: a header line followed by one
// line per (path, context) record. A truncated file stays loadable up to the
// last complete line, which is what makes incremental flushing crash-safe.
const formatVersion = 1

// CorruptError reports a store file that could not be read at all. Partially
// written files with a valid header are not corrupt; they load as the prefix
// that was flushed.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt store %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

type headerLine struct {
	Type    string      `json:"type"`
	Version int         `json:"version"`
	Label   string      `json:"label,omitempty"`
	Aliases []AliasRule `json:"aliases,omitempty"`
}

type recordLine struct {
	Type      string   `json:"type"`
	Path      string   `json:"path"`
	Context   string   `json:"context,omitempty"`
	Signature string   `json:"signature,omitempty"`
	Lines     []byte   `json:"lines,omitempty"`
	Arcs      [][2]int `json:"arcs,omitempty"`
}

func encodeRecord(path, context string, rec *Record) recordLine {
	line := recordLine{
		Type:      "record",
		Path:      path,
		Context:   context,
		Signature: rec.Signature,
		Lines:     rec.Lines,
	}
	for _, a := range rec.Arcs {
		line.Arcs = append(line.Arcs, [2]int{a.From, a.To})
	}
	return line
}

func decodeRecord(line recordLine) *Record {
	rec := &Record{
		Signature: line.Signature,
		Lines:     numbits.NumBits(line.Lines),
	}
	for _, a := range line.Arcs {
		rec.Arcs = append(rec.Arcs, analyze.Arc{From: a[0], To: a[1]})
	}
	sortArcs(rec.Arcs)
	return rec
}

// Write serializes the whole store to w.
func Write(s *Store, w io.Writer) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(headerLine{Type: "header", Version: formatVersion, Label: s.Label, Aliases: s.Aliases}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, path := range s.Paths() {
		for _, context := range s.Contexts(path) {
			rec, _ := s.Record(path, context)
			if err := enc.Encode(encodeRecord(path, context, rec)); err != nil {
				return fmt.Errorf("write record %s: %w", path, err)
			}
		}
	}
	return nil
}

// WriteFile writes the store to path, creating parent directories as needed.
func WriteFile(s *Store, path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create store file: %w", err)
	}
	if err := Write(s, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteFileSuffixed writes the store to path plus a per-process suffix so
// that many concurrent processes can each own a store file under a shared
// base name, to be combined later. Returns the path written.
func WriteFileSuffixed(s *Store, path string) (string, error) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	suffixed := fmt.Sprintf("%s.%s.%d.%s", path, host, os.Getpid(), uuid.NewString()[:8])
	if err := WriteFile(s, suffixed); err != nil {
		return "", err
	}
	return suffixed, nil
}

// Read loads a store. A missing or malformed header is corruption; a
// malformed or truncated line later truncates the load at the last complete
// record, reflecting everything that was fully flushed.
func Read(r io.Reader) (*Store, error) {
	return read(r, "")
}

// ReadFile loads the store at path.
func ReadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	defer f.Close()
	return read(f, path)
}

func read(r io.Reader, name string) (*Store, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, &CorruptError{Path: name, Err: fmt.Errorf("missing header")}
	}
	var header headerLine
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil || header.Type != "header" {
		if err == nil {
			err = fmt.Errorf("first line is not a header")
		}
		return nil, &CorruptError{Path: name, Err: err}
	}
	if header.Version != formatVersion {
		return nil, &CorruptError{Path: name, Err: fmt.Errorf("unsupported format version %d", header.Version)}
	}

	s := New(header.Label)
	s.Aliases = header.Aliases
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var line recordLine
		if err := json.Unmarshal([]byte(text), &line); err != nil || line.Type != "record" {
			// Truncated or half-written tail; keep the flushed prefix.
			break
		}
		rec := decodeRecord(line)
		if err := s.Add(line.Path, line.Context, rec); err != nil {
			// A later record for the same (path, context) pair with a new
			// signature supersedes the earlier one: unit content changed
			// mid-run and measurement restarted against the new content.
			byContext, ok := s.records[line.Path]
			if !ok {
				continue
			}
			byContext[line.Context] = rec
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &CorruptError{Path: name, Err: err}
	}
	return s, nil
}

// Writer appends records to a store file as a long run progresses. Every
// WriteRecord is flushed to stable storage before returning, so a crash
// loses at most the record being written.
type Writer struct {
	f   *os.File
	enc *json.Encoder
}

// NewWriter creates the store file and writes its header immediately.
func NewWriter(path, label string, aliases []AliasRule) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create store file: %w", err)
	}
	w := &Writer{f: f, enc: json.NewEncoder(f)}
	if err := w.enc.Encode(headerLine{Type: "header", Version: formatVersion, Label: label, Aliases: aliases}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync header: %w", err)
	}
	return w, nil
}

// WriteRecord appends and flushes one (path, context) record. Re-writing the
// same pair later is fine: loading unions duplicates, and union is monotonic.
// A pair re-written with a different signature replaces the earlier record on
// load, so a unit whose content changed mid-run keeps only its restarted
// measurement.
func (w *Writer) WriteRecord(path, context string, rec *Record) error {
	if w == nil || w.f == nil {
		return fmt.Errorf("store writer is closed")
	}
	if rec == nil {
		return nil
	}
	if err := w.enc.Encode(encodeRecord(path, context, rec)); err != nil {
		return fmt.Errorf("write record %s: %w", path, err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync record %s: %w", path, err)
	}
	return nil
}

func (w *Writer) Close() error {
	if w == nil || w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

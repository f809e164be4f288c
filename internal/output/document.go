package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/hearscribe/internal/transcript"
)

var _ Sink = (*Document)(nil)

// ErrNotDocument is returned by [OpenDocument] when path holds a file that
// was not written by a [Document].
var ErrNotDocument = errors.New("output: not a transcript document")

// bodySeparator ends the document header. Entries follow, each terminated by
// a blank line.
const bodySeparator = "\n---\n\n"

// Document maintains a Markdown transcript file. Every Append re-renders the
// whole document and atomically replaces the file on disk.
//
// Entries are kept in rendered form so a reopened document carries the
// records of earlier runs, like the conversation log does.
type Document struct {
	mu      sync.Mutex
	path    string
	title   string
	started time.Time
	entries []string
}

// DocumentOption configures a [Document].
type DocumentOption func(*Document)

// WithTitle sets the document heading. Defaults to "Hearing Transcript".
func WithTitle(title string) DocumentOption {
	return func(d *Document) { d.title = title }
}

// OpenDocument returns a Document that writes to path. When path already
// holds a transcript document its entries are kept and new records are
// appended after them; the earliest start time is kept in the header.
// Otherwise started is shown in the header. Nothing is written until the
// first Append.
func OpenDocument(path string, started time.Time, opts ...DocumentOption) (*Document, error) {
	d := &Document{path: path, title: "Hearing Transcript", started: started}
	for _, o := range opts {
		o(d)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("output: open document %q: %w", path, err)
	}
	if err := d.parse(string(data)); err != nil {
		return nil, fmt.Errorf("output: open document %q: %w", path, err)
	}
	return d, nil
}

// parse loads the header start time and the entries of an existing document.
func (d *Document) parse(content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	header, body, ok := strings.Cut(content, bodySeparator)
	if !ok || !strings.HasPrefix(header, "# ") {
		return ErrNotDocument
	}
	for _, line := range strings.Split(header, "\n") {
		v, ok := strings.CutPrefix(line, "- Started: ")
		if !ok {
			continue
		}
		if t, err := time.ParseInLocation(TimestampLayout, v, time.Local); err == nil {
			d.started = t
		}
	}
	for _, e := range strings.Split(body, "\n\n") {
		if e = strings.TrimSpace(e); e != "" {
			d.entries = append(d.entries, e)
		}
	}
	return nil
}

// Append implements [Sink].
func (d *Document) Append(rec transcript.Record, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries = append(d.entries, rec.String())
	if err := d.write(); err != nil {
		d.entries = d.entries[:len(d.entries)-1]
		return err
	}
	return nil
}

// Render returns the current Markdown content.
func (d *Document) Render() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.render()
}

// Len returns the number of records in the document, including those
// carried over from earlier runs.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Close implements [Sink]. The document is already on disk, so there is
// nothing to release.
func (d *Document) Close() error { return nil }

func (d *Document) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.title)
	if !d.started.IsZero() {
		fmt.Fprintf(&b, "- Started: %s\n", d.started.Format(TimestampLayout))
	}
	fmt.Fprintf(&b, "- Segments: %d\n", len(d.entries))
	b.WriteString(bodySeparator)
	for _, e := range d.entries {
		b.WriteString(e)
		b.WriteString("\n\n")
	}
	return b.String()
}

func (d *Document) write() error {
	tmp, err := os.CreateTemp(filepath.Dir(d.path), filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("output: write document %q: %w", d.path, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("output: write document %q: %w", d.path, err)
	}
	if _, err := tmp.WriteString(d.render()); err != nil {
		tmp.Close()
		return fmt.Errorf("output: write document %q: %w", d.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: write document %q: %w", d.path, err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("output: write document %q: %w", d.path, err)
	}
	return nil
}

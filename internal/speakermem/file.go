package speakermem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// Compile-time assertion that FileStore satisfies the Store interface.
var _ Store = (*FileStore)(nil)

// FileStore persists references as a flat UTF-8 text file with one
// "key: value" pair per line.
//
// Reads and writes take an advisory lock on "<path>.lock" so that two
// processes sharing a memory file never interleave. Writes go to a temporary
// file in the same directory that is then renamed over path.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore returns a [FileStore] backed by path. The file does not need
// to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load implements [Store.Load]. A missing file yields no references.
func (s *FileStore) Load(ctx context.Context) ([]Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("speakermem: lock %q: %w", s.path, err)
	}
	defer s.lock.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("speakermem: open %q: %w", s.path, err)
	}
	defer f.Close()

	refs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("speakermem: read %q: %w", s.path, err)
	}
	return refs, nil
}

// Save implements [Store.Save].
func (s *FileStore) Save(ctx context.Context, refs []Reference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("speakermem: lock %q: %w", s.path, err)
	}
	defer s.lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("speakermem: save %q: %w", s.path, err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, refs); err != nil {
		tmp.Close()
		return fmt.Errorf("speakermem: save %q: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("speakermem: save %q: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("speakermem: save %q: %w", s.path, err)
	}
	return nil
}

// Decode parses "key: value" lines from r. Each line is split on its first
// colon only. Lines without a colon or with an empty key are skipped. Keys
// and values are normalized by [NormalizeKey] and [NormalizeName].
func Decode(r io.Reader) ([]Reference, error) {
	var refs []Reference
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = NormalizeKey(key)
		if key == "" {
			continue
		}
		refs = append(refs, Reference{Key: key, Name: NormalizeName(value)})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// Encode writes one "key: value" line per reference to w. Keys and names are
// normalized first, so a line break inside a reference cannot split it.
func Encode(w io.Writer, refs []Reference) error {
	bw := bufio.NewWriter(w)
	for _, r := range refs {
		if _, err := fmt.Fprintf(bw, "%s: %s\n", NormalizeKey(r.Key), NormalizeName(r.Name)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

package output

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/hearscribe/internal/transcript"
)

var _ Sink = (*RawLog)(nil)

// RawLog appends records to a conversation log file as
//
//	[2006-01-02 15:04:05] **Speaker:** text
//
// The file is created if missing and never truncated.
type RawLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenRawLog opens (or creates) the conversation log at path for appending.
func OpenRawLog(path string) (*RawLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("output: open log %q: %w", path, err)
	}
	return &RawLog{f: f, path: path}, nil
}

// Append implements [Sink].
func (l *RawLog) Append(rec transcript.Record, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return fmt.Errorf("output: append to %q: %w", l.path, os.ErrClosed)
	}
	if _, err := fmt.Fprintf(l.f, "[%s] %s\n", at.Format(TimestampLayout), rec); err != nil {
		return fmt.Errorf("output: append to %q: %w", l.path, err)
	}
	return nil
}

// Close implements [Sink]. Closing twice is a no-op.
func (l *RawLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Package output writes annotated transcript records to disk.
//
// Two sinks are provided: [RawLog] appends one timestamped line per record to
// a plain-text conversation log, and [Document] keeps a Markdown transcript
// that is rewritten in full after every record so it is always complete and
// readable while a session is still running.
package output

import (
	"time"

	"github.com/MrWong99/hearscribe/internal/transcript"
)

// Sink receives annotated records in order.
type Sink interface {
	// Append writes rec, captured at the given time.
	Append(rec transcript.Record, at time.Time) error

	// Close releases the sink's resources.
	Close() error
}

// TimestampLayout is the timestamp format of conversation log lines.
const TimestampLayout = "2006-01-02 15:04:05"

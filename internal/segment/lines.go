package segment

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LineSource reads one segment per non-empty line of an io.Reader. It is not
// safe for concurrent use.
type LineSource struct {
	name    string
	scanner *bufio.Scanner
	line    int
	opts    options
}

var _ Source = (*LineSource)(nil)

// NewLineSource returns a [LineSource] reading from r. name labels the
// segment origins, e.g. "stdin" or a file path.
func NewLineSource(name string, r io.Reader, opts ...Option) *LineSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &LineSource{name: name, scanner: sc, opts: buildOptions(opts)}
}

// Next implements [Source]. Blank lines are skipped.
func (s *LineSource) Next(ctx context.Context) (Segment, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Segment{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Segment{}, fmt.Errorf("segment: read %s: %w", s.name, err)
			}
			return Segment{}, io.EOF
		}
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" {
			continue
		}
		return Segment{
			Text:   text,
			Time:   s.opts.now(),
			Origin: s.name + ":" + strconv.Itoa(s.line),
		}, nil
	}
}

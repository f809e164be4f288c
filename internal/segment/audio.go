package segment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MrWong99/hearscribe/pkg/provider/stt"
)

// FailedTranscription is the segment text substituted for an audio file that
// could not be transcribed. [Skippable] reports true for it.
const FailedTranscription = "[Request Error: Transcription failed]"

// audioExts lists the file extensions picked up from an audio directory.
var audioExts = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".webm": true,
}

// AudioSource transcribes each audio file of a directory, in lexical file
// name order, and yields the transcriptions as segments. It is not safe for
// concurrent use.
type AudioSource struct {
	dir      string
	provider stt.Provider
	opts     options

	files  []string
	listed bool
	next   int
}

var _ Source = (*AudioSource)(nil)

// NewAudioSource returns an [AudioSource] over dir using p. The directory is
// listed on the first call to Next.
func NewAudioSource(dir string, p stt.Provider, opts ...Option) *AudioSource {
	return &AudioSource{dir: dir, provider: p, opts: buildOptions(opts)}
}

// Next implements [Source]. A file that fails to transcribe yields a segment
// with [FailedTranscription] as its text instead of an error, so one bad
// recording does not end the session. Cancellation of ctx is returned as an
// error.
func (s *AudioSource) Next(ctx context.Context) (Segment, error) {
	if err := ctx.Err(); err != nil {
		return Segment{}, err
	}
	if !s.listed {
		files, err := listAudio(s.dir)
		if err != nil {
			return Segment{}, err
		}
		s.files = files
		s.listed = true
	}
	if s.next >= len(s.files) {
		return Segment{}, io.EOF
	}
	path := s.files[s.next]
	s.next++

	name := filepath.Base(path)
	text, err := s.transcribe(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return Segment{}, ctx.Err()
		}
		slog.Warn("segment: transcription failed", "file", name, "err", err)
		text = FailedTranscription
	}
	return Segment{Text: text, Time: s.opts.now(), Origin: name}, nil
}

func (s *AudioSource) transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	tr, err := s.provider.Transcribe(ctx, f, filepath.Base(path))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(tr.Text), nil
}

func listAudio(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("segment: list %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

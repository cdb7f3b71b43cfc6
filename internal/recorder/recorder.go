// ABOUTME: Records dashboard frames as hourly zstd-compressed JSONL files
// ABOUTME: Unchanged consecutive frames are skipped; ReadFile replays a recording

package recorder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is one recorded frame.
type Entry struct {
	Time    time.Time       `json:"t"`
	Turtles json.RawMessage `json:"turtles"`
}

// Recorder appends frames to <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst.
type Recorder struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	last    []byte
	closed  bool
}

// ErrClosed is returned by WriteFrame after Close.
var ErrClosed = errors.New("recorder closed")

// New creates a recorder writing into dir. Files are opened lazily.
func New(dir string) *Recorder {
	return &Recorder{
		baseDir: dir,
		prefix:  "frames",
		now:     time.Now,
	}
}

// WriteFrame records one encoded frame unless it equals the previous one.
func (r *Recorder) WriteFrame(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.last != nil && bytes.Equal(frame, r.last) {
		return nil
	}

	now := r.now().UTC()
	hour := now.Format("2006-01-02-15")
	if hour != r.curHour {
		if err := r.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(Entry{Time: now, Turtles: frame})
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := r.w.Flush(); err != nil {
		return err
	}

	r.last = append(r.last[:0], frame...)
	return nil
}

// Close flushes and closes the current file. Later writes fail with
// ErrClosed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.closeLocked()
}

// Path returns the file the recorder writes for the given time.
func (r *Recorder) Path(t time.Time) string {
	return r.pathForHour(t.UTC().Format("2006-01-02-15"))
}

func (r *Recorder) rotateLocked(hour string) error {
	if err := r.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.baseDir, 0o755); err != nil {
		return fmt.Errorf("creating recorder directory: %w", err)
	}
	f, err := os.OpenFile(r.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	r.f = f
	r.enc = enc
	r.w = bufio.NewWriterSize(enc, 128*1024)
	r.curHour = hour
	return nil
}

func (r *Recorder) closeLocked() error {
	var err error
	if r.w != nil {
		err = r.w.Flush()
	}
	if r.enc != nil {
		err = errors.Join(err, r.enc.Close())
		r.enc = nil
	}
	if r.f != nil {
		err = errors.Join(err, r.f.Close())
		r.f = nil
	}
	r.w = nil
	r.curHour = ""
	return err
}

func (r *Recorder) pathForHour(hour string) string {
	return filepath.Join(r.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", r.prefix, hour))
}

// ReadFile replays a recording, calling fn for every entry in order.
func ReadFile(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	return Read(dec, fn)
}

// Read decodes JSONL entries from an uncompressed stream.
func Read(r io.Reader, fn func(Entry) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("decoding entry: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return scanner.Err()
}

package grading

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNotRecording is returned by Stop without a matching Start.
var ErrNotRecording = errors.New("not recording")

// Clip is one captured recording.
type Clip struct {
	Data        []byte
	Filename    string
	ContentType string
	Duration    time.Duration
}

// Recorder captures audio between Start and Stop.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (Clip, error)
}

// FileRecorder "records" by reading a pre-recorded clip from disk when
// stopped. PathFor is asked for the clip path at Start.
type FileRecorder struct {
	PathFor func() string

	mu      sync.Mutex
	path    string
	started time.Time
	active  bool
}

// NewFileRecorder returns a recorder that reads the clip named by pathFor.
func NewFileRecorder(pathFor func() string) *FileRecorder {
	return &FileRecorder{PathFor: pathFor}
}

func (r *FileRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.PathFor()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	r.path = path
	r.started = time.Now()
	r.active = true
	return nil
}

func (r *FileRecorder) Stop(ctx context.Context) (Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return Clip{}, ErrNotRecording
	}
	r.active = false

	data, err := os.ReadFile(r.path)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to read recording: %w", err)
	}

	return Clip{
		Data:        data,
		Filename:    filepath.Base(r.path),
		ContentType: contentTypeFor(r.path),
		Duration:    time.Since(r.started),
	}, nil
}

var audioTypes = map[string]string{
	".m4a":  "audio/m4a",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".flac": "audio/flac",
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := audioTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

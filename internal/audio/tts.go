// Package audio renders passage sentences to speech so a reader can hear
// the sentence before reading it aloud.
package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTSURL is the Google Translate speech endpoint.
const DefaultTTSURL = "https://translate.google.com/translate_tts"

// maxTextLen is the longest text the endpoint accepts in one request.
const maxTextLen = 200

const ttsRequestTimeout = 10 * time.Second

var ErrEmptyText = errors.New("nothing to speak")

// Speaker converts sentences to MP3 files cached under a directory.
type Speaker struct {
	dir     string
	baseURL string
	lang    string
	client  *http.Client
	log     zerolog.Logger
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithBaseURL points the speaker at another speech endpoint.
func WithBaseURL(u string) Option {
	return func(s *Speaker) { s.baseURL = u }
}

// WithLanguage sets the speech language (default "en").
func WithLanguage(lang string) Option {
	return func(s *Speaker) { s.lang = lang }
}

// NewSpeaker creates a speaker caching audio in dir.
func NewSpeaker(dir string, log zerolog.Logger, opts ...Option) *Speaker {
	s := &Speaker{
		dir:     dir,
		baseURL: DefaultTTSURL,
		lang:    "en",
		client:  &http.Client{Timeout: ttsRequestTimeout},
		log:     log.With().Str("component", "speaker").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CacheKey returns the file name used for text.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return "sentence_" + hex.EncodeToString(sum[:8]) + ".mp3"
}

// Speak returns the path of an MP3 rendering of text, fetching it when it
// is not cached yet.
func (s *Speaker) Speak(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if len(text) > maxTextLen {
		return "", fmt.Errorf("sentence too long to speak (%d > %d characters)", len(text), maxTextLen)
	}

	path := filepath.Join(s.dir, CacheKey(text))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create audio dir: %w", err)
	}
	if err := s.fetch(ctx, text, path); err != nil {
		return "", fmt.Errorf("failed to generate audio: %w", err)
	}
	s.log.Debug().Str("file", path).Msg("speech_cached")
	return path, nil
}

func (s *Speaker) fetch(ctx context.Context, text, outputPath string) error {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("q", text)
	params.Set("tl", s.lang)
	params.Set("client", "tw-ob")
	params.Set("textlen", strconv.Itoa(len(text)))

	ctx, cancel := context.WithTimeout(ctx, ttsRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// The endpoint refuses requests without a browser user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".speech-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), outputPath)
}

// Prefetch renders every sentence, stopping at the first failure.
func (s *Speaker) Prefetch(ctx context.Context, sentences []string) (map[string]string, error) {
	results := make(map[string]string, len(sentences))
	for _, sentence := range sentences {
		path, err := s.Speak(ctx, sentence)
		if err != nil {
			return results, fmt.Errorf("failed to generate audio for %q: %w", sentence, err)
		}
		results[sentence] = path
	}
	return results, nil
}

// Purge removes every cached rendering and reports how many were removed.
func (s *Speaker) Purge() (int, error) {
	files, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read audio directory: %w", err)
	}

	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "sentence_") || filepath.Ext(file.Name()) != ".mp3" {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, file.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"readalong/internal/apperr"
	"readalong/internal/models"
)

// Grader scores one recorded attempt against the expected sentence.
type Grader interface {
	Grade(ctx context.Context, clip Clip, expectedText string) (models.AttemptResult, error)
}

// Client talks to the external grading server.
type Client struct {
	apiURL string
	client *http.Client
	log    zerolog.Logger
}

// NewClient returns a client for the grading server at baseURL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		apiURL: strings.TrimRight(baseURL, "/") + "/grade",
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "grading").Logger(),
	}
}

// Grade uploads the clip as multipart audio with the expected text.
func (c *Client) Grade(ctx context.Context, clip Clip, expectedText string) (models.AttemptResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filename := clip.Filename
	if filename == "" {
		filename = "audio.m4a"
	}
	contentType := clip.ContentType
	if contentType == "" {
		contentType = "audio/m4a"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return models.AttemptResult{}, fmt.Errorf("%w: %v", apperr.ErrSubmission, err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return models.AttemptResult{}, fmt.Errorf("%w: %v", apperr.ErrSubmission, err)
	}
	if err := writer.WriteField("expected_text", expectedText); err != nil {
		return models.AttemptResult{}, fmt.Errorf("%w: %v", apperr.ErrSubmission, err)
	}
	if err := writer.Close(); err != nil {
		return models.AttemptResult{}, fmt.Errorf("%w: %v", apperr.ErrSubmission, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, &body)
	if err != nil {
		return models.AttemptResult{}, fmt.Errorf("%w: %v", apperr.ErrSubmission, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("grade_upload_failed")
		return models.AttemptResult{}, fmt.Errorf("%w: upload failed: %v", apperr.ErrSubmission, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.AttemptResult{}, fmt.Errorf("%w: failed to read response: %v", apperr.ErrSubmission, err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.AttemptResult{}, fmt.Errorf("%w: grading server error %d: %s",
			apperr.ErrSubmission, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result models.AttemptResult
	if err := json.Unmarshal(data, &result); err != nil {
		return models.AttemptResult{}, fmt.Errorf("%w: grading response parse error: %v", apperr.ErrSubmission, err)
	}
	if result.Grade < 0 || result.Grade > 1 {
		return models.AttemptResult{}, fmt.Errorf("%w: grade %v out of range", apperr.ErrSubmission, result.Grade)
	}
	for _, f := range result.Feedback {
		if !f.Kind.Valid() {
			return models.AttemptResult{}, fmt.Errorf("%w: unknown feedback type %q", apperr.ErrSubmission, f.Kind)
		}
	}

	c.log.Debug().
		Float64("grade", result.Grade).
		Bool("frustrated", result.Frustrated).
		Dur("elapsed", time.Since(start)).
		Msg("attempt_graded")
	return result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

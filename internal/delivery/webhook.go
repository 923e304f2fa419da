// Package delivery pushes a confirmed month to the outside world: as an
// image posted to a chat webhook, or as text cells in a workbook.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("delivery target is not configured")

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook responded with status %d: %s", e.StatusCode, e.Body)
}

// Webhook posts images as multipart form uploads.
type Webhook struct {
	URL    string
	Client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:    strings.TrimSpace(url),
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

// ImageFileName is the upload name for a month's schedule.
func ImageFileName(year, month int) string {
	return fmt.Sprintf("%04d-%02d-shift.png", year, month)
}

// Caption is the message text sent alongside a month's schedule.
func Caption(year, month int) string {
	return fmt.Sprintf("Confirmed shift schedule for %d/%02d", year, month)
}

// SendImage uploads png as form file "file" with the caption in "content".
func (w *Webhook) SendImage(ctx context.Context, fileName, caption string, png []byte) error {
	if w == nil || w.URL == "" {
		return ErrNotConfigured
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("content", caption)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("prepare upload: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return fmt.Errorf("write upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, &body)
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

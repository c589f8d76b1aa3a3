// Package webhook posts to the external workflow endpoints (solver, extraction,
// file import) and turns every failure into a classified errs.Error.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"go.uber.org/zap"
)

// maxResponseBytes caps how much of a response body is read.
var maxResponseBytes int64 = 16 << 20

// Client talks to one webhook URL.
type Client struct {
	URL  string
	HTTP *http.Client
	Log  *zap.Logger
}

// New returns a Client with its own http.Client using timeout.
func New(url string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		URL:  url,
		HTTP: &http.Client{Timeout: timeout},
		Log:  log,
	}
}

// PostJSON sends body as JSON and returns the raw response body of a 2xx reply.
func (c *Client) PostJSON(ctx context.Context, op string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Transport(op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(op, req)
}

// PostFile uploads r as the multipart form field "file".
func (c *Client) PostFile(ctx context.Context, op, filename, contentType string, r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("%s: create form part: %w", op, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("%s: copy file: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: close form: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, &buf)
	if err != nil {
		return nil, errs.Transport(op, "build request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return c.do(op, req)
}

func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Warn("webhook request failed", zap.String("op", op), zap.String("url", c.URL), zap.Error(err))
		return nil, errs.Transport(op, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, errs.Transport(op, "read response", err)
	}
	if int64(len(body)) > maxResponseBytes {
		return nil, errs.Transport(op, fmt.Sprintf("response too large (over %d bytes)", maxResponseBytes), nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ServerMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		} else {
			msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg)
		}
		c.Log.Warn("webhook returned error status",
			zap.String("op", op),
			zap.String("url", c.URL),
			zap.Int("status", resp.StatusCode),
		)
		return nil, errs.Transport(op, msg, nil)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errs.Transport(op, "empty response body", nil)
	}
	if !json.Valid(body) {
		return nil, errs.Transport(op, "response is not valid JSON", nil)
	}
	return body, nil
}

// ServerMessage extracts a human-readable message from an error body:
// "message", then "error" (a string or an object with "message").
func ServerMessage(body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return ""
}

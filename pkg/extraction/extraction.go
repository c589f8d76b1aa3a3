// Package extraction is the client for the document/image extraction webhook.
package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/arnavshah/timetable-wizard-go/pkg/webhook"
)

// Speaker labels used when flattening a conversation. The extraction workflow's
// prompt is written against these.
const (
	UserLabel      = "Người dùng"
	AssistantLabel = "AI"
)

// Turn is a prior transcript entry reduced to what the service sees.
type Turn struct {
	Role models.Role
	Text string
}

// Request carries the history, the new user text and an optional image.
type Request struct {
	History []Turn
	Text    string
	Image   *models.Attachment
}

// Response is the narrative reply plus any extracted rows.
type Response struct {
	Text string
	Data []models.Row
}

// Extractor is anything that can answer an extraction request.
type Extractor interface {
	Extract(ctx context.Context, req Request) (Response, error)
}

type wireRequest struct {
	Text     string `json:"text"`
	Image    string `json:"image,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Client posts extraction requests to the webhook.
type Client struct {
	hook *webhook.Client
}

func NewClient(hook *webhook.Client) *Client {
	return &Client{hook: hook}
}

func (c *Client) Extract(ctx context.Context, req Request) (Response, error) {
	const op = "extraction.Extract"
	wire := wireRequest{Text: FlattenConversation(req.History, req.Text)}
	if req.Image != nil && len(req.Image.Data) > 0 {
		wire.Image = base64.StdEncoding.EncodeToString(req.Image.Data)
		wire.MimeType = req.Image.MIMEType
	}

	body, err := c.hook.PostJSON(ctx, op, wire)
	if err != nil {
		return Response{}, err
	}
	return ParseResponse(body)
}

// FlattenConversation renders history as "<label>: <text>" lines followed by the
// new user line.
func FlattenConversation(history []Turn, text string) string {
	var b strings.Builder
	for _, t := range history {
		b.WriteString(label(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}
	b.WriteString(UserLabel)
	b.WriteString(": ")
	b.WriteString(text)
	return b.String()
}

func label(r models.Role) string {
	if r == models.RoleUser {
		return UserLabel
	}
	return AssistantLabel
}

// ParseResponse accepts {"text": ..., "data": [...]} with either field missing, or a
// bare array of rows. An object with neither field is a schema error.
func ParseResponse(body []byte) (Response, error) {
	const op = "extraction.ParseResponse"
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Response{}, errs.Transport(op, "empty response body", nil)
	}

	switch body[0] {
	case '[':
		var rows []models.Row
		if err := json.Unmarshal(body, &rows); err != nil {
			return Response{}, errs.Schema(op, "response array is not a list of rows: %v", err)
		}
		return Response{Text: Narrate(rows), Data: rows}, nil
	case '{':
		var obj struct {
			Text *string        `json:"text"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &obj); err != nil {
			return Response{}, errs.Schema(op, "unreadable response object: %v", err)
		}
		if obj.Text == nil && obj.Data == nil {
			return Response{}, errs.Schema(op, "response has neither text nor data")
		}
		var rows []models.Row
		if d := bytes.TrimSpace(obj.Data); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
			if err := json.Unmarshal(d, &rows); err != nil {
				return Response{}, errs.Schema(op, "data is not a list of rows: %v", err)
			}
		}
		text := ""
		if obj.Text != nil {
			text = *obj.Text
		}
		if strings.TrimSpace(text) == "" {
			text = Narrate(rows)
		}
		return Response{Text: text, Data: rows}, nil
	default:
		return Response{}, errs.Schema(op, "expected a JSON object or array")
	}
}

// Narrate renders rows as one "teacher - subject - class - periods" line each.
func Narrate(rows []models.Row) string {
	if len(rows) == 0 {
		return "Không tìm thấy dữ liệu."
	}
	var b strings.Builder
	b.WriteString("Dữ liệu đã trích xuất:\n\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s - %s - %s - %d\n", r.Teacher, r.Subject, r.Class, r.Periods)
	}
	b.WriteString("\nBạn có cần chỉnh sửa gì không? (Nếu đã ổn, hãy trả lời 'OK')")
	return b.String()
}

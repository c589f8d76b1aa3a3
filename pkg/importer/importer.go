// Package importer hands assignment files (CSV, Excel, JSON) to the parsing webhook
// and accepts its answer only if it is an array of rows.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/arnavshah/timetable-wizard-go/pkg/webhook"
	"github.com/gabriel-vasile/mimetype"
)

// MaxFileBytes bounds an uploaded file.
const MaxFileBytes = 20 << 20

var allowedExt = map[string]bool{".csv": true, ".xlsx": true, ".json": true}

// Client uploads files to the parse webhook.
type Client struct {
	hook *webhook.Client
}

func NewClient(hook *webhook.Client) *Client {
	return &Client{hook: hook}
}

// Import uploads the file and returns the rows the service found.
func (c *Client) Import(ctx context.Context, filename string, r io.Reader) ([]models.Row, error) {
	const op = "importer.Import"
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return nil, errs.Validation(op, "unsupported file type %q (use CSV, Excel or JSON)", ext)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxFileBytes+1))
	if err != nil {
		return nil, errs.Validation(op, "could not read %s: %v", filename, err)
	}
	if len(data) == 0 {
		return nil, errs.Validation(op, "%s is empty", filename)
	}
	if len(data) > MaxFileBytes {
		return nil, errs.Validation(op, "%s is larger than %d MB", filename, MaxFileBytes>>20)
	}

	body, err := c.hook.PostFile(ctx, op, filename, mimetype.Detect(data).String(), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return ParseRows(body)
}

// ParseRows accepts only a JSON array of row objects.
func ParseRows(body []byte) ([]models.Row, error) {
	const op = "importer.ParseRows"
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return nil, errs.Schema(op, "invalid data format received: expected an array")
	}
	var rows []models.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, errs.Schema(op, "invalid data format received: %v", err)
	}
	return rows, nil
}

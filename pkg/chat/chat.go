// Package chat runs the extraction conversation that sits beside the assignment
// step. The transcript is append-only; extracted rows reach the wizard only when a
// turn is committed.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"github.com/arnavshah/timetable-wizard-go/pkg/extraction"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/arnavshah/timetable-wizard-go/pkg/wizard"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Greeting opens every transcript.
const Greeting = "Trợ lý AI đã sẵn sàng!\n\nVui lòng:\n• Tải lên ảnh phân công giảng dạy\n• Hoặc nhập/dán nội dung văn bản\n\nTôi sẽ trích xuất và giúp bạn chỉnh sửa dữ liệu."

// Importer takes committed rows. *wizard.State implements it.
type Importer interface {
	ImportAssignments(rows []models.Row) wizard.ImportResult
}

// Reply is what one submission added to the transcript.
type Reply struct {
	Messages []models.Message    `json:"messages"`
	Imported *wizard.ImportResult `json:"imported,omitempty"`
}

// Controller owns one transcript. Only one extraction request runs at a time;
// submissions made meanwhile are rejected, not queued.
type Controller struct {
	mu         sync.Mutex
	transcript []models.Message

	extractor extraction.Extractor
	importer  Importer
	slot      *semaphore.Weighted
	pending   atomic.Bool
	log       *zap.Logger
	now       func() time.Time
}

func New(extractor extraction.Extractor, importer Importer, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		extractor: extractor,
		importer:  importer,
		slot:      semaphore.NewWeighted(1),
		log:       log,
		now:       time.Now,
	}
	c.transcript = []models.Message{c.message(models.RoleAssistant, Greeting)}
	return c
}

// Transcript returns a copy of every turn so far.
func (c *Controller) Transcript() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message{}, c.transcript...)
}

// Submit handles one user submission. "OK" with no attachment commits the latest
// extracted batch locally when there is one; anything else goes to the extraction
// service. Service failures come back as an assistant turn, not as an error.
func (c *Controller) Submit(ctx context.Context, text string, image *models.Attachment) (Reply, error) {
	const op = "chat.Submit"
	if strings.TrimSpace(text) == "" && image == nil {
		return Reply{}, errs.Validation(op, "type a message or attach an image")
	}
	if !c.slot.TryAcquire(1) {
		return Reply{}, errs.Busy(op)
	}
	c.pending.Store(true)
	defer func() {
		c.pending.Store(false)
		c.slot.Release(1)
	}()

	if image == nil && Recognize(text) == CommandCommit {
		if reply, ok := c.commitLatest(text); ok {
			return reply, nil
		}
	}

	userMsg := c.message(models.RoleUser, text)
	userMsg.Attachment = image

	c.mu.Lock()
	history := make([]extraction.Turn, len(c.transcript))
	for i, m := range c.transcript {
		history[i] = extraction.Turn{Role: m.Role, Text: m.Text}
	}
	c.transcript = append(c.transcript, userMsg)
	c.mu.Unlock()

	resp, err := c.extractor.Extract(ctx, extraction.Request{History: history, Text: text, Image: image})

	var reply models.Message
	if err != nil {
		c.log.Warn("extraction failed", zap.Error(err))
		reply = c.message(models.RoleAssistant, "Lỗi kết nối webhook: "+errs.MessageOf(err))
	} else {
		reply = c.message(models.RoleAssistant, resp.Text)
		reply.Data = resp.Data
	}

	c.mu.Lock()
	c.transcript = append(c.transcript, reply)
	c.mu.Unlock()

	return Reply{Messages: []models.Message{userMsg, reply}}, nil
}

// Pending reports whether a submission is being processed.
func (c *Controller) Pending() bool { return c.pending.Load() }

// commitLatest imports the most recent assistant batch. It reports false when no
// assistant turn carries data, in which case "OK" is sent on like any other text.
func (c *Controller) commitLatest(text string) (Reply, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var batch []models.Row
	for i := len(c.transcript) - 1; i >= 0; i-- {
		m := c.transcript[i]
		if m.Role == models.RoleAssistant && m.HasData() {
			batch = m.Data
			break
		}
	}
	if batch == nil {
		return Reply{}, false
	}

	res := c.importer.ImportAssignments(batch)
	userMsg := c.message(models.RoleUser, text)
	confirm := c.message(models.RoleSystem, fmt.Sprintf("Đã tự động nhập %d mục vào bảng!", len(batch)))
	c.transcript = append(c.transcript, userMsg, confirm)
	return Reply{Messages: []models.Message{userMsg, confirm}, Imported: &res}, true
}

// Commit imports the batch of any earlier assistant turn.
func (c *Controller) Commit(messageID string) (Reply, error) {
	const op = "chat.Commit"
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.transcript {
		if m.ID != messageID {
			continue
		}
		if m.Role != models.RoleAssistant || !m.HasData() {
			return Reply{}, errs.Validation(op, "message %s has no extracted data", messageID)
		}
		res := c.importer.ImportAssignments(m.Data)
		confirm := c.message(models.RoleSystem, "Đã nhập dữ liệu vào bảng thành công!")
		c.transcript = append(c.transcript, confirm)
		return Reply{Messages: []models.Message{confirm}, Imported: &res}, nil
	}
	return Reply{}, errs.NotFound(op, "message %s not found", messageID)
}

func (c *Controller) message(role models.Role, text string) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: c.now(),
	}
}

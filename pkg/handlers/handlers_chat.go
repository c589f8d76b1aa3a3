package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/arnavshah/timetable-wizard-go/pkg/chat"
	"github.com/arnavshah/timetable-wizard-go/pkg/database"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/gin-gonic/gin"
)

// GetTranscript returns every chat turn of the session.
func (h *Handler) GetTranscript(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": sess.Chat.Transcript(),
		"pending":  sess.Chat.Pending(),
	})
}

// SendMessage accepts JSON {"text"} or a multipart form with "text" and an
// optional "image" file.
func (h *Handler) SendMessage(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var (
		text  string
		image *models.Attachment
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		text = c.PostForm("text")
		if fh, err := c.FormFile("image"); err == nil {
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open image"})
				return
			}
			data, err := io.ReadAll(io.LimitReader(f, chat.MaxImageBytes+1))
			f.Close()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read image"})
				return
			}
			if image, err = chat.NewAttachment(fh.Filename, data); err != nil {
				h.fail(c, err)
				return
			}
		}
	} else {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		text = req.Text
	}

	reply, err := sess.Chat.Submit(collaboratorContext(c), text, image)
	if err != nil {
		h.fail(c, err)
		return
	}
	if reply.Imported == nil {
		h.recordUsage(c, database.Usage{Requests: 1, Extractions: 1})
	}

	body := gin.H{"messages": reply.Messages}
	if reply.Imported != nil {
		body["imported"] = reply.Imported
		body["state"] = sess.Wizard.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// CommitMessage merges the rows extracted in an earlier assistant turn.
func (h *Handler) CommitMessage(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	reply, err := sess.Chat.Commit(c.Param("mid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": reply.Messages,
		"imported": reply.Imported,
		"state":    sess.Wizard.Snapshot(),
	})
}

package handlers

import (
	"net/http"

	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/gin-gonic/gin"
)

// AddAssignment merges one manually entered row into the table.
func (h *Handler) AddAssignment(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var row models.Row
	if err := c.ShouldBindJSON(&row); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := sess.Wizard.AddAssignment(row)
	if err != nil {
		h.fail(c, err)
		return
	}
	body := state(sess)
	body["assignment"] = record
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) UpdateAssignment(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var row models.Row
	if err := c.ShouldBindJSON(&row); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := sess.Wizard.UpdateAssignment(c.Param("aid"), row)
	if err != nil {
		h.fail(c, err)
		return
	}
	body := state(sess)
	body["assignment"] = record
	c.JSON(http.StatusOK, body)
}

func (h *Handler) RemoveAssignment(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Wizard.RemoveAssignment(c.Param("aid")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state(sess))
}

// ImportAssignments merges a JSON array of rows. Row fields are coerced, not
// validated, the same way extracted rows are.
func (h *Handler) ImportAssignments(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var rows []models.Row
	if err := c.ShouldBindJSON(&rows); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be an array of rows: " + err.Error()})
		return
	}
	res := sess.Wizard.ImportAssignments(rows)
	body := state(sess)
	body["imported"] = res
	c.JSON(http.StatusOK, body)
}

// UploadAssignments sends a CSV, Excel or JSON file to the parse service and
// merges the rows it returns.
func (h *Handler) UploadAssignments(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open uploaded file"})
		return
	}
	defer f.Close()

	rows, err := h.Importer.Import(collaboratorContext(c), fh.Filename, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	res := sess.Wizard.ImportAssignments(rows)
	body := state(sess)
	body["imported"] = res
	c.JSON(http.StatusOK, body)
}

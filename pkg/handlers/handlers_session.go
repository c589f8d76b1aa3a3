package handlers

import (
	"net/http"
	"strconv"

	"github.com/arnavshah/timetable-wizard-go/pkg/database"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/arnavshah/timetable-wizard-go/pkg/wizard"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateSession starts a wizard for the calling key.
func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.Sessions.Create(c.GetString("userID"))
	c.JSON(http.StatusCreated, state(sess))
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state(sess))
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.Sessions.Delete(c.Param("id"), c.GetString("userID")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted"})
}

// ResetSession clears every list and returns to step 1.
func (h *Handler) ResetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.Wizard.ResetAll()
	c.JSON(http.StatusOK, state(sess))
}

// GoToStep jumps straight to a step; data is kept.
func (h *Handler) GoToStep(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		Step int `json:"step" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := sess.Wizard.GoToStep(req.Step); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state(sess))
}

// NextStep advances the wizard. From the constraints step this sends the solve
// request and waits for it.
func (h *Handler) NextStep(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	solving := sess.Wizard.CurrentStep() == wizard.StepConstraints
	if err := sess.Wizard.Next(collaboratorContext(c), sess.Solve); err != nil {
		if solving {
			h.Log.Warn("solve failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
		h.fail(c, err)
		return
	}

	body := state(sess)
	if solving {
		snap := body["state"].(models.Snapshot)
		h.recordUsage(c, database.Usage{
			Requests:    1,
			Assignments: len(snap.Assignments),
			Constraints: len(snap.Constraints),
		})
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) PrevStep(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Wizard.Back(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state(sess))
}

// UpdateTimeFrame sets one morning or afternoon count.
func (h *Handler) UpdateTimeFrame(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "day index must be a number"})
		return
	}
	var req struct {
		Field string `json:"field" binding:"required"`
		Value *int   `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := sess.Wizard.UpdateTimeFrame(index, req.Field, *req.Value); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state(sess))
}

func (h *Handler) ResetTimeFrame(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.Wizard.ResetTimeFrame()
	c.JSON(http.StatusOK, state(sess))
}

func (h *Handler) AddConstraint(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		Text     string `json:"text"`
		Priority string `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	constraint, err := sess.Wizard.AddConstraint(req.Text, models.Priority(req.Priority))
	if err != nil {
		h.fail(c, err)
		return
	}
	body := state(sess)
	body["constraint"] = constraint
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) RemoveConstraint(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Wizard.RemoveConstraint(c.Param("cid")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state(sess))
}

// GetResult returns the solver's answer exactly as it was received.
func (h *Handler) GetResult(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	result, ok := sess.Wizard.ScheduleResult()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No schedule result yet"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", result)
}

func (h *Handler) ClearResult(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.Wizard.ClearScheduleResult()
	c.JSON(http.StatusOK, state(sess))
}

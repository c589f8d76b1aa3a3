package handlers

import (
	"net/http"

	"github.com/arnavshah/timetable-wizard-go/pkg/wizard"
	"github.com/gin-gonic/gin"
)

// ValidateSession reports whether the session's inputs are ready to be solved.
// It never calls the solver.
func (h *Handler) ValidateSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	report := wizard.Check(sess.Wizard.Snapshot())
	c.JSON(http.StatusOK, gin.H{
		"valid":  report.Ready,
		"report": report,
	})
}

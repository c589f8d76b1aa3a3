package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/arnavshah/timetable-wizard-go/pkg/export"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Export downloads the session as CSV (assignments only) or XLSX (all inputs).
func (h *Handler) Export(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	snap := sess.Wizard.Snapshot()

	switch format := strings.ToLower(c.DefaultQuery("format", "csv")); format {
	case "csv":
		var buf bytes.Buffer
		if err := export.AssignmentsCSV(&buf, snap.Assignments); err != nil {
			h.Log.Error("csv export failed", zap.String("session_id", sess.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not export assignments"})
			return
		}
		attachment(c, "assignments.csv")
		c.Data(http.StatusOK, export.ContentTypeCSV, buf.Bytes())
	case "xlsx":
		buf, err := export.Workbook(snap)
		if err != nil {
			h.Log.Error("xlsx export failed", zap.String("session_id", sess.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not export workbook"})
			return
		}
		attachment(c, "timetable-input.xlsx")
		c.Data(http.StatusOK, export.ContentTypeXLSX, buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q (use csv or xlsx)", format)})
	}
}

func attachment(c *gin.Context, name string) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, name))
}

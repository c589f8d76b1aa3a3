package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/arnavshah/timetable-wizard-go/pkg/auth"
	"github.com/arnavshah/timetable-wizard-go/pkg/database"
	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/arnavshah/timetable-wizard-go/pkg/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FileImporter turns an uploaded assignment file into rows.
type FileImporter interface {
	Import(ctx context.Context, filename string, r io.Reader) ([]models.Row, error)
}

// Handler contains dependencies for the route handlers
type Handler struct {
	DB       *gorm.DB
	Auth     *auth.Service
	Sessions *session.Store
	Importer FileImporter
	Log      *zap.Logger
}

// statusOf maps an error kind to the HTTP status reported to the caller.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindBusy:
		return http.StatusConflict
	case errs.KindTransport, errs.KindSchema:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": msg, "kind": kind}.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	msg := errs.MessageOf(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "Internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg, "kind": errs.KindOf(err).String()})
}

// session loads the :id session of the calling key, writing a 404 when it is unknown.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	sess, err := h.Sessions.Get(c.Param("id"), c.GetString("userID"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return sess, true
}

// state is the body returned by every call that changes a wizard.
func state(sess *session.Session) gin.H {
	return gin.H{
		"session_id": sess.ID,
		"state":      sess.Wizard.Snapshot(),
	}
}

// collaboratorContext keeps outbound calls alive when the client goes away; a
// request that was issued always completes and its result is applied.
func collaboratorContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// recordUsage adds u to the calling key's ledger for today. Failures are logged only.
func (h *Handler) recordUsage(c *gin.Context, u database.Usage) {
	apiKeyRaw, exists := c.Get("apiKey")
	if !exists {
		return
	}
	apiKey := apiKeyRaw.(*database.APIKey)
	if err := database.RecordUsage(h.DB, apiKey.ID, u, time.Now()); err != nil {
		h.Log.Warn("could not record usage", zap.Uint("key_id", apiKey.ID), zap.Error(err))
	}
}

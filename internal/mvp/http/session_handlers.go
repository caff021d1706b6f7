package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/buildtrix/mvp-studio-backend/internal/auth"
	"github.com/buildtrix/mvp-studio-backend/internal/logging"
	"github.com/buildtrix/mvp-studio-backend/internal/wizard"
)

// SnapshotSaver is the snapshot slice of the generate service.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, userID string, state wizard.State) (wizard.State, bool, error)
}

type SessionHandler struct {
	sessions *wizard.SessionRepo
	saver    SnapshotSaver
}

func RegisterSessions(rg *gin.RouterGroup, sessions *wizard.SessionRepo, saver SnapshotSaver) {
	h := &SessionHandler{sessions: sessions, saver: saver}

	rg.POST("", h.save)
	rg.GET("/latest", h.latest)
}

// save persists one auto-save tick. The body is the full wizard state; the
// first save of a new studio run consumes a generation slot and creates the
// project row.
func (h *SessionHandler) save(c *gin.Context) {
	userID := auth.UserDBID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
		return
	}

	var state wizard.State
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid body"})
		return
	}
	if state.SchemaVersion == 0 {
		state.SchemaVersion = wizard.StateSchemaVersion
	}
	if !state.CurrentStage.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid current stage"})
		return
	}

	saved, created, err := h.saver.SaveSnapshot(c.Request.Context(), userID, state)
	if err != nil {
		writeQuotaOrInternal(c, err)
		return
	}

	message := "progress saved"
	if created {
		message = "project created"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"projectId": saved.ProjectID,
		"message":   message,
	})
}

// latest resumes the most recent snapshot, optionally scoped to one project
// via ?project_id=.
func (h *SessionHandler) latest(c *gin.Context) {
	userID := auth.UserDBID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
		return
	}

	sess, err := h.sessions.Latest(c.Request.Context(), userID, c.Query("project_id"))
	if errors.Is(err, wizard.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no saved session"})
		return
	}
	if err != nil {
		logging.New(c.Request.Context()).Error("load_session", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "session": sess})
}

package quota

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/buildtrix/mvp-studio-backend/internal/auth"
)

// RateLimitInfo is the wire shape the front end renders.
type RateLimitInfo struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Used      int    `json:"used"`
	Reset     int64  `json:"reset"` // unix millis
	ResetDate string `json:"resetDate"`
}

func InfoFromStatus(st Status) RateLimitInfo {
	return RateLimitInfo{
		Limit:     st.Limit,
		Remaining: st.Remaining,
		Used:      st.Used,
		Reset:     st.ResetAt.UnixMilli(),
		ResetDate: st.ResetAt.UTC().Format(time.RFC1123),
	}
}

type Handler struct {
	reconciler *Reconciler
}

func Register(rg *gin.RouterGroup, reconciler *Reconciler) {
	h := &Handler{reconciler: reconciler}
	rg.GET("/rate-limit", h.status)
}

// status is a pure read: it reports durable usage and never touches the
// external counter.
func (h *Handler) status(c *gin.Context) {
	userID := auth.UserDBID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
		return
	}

	st := h.reconciler.CheckStatus(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"rateLimitInfo": InfoFromStatus(st),
	})
}

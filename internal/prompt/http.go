package prompt

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/buildtrix/mvp-studio-backend/internal/auth"
	"github.com/buildtrix/mvp-studio-backend/internal/logging"
)

type Handler struct {
	repo *Repo
}

func RegisterRoutes(rg *gin.RouterGroup, repo *Repo) {
	h := &Handler{repo: repo}

	rg.POST("/validate", h.validate)
	rg.GET("", h.list)
	rg.GET("/current", h.current)
	rg.POST("/:id/feedback", h.feedback)
	rg.POST("/:id/archive", h.archive)
}

type validateReq struct {
	Prompt string `json:"prompt"`
}

// validate runs the heuristic checks on arbitrary prompt text. Purely
// advisory; nothing is persisted.
func (h *Handler) validate(c *gin.Context) {
	var req validateReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid body"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "report": Validate(req.Prompt)})
}

func (h *Handler) list(c *gin.Context) {
	userID := auth.UserDBID(c)
	projectID := c.Query("project_id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "project_id is required"})
		return
	}

	items, err := h.repo.ListByProject(c.Request.Context(), userID, projectID)
	if err != nil {
		logging.New(c.Request.Context()).Error("list_prompts", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prompts": items})
}

// current returns the active version for one (project, kind, tool) line,
// so the front end can show the latest prompt without listing history.
func (h *Handler) current(c *gin.Context) {
	userID := auth.UserDBID(c)
	projectID := c.Query("project_id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "project_id is required"})
		return
	}
	kind := c.DefaultQuery("kind", "skeleton")
	tool := c.DefaultQuery("tool", "generic")

	p, err := h.repo.Current(c.Request.Context(), userID, projectID, kind, tool)
	if errors.Is(err, ErrPromptNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "prompt not found"})
		return
	}
	if err != nil {
		logging.New(c.Request.Context()).Error("current_prompt", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prompt": p})
}

type feedbackReq struct {
	Rating int `json:"rating"`
}

func (h *Handler) feedback(c *gin.Context) {
	var req feedbackReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Rating < 1 || req.Rating > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "rating must be 1-5"})
		return
	}

	userID := auth.UserDBID(c)
	err := h.repo.SetRating(c.Request.Context(), userID, c.Param("id"), req.Rating)
	if errors.Is(err, ErrPromptNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "prompt not found"})
		return
	}
	if err != nil {
		logging.New(c.Request.Context()).Error("prompt_feedback", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) archive(c *gin.Context) {
	userID := auth.UserDBID(c)
	err := h.repo.Archive(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, ErrPromptNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "prompt not found"})
		return
	}
	if err != nil {
		logging.New(c.Request.Context()).Error("prompt_archive", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

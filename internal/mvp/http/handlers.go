package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/buildtrix/mvp-studio-backend/internal/auth"
	"github.com/buildtrix/mvp-studio-backend/internal/logging"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp/domain"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp/service"
	"github.com/buildtrix/mvp-studio-backend/internal/prompt"
	"github.com/buildtrix/mvp-studio-backend/internal/quota"
)

// Generator is the slice of the generate service these handlers use.
// Declared here so tests can stub it.
type Generator interface {
	Generate(ctx context.Context, userID string, idea domain.AppIdea, answers domain.ValidationAnswers, tool prompt.Tool) (*service.Result, error)
	GenerateStageBlueprint(ctx context.Context, userID, publicID string, answers domain.ValidationAnswers, tool prompt.Tool) (*service.StageBlueprintResult, error)
	GenerateStageScreenPrompts(ctx context.Context, userID, publicID string, tool prompt.Tool) (*service.StageScreenPromptsResult, error)
	GenerateStageFlow(ctx context.Context, userID, publicID string) (*domain.FlowDocument, error)
}

type Handler struct {
	repo *mvp.Repo
	gen  Generator
}

func Register(rg *gin.RouterGroup, repo *mvp.Repo, gen Generator) {
	h := &Handler{repo: repo, gen: gen}

	rg.POST("/generate", h.generate)
	rg.POST("/:public_id/blueprint", h.generateBlueprint)
	rg.POST("/:public_id/screen-prompts", h.generateScreenPrompts)
	rg.POST("/:public_id/flow", h.generateFlow)
	rg.GET("", h.list)
	rg.GET("/:public_id", h.get)
	rg.PATCH("/:public_id/status", h.updateStatus)
	rg.DELETE("/:public_id", h.delete)
	rg.PUT("/:public_id/questionnaire", h.upsertQuestionnaire)
}

type generateReq struct {
	AppIdea             domain.AppIdea           `json:"appIdea"`
	ValidationQuestions domain.ValidationAnswers `json:"validationQuestions"`
	TargetTool          string                   `json:"targetTool,omitempty"`
}

func (h *Handler) generate(c *gin.Context) {
	userID := auth.UserDBID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
		return
	}

	var req generateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid body"})
		return
	}
	if strings.TrimSpace(req.AppIdea.AppName) == "" ||
		strings.TrimSpace(req.AppIdea.Description) == "" ||
		len(req.AppIdea.Platforms) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "appIdea requires appName, ideaDescription and platforms"})
		return
	}

	tool := prompt.Tool(req.TargetTool)
	if req.TargetTool == "" {
		tool = prompt.ToolGeneric
	}
	if !tool.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown targetTool"})
		return
	}

	res, err := h.gen.Generate(c.Request.Context(), userID, req.AppIdea, req.ValidationQuestions, tool)
	if err != nil {
		writeQuotaOrInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"projectId":     res.ProjectID,
		"prompt":        res.Prompt,
		"fallbackUsed":  res.FallbackUsed,
		"rateLimitInfo": quota.InfoFromStatus(res.Quota),
	})
}

type stageGenReq struct {
	ValidationQuestions domain.ValidationAnswers `json:"validationQuestions"`
	TargetTool          string                   `json:"targetTool,omitempty"`
}

// bindStageGen parses the optional stage-generation body. An empty body is
// fine; it means default tool and zero answers.
func (h *Handler) bindStageGen(c *gin.Context) (stageGenReq, prompt.Tool, bool) {
	var req stageGenReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid body"})
			return req, "", false
		}
	}

	tool := prompt.Tool(req.TargetTool)
	if req.TargetTool == "" {
		tool = prompt.ToolGeneric
	}
	if !tool.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown targetTool"})
		return req, "", false
	}
	return req, tool, true
}

func (h *Handler) generateBlueprint(c *gin.Context) {
	userID := auth.UserDBID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
		return
	}

	req, tool, ok := h.bindStageGen(c)
	if !ok {
		return
	}

	res, err := h.gen.GenerateStageBlueprint(c.Request.Context(), userID, c.Param("public_id"), req.ValidationQuestions, tool)
	if err != nil {
		writeStageErr(c, "generate_stage_blueprint", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"blueprint":    res.Blueprint,
		"fallbackUsed": res.FallbackUsed,
	})
}

func (h *Handler) generateScreenPrompts(c *gin.Context) {
	userID := auth.UserDBID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
		return
	}

	_, tool, ok := h.bindStageGen(c)
	if !ok {
		return
	}

	res, err := h.gen.GenerateStageScreenPrompts(c.Request.Context(), userID, c.Param("public_id"), tool)
	if err != nil {
		writeStageErr(c, "generate_stage_screens", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"screenPrompts": res.ScreenPrompts,
		"fallbackUsed":  res.FallbackUsed,
	})
}

func (h *Handler) generateFlow(c *gin.Context) {
	userID := auth.UserDBID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
		return
	}

	flow, err := h.gen.GenerateStageFlow(c.Request.Context(), userID, c.Param("public_id"))
	if err != nil {
		writeStageErr(c, "generate_stage_flow", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "flow": flow})
}

// writeStageErr maps stage-generation errors onto the wire contract.
func writeStageErr(c *gin.Context, operation string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "project not found"})
		return
	}
	if errors.Is(err, service.ErrStageNotReady) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "earlier stage artifacts are missing"})
		return
	}

	logging.New(c.Request.Context()).Error(operation, err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
}

func (h *Handler) list(c *gin.Context) {
	userID := auth.UserDBID(c)
	items, err := h.repo.List(c.Request.Context(), userID)
	if err != nil {
		logging.New(c.Request.Context()).Error("list_mvps", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "mvps": items})
}

func (h *Handler) get(c *gin.Context) {
	userID := auth.UserDBID(c)
	p, err := h.repo.Get(c.Request.Context(), userID, c.Param("public_id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "project not found"})
		return
	}
	if err != nil {
		logging.New(c.Request.Context()).Error("get_mvp", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "mvp": p})
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid body"})
		return
	}

	userID := auth.UserDBID(c)
	err := h.repo.UpdateStatus(c.Request.Context(), userID, c.Param("public_id"), domain.Status(req.Status))
	if errors.Is(err, domain.ErrInvalidStatus) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid status value"})
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "project not found"})
		return
	}
	if err != nil {
		logging.New(c.Request.Context()).Error("update_status", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) delete(c *gin.Context) {
	userID := auth.UserDBID(c)
	err := h.repo.SoftDelete(c.Request.Context(), userID, c.Param("public_id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "project not found"})
		return
	}
	if err != nil {
		logging.New(c.Request.Context()).Error("delete_mvp", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type questionnaireReq struct {
	ValidatedWithUsers  bool   `json:"validatedWithUsers"`
	DiscussedWithOthers bool   `json:"discussedWithOthers"`
	Motivation          string `json:"motivation,omitempty"`
}

func (h *Handler) upsertQuestionnaire(c *gin.Context) {
	var req questionnaireReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid body"})
		return
	}

	userID := auth.UserDBID(c)
	q := &domain.Questionnaire{
		ProjectPublicID:     c.Param("public_id"),
		ValidatedWithUsers:  req.ValidatedWithUsers,
		DiscussedWithOthers: req.DiscussedWithOthers,
		Motivation:          req.Motivation,
	}
	err := h.repo.UpsertQuestionnaire(c.Request.Context(), userID, q)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "project not found"})
		return
	}
	if err != nil {
		logging.New(c.Request.Context()).Error("upsert_questionnaire", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// writeQuotaOrInternal maps service errors onto the wire contract: 429 with
// durable usage numbers for quota exhaustion, generic 500 otherwise with no
// internal detail leaked.
func writeQuotaOrInternal(c *gin.Context, err error) {
	var qe *service.QuotaExceededError
	if errors.As(err, &qe) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success":       false,
			"error":         "monthly generation limit reached",
			"rateLimitInfo": quota.InfoFromStatus(qe.Status),
		})
		return
	}

	logging.New(c.Request.Context()).Error("generate", err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
}

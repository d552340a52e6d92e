// Package server exposes plans over a JSON HTTP API.
package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LehuyH/transfer-helper/internal/domain"
	"github.com/LehuyH/transfer-helper/internal/export"
	"github.com/LehuyH/transfer-helper/internal/integrations/llm"
	"github.com/LehuyH/transfer-helper/internal/plan"
	"github.com/LehuyH/transfer-helper/internal/planner"
	"github.com/LehuyH/transfer-helper/internal/storage/sqlite"
)

// Sharer posts a plan to a team channel.
type Sharer interface {
	SharePlan(ctx context.Context, r plan.Report, csv []byte, filename string) error
}

// Reviewer produces a plain-language review of a plan.
type Reviewer interface {
	Review(ctx context.Context, r plan.Report) (llm.Review, llm.Usage, error)
}

type Handler struct {
	svc      *planner.Service
	sharer   Sharer
	reviewer Reviewer
	logger   *zap.Logger
}

// NewHandler wires the API. sharer and reviewer may be nil; their routes then
// answer 503.
func NewHandler(svc *planner.Service, sharer Sharer, reviewer Reviewer, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, sharer: sharer, reviewer: reviewer, logger: logger}
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/colleges", h.ListColleges)

	router.GET("/plans", h.ListPlans)
	router.POST("/plans", h.CreatePlan)
	router.GET("/plans/:id", h.GetPlan)
	router.DELETE("/plans/:id", h.DeletePlan)

	router.POST("/plans/:id/majors", h.AddMajor)
	router.DELETE("/plans/:id/majors", h.RemoveMajor)

	router.PUT("/plans/:id/selections", h.Select)
	router.DELETE("/plans/:id/selections/:courseId", h.Unselect)
	router.POST("/plans/:id/cells/:cellId/toggle", h.ToggleOption)
	router.GET("/plans/:id/smart-picks", h.SmartPicks)

	router.GET("/plans/:id/export", h.Export)
	router.POST("/plans/:id/share", h.Share)
	router.POST("/plans/:id/review", h.Review)
}

func (h *Handler) ListColleges(c *gin.Context) {
	dir, err := h.svc.Colleges(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dir)
}

type planSummary struct {
	ID        string `json:"id"`
	FromID    int    `json:"fromId"`
	FromName  string `json:"fromName"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func toSummary(p sqlite.Plan) planSummary {
	return planSummary{
		ID:        p.ID,
		FromID:    p.FromID,
		FromName:  p.FromName,
		CreatedAt: p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt: p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.svc.ListPlans()
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]planSummary, 0, len(plans))
	for _, p := range plans {
		items = append(items, toSummary(p))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type createPlanRequest struct {
	FromID int `json:"fromId" binding:"required"`
}

func (h *Handler) CreatePlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	p, err := h.svc.CreatePlan(c.Request.Context(), req.FromID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSummary(p))
}

func (h *Handler) GetPlan(c *gin.Context) {
	r, err := h.svc.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reportResponse(r))
}

func (h *Handler) DeletePlan(c *gin.Context) {
	if err := h.svc.DeletePlan(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type majorRequest struct {
	SchoolID int    `json:"schoolId" form:"schoolId" binding:"required"`
	Major    string `json:"major" form:"major" binding:"required"`
}

func (h *Handler) AddMajor(c *gin.Context) {
	var req majorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.svc.AddMajor(c.Request.Context(), c.Param("id"), req.SchoolID, req.Major); err != nil {
		h.fail(c, err)
		return
	}
	h.GetPlan(c)
}

// RemoveMajor takes the major as query parameters since names may contain
// slashes.
func (h *Handler) RemoveMajor(c *gin.Context) {
	var req majorRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "schoolId and major are required"})
		return
	}
	if err := h.svc.RemoveMajor(c.Param("id"), req.SchoolID, req.Major); err != nil {
		h.fail(c, err)
		return
	}
	h.GetPlan(c)
}

// selectRequest carries either a full course or just the id of a course the
// plan's majors articulate.
type selectRequest struct {
	CourseID   int           `json:"courseId"`
	Course     domain.Course `json:"course"`
	RequiredBy []string      `json:"requiredBy"`
}

func (h *Handler) Select(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Course.ID == 0 && req.CourseID == 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "courseId or course is required"})
		return
	}
	var r plan.Report
	var err error
	if req.Course.ID != 0 {
		r, err = h.svc.Select(c.Request.Context(), c.Param("id"), req.Course, req.RequiredBy...)
	} else {
		r, err = h.svc.SelectByID(c.Request.Context(), c.Param("id"), req.CourseID)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reportResponse(r))
}

func (h *Handler) Unselect(c *gin.Context) {
	courseID, err := strconv.Atoi(c.Param("courseId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	r, err := h.svc.Unselect(c.Request.Context(), c.Param("id"), courseID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reportResponse(r))
}

type toggleRequest struct {
	Option *int `json:"option" binding:"required"`
}

func (h *Handler) ToggleOption(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "option is required"})
		return
	}
	selected, r, err := h.svc.ToggleOption(c.Request.Context(), c.Param("id"), c.Param("cellId"), *req.Option)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": selected, "plan": reportResponse(r)})
}

func (h *Handler) SmartPicks(c *gin.Context) {
	picked, err := h.svc.SmartPick(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cells": picked})
}

func (h *Handler) Export(c *gin.Context) {
	r, err := h.svc.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	var contentType, ext string
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		contentType, ext = "text/csv; charset=utf-8", "csv"
		err = export.WriteCSV(&buf, r)
	case "xlsx":
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
		err = export.WriteXLSX(&buf, r)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(r, ext)+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) Share(c *gin.Context) {
	if h.sharer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "slack sharing is not configured"})
		return
	}
	r, err := h.svc.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, r); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.sharer.SharePlan(c.Request.Context(), r, buf.Bytes(), export.Filename(r, "csv")); err != nil {
		h.logger.Error("share plan failed", zap.String("plan_id", r.PlanID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shared": true})
}

func (h *Handler) Review(c *gin.Context) {
	if h.reviewer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": llm.ErrNotConfigured.Error()})
		return
	}
	r, err := h.svc.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	review, usage, err := h.reviewer.Review(c.Request.Context(), r)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"review":     review,
		"text":       llm.Format(review),
		"disclaimer": llm.Disclaimer,
		"tokens":     usage.TotalTokens(),
	})
}

type planResponse struct {
	plan.Report
	Complete    bool `json:"complete"`
	Outstanding int  `json:"outstanding"`
}

func reportResponse(r plan.Report) planResponse {
	return planResponse{Report: r, Complete: r.Complete(), Outstanding: r.Outstanding()}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sqlite.ErrPlanNotFound), errors.Is(err, plan.ErrCellNotFound):
		status = http.StatusNotFound
	case errors.Is(err, planner.ErrUnknownCollege),
		errors.Is(err, planner.ErrUnknownSchool),
		errors.Is(err, planner.ErrUnknownMajor),
		errors.Is(err, plan.ErrOptionOutOfRange),
		errors.Is(err, plan.ErrNoArticulatedCell),
		errors.Is(err, plan.ErrCourseNotFound):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

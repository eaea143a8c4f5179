package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wesleyyjpark/506MBTAProject/models"
	"github.com/wesleyyjpark/506MBTAProject/services"
	"gorm.io/gorm"
)

type RunHandler struct {
	db    *gorm.DB
	cache Cache
}

func NewRunHandler(db *gorm.DB, cache Cache) *RunHandler {
	return &RunHandler{db: db, cache: cache}
}

// ListRuns pages through runs newest first. Reports are left out of the
// listing.
func (h *RunHandler) ListRuns(c *gin.Context) {
	p := ParsePagination(c)

	beforeStr := ""
	if p.Before != nil {
		beforeStr = p.Before.Format(time.RFC3339Nano)
	}
	cacheKey := fmt.Sprintf("runs:%d:%s", p.Limit, beforeStr)

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	query := h.db.Model(&models.ModelRun{}).
		Omit("report").
		Order("started_at DESC").
		Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("started_at < ?", *p.Before)
	}

	var rows []models.ModelRun
	if err := query.Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	hasMore := len(rows) > p.Limit
	if hasMore {
		rows = rows[:p.Limit]
	}
	var nextCursor string
	if hasMore && len(rows) > 0 {
		nextCursor = rows[len(rows)-1].StartedAt.Format(time.RFC3339Nano)
	}

	resp := CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore}
	go h.cache.Set(context.Background(), cacheKey, resp, 30*time.Second)

	c.JSON(http.StatusOK, resp)
}

func (h *RunHandler) GetRun(c *gin.Context) {
	var run models.ModelRun
	err := h.db.Where("run_id = ?", c.Param("id")).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// LatestRun serves the report the pipeline last published, falling back to
// the newest stored run.
func (h *RunHandler) LatestRun(c *gin.Context) {
	var report map[string]any
	if err := h.cache.Get(c.Request.Context(), services.LatestRunKey, &report); err == nil && report != nil {
		c.JSON(http.StatusOK, report)
		return
	}
	if h.db == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
		return
	}

	var run models.ModelRun
	err := h.db.Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}
	c.Data(http.StatusOK, "application/json", run.Report)
}

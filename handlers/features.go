package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wesleyyjpark/506MBTAProject/models"
	"gorm.io/gorm"
)

type FeatureHandler struct {
	db    *gorm.DB
	cache Cache
}

func NewFeatureHandler(db *gorm.DB, cache Cache) *FeatureHandler {
	return &FeatureHandler{db: db, cache: cache}
}

// ListFeatures pages through the stored daily feature rows, newest date
// first, optionally within start..end.
func (h *FeatureHandler) ListFeatures(c *gin.Context) {
	p := ParsePagination(c)
	r, err := ParseDateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}
	label := c.Query("label")

	beforeStr := ""
	if p.Before != nil {
		beforeStr = p.Before.Format(time.DateOnly)
	}
	cacheKey := fmt.Sprintf("features:%s:%s:%s:%d:%s", r.Start, r.End, label, p.Limit, beforeStr)

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	query := h.db.Model(&models.DailyFeature{}).Order("service_date DESC").Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("service_date < ?", p.Before.Format(time.DateOnly))
	}
	if r.Start.IsValid() {
		query = query.Where("service_date >= ?", r.Start.String())
	}
	if r.End.IsValid() {
		query = query.Where("service_date <= ?", r.End.String())
	}
	if label != "" {
		query = query.Where("label = ?", label)
	}

	var rows []models.DailyFeature
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
		nextCursor = rows[len(rows)-1].ServiceDate.Format(time.DateOnly)
	}

	resp := CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore}
	go h.cache.Set(context.Background(), cacheKey, resp, 5*time.Minute)

	c.JSON(http.StatusOK, resp)
}

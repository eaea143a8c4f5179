package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wesleyyjpark/506MBTAProject/models"
	"gorm.io/gorm"
)

type AlertHandler struct {
	db *gorm.DB
}

func NewAlertHandler(db *gorm.DB) *AlertHandler {
	return &AlertHandler{db: db}
}

// ListAlerts pages through ingested alerts, most recently received first.
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	p := ParsePagination(c)

	query := h.db.Model(&models.AlertRaw{}).Order("received_at DESC").Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("received_at < ?", *p.Before)
	}
	if routeID := c.Query("route_id"); routeID != "" {
		query = query.Where("route_id = ?", routeID)
	}

	var rows []models.AlertRaw
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
		nextCursor = rows[len(rows)-1].ReceivedAt.Format(time.RFC3339Nano)
	}
	c.JSON(http.StatusOK, CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore})
}

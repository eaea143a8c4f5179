package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wesleyyjpark/506MBTAProject/aggregate"
	"github.com/wesleyyjpark/506MBTAProject/services"
)

// ViewHandler serves the aggregate views the pipeline publishes with each
// run.
type ViewHandler struct {
	cache Cache
}

func NewViewHandler(cache Cache) *ViewHandler {
	return &ViewHandler{cache: cache}
}

func (h *ViewHandler) load(c *gin.Context) (*aggregate.Views, bool) {
	var v aggregate.Views
	if err := h.cache.Get(c.Request.Context(), services.LatestViewKey, &v); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no views published yet"})
		return nil, false
	}
	return &v, true
}

// GetPatterns serves ?by=month (default) or ?by=weekday.
func (h *ViewHandler) GetPatterns(c *gin.Context) {
	v, ok := h.load(c)
	if !ok {
		return
	}
	switch by := c.DefaultQuery("by", "month"); by {
	case "month":
		c.JSON(http.StatusOK, gin.H{"by": by, "rows": v.Monthly})
	case "weekday":
		c.JSON(http.StatusOK, gin.H{"by": by, "rows": v.Weekday})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "by must be month or weekday"})
	}
}

// GetHeatmap serves the station heatmap named by :name, either alerts or
// crowding.
func (h *ViewHandler) GetHeatmap(c *gin.Context) {
	v, ok := h.load(c)
	if !ok {
		return
	}
	var hm *aggregate.Heatmap
	switch c.Param("name") {
	case "alerts":
		hm = v.StationAlerts
	case "crowding":
		hm = v.Crowding
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown heatmap"})
		return
	}
	if hm == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "heatmap not available"})
		return
	}
	c.JSON(http.StatusOK, hm)
}

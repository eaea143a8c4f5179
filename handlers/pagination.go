package handlers

import (
	"context"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 50
	MaxLimit     = 366
)

// Cache is the read-through cache the handlers use.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type PaginationParams struct {
	Limit  int
	Before *time.Time
}

type CursorResponse struct {
	Data       any    `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ParsePagination reads limit and before. before accepts an RFC 3339
// timestamp or a plain date; invalid values are ignored.
func ParsePagination(c *gin.Context) PaginationParams {
	p := PaginationParams{Limit: DefaultLimit}

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			p.Limit = l
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if beforeStr := c.Query("before"); beforeStr != "" {
		if t, err := time.Parse(time.RFC3339Nano, beforeStr); err == nil {
			p.Before = &t
		} else if d, err := civil.ParseDate(beforeStr); err == nil {
			t := d.In(time.UTC)
			p.Before = &t
		}
	}

	return p
}

// DateRange is an inclusive service-date filter; zero ends are open.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

// ParseDateRange reads start and end as YYYY-MM-DD.
func ParseDateRange(c *gin.Context) (DateRange, error) {
	var r DateRange
	var err error
	if s := c.Query("start"); s != "" {
		if r.Start, err = civil.ParseDate(s); err != nil {
			return r, err
		}
	}
	if s := c.Query("end"); s != "" {
		if r.End, err = civil.ParseDate(s); err != nil {
			return r, err
		}
	}
	return r, nil
}

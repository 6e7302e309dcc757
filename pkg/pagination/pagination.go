package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1

	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Params holds validated page/limit query parameters
type Params struct {
	Page  int
	Limit int
}

// Meta describes the position of a returned page
type Meta struct {
	Page       int    `json:"page,omitempty"`
	Limit      int    `json:"limit"`
	Total      *int64 `json:"total,omitempty"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Parse extracts page and limit, clamping them into range
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	if page < 1 {
		page = DefaultPage
	}
	return Params{Page: page, Limit: clamp(c.Query("limit"), DefaultLimit, MaxLimit)}
}

// ParseCursor reads cursor and limit for keyset paged endpoints
func ParseCursor(c *gin.Context) (string, int) {
	return c.Query("cursor"), clamp(c.Query("limit"), DefaultHistoryLimit, MaxHistoryLimit)
}

func clamp(raw string, fallback, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < MinLimit {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}

func (p Params) Meta(total int64) Meta {
	return Meta{Page: p.Page, Limit: p.Limit, Total: &total}
}

func CursorMeta(limit int, next string) Meta {
	return Meta{Limit: limit, NextCursor: next}
}

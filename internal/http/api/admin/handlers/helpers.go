package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// parseIDParam parses a numeric path parameter.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// parsePagination reads page/page_size query parameters with sane bounds.
func parsePagination(c *gin.Context) (offset, limit int) {
	page, errPage := strconv.Atoi(c.DefaultQuery("page", "1"))
	if errPage != nil || page < 1 {
		page = 1
	}
	size, errSize := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if errSize != nil || size < 1 {
		size = 50
	}
	if size > 200 {
		size = 200
	}
	return (page - 1) * size, size
}

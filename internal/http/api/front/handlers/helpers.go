package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// getUserID extracts the authenticated user id from the gin context.
func getUserID(c *gin.Context) uint64 {
	v, exists := c.Get("userID")
	if !exists {
		return 0
	}
	id, ok := v.(uint64)
	if !ok {
		return 0
	}
	return id
}

// parseIDParam parses a numeric path parameter.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

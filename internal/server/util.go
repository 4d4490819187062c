package server

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
)

// maxWorkspaceIDLen bounds workspace identifiers accepted over HTTP.
const maxWorkspaceIDLen = 256

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// isValidWorkspaceID accepts any printable identifier up to maxWorkspaceIDLen
// bytes. Control characters are rejected so IDs stay safe to log and export.
func isValidWorkspaceID(s string) bool {
	if len(s) > maxWorkspaceIDLen {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return false
		}
	}
	return true
}

// parseIndex parses a non-negative window or tab index from a path or query value.
func parseIndex(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

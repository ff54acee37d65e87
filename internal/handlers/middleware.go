package handlers

import (
	"net/http"
	"strings"

	coopdoor "coop_door"

	"github.com/gin-gonic/gin"
)

// operatorIDKey holds the authenticated operator's user id in the gin context.
const operatorIDKey = "operatorId"

const (
	errMissingAuth  = "missing Authorization header"
	errAuthFormat   = "invalid Authorization header format"
	errInvalidToken = "invalid or expired token"
	errInvalidCreds = "invalid credentials"
)

// operatorMiddleware guards the door API: only a valid bearer token may
// read status or command the door.
func (h *Handler) operatorMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		h.abortUnauthorized(c, errMissingAuth, nil)
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		h.abortUnauthorized(c, errAuthFormat, nil)
		return
	}

	operatorID, err := h.services.ParseToken(parts[1])
	if err != nil {
		h.abortUnauthorized(c, errInvalidToken, err)
		return
	}

	c.Set(operatorIDKey, operatorID)
	c.Next()
}

func (h *Handler) abortUnauthorized(c *gin.Context, msg string, err error) {
	if h.log != nil {
		h.log.Infow("api_unauthorized", "path", c.FullPath(), "reason", msg, "err", err)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, coopdoor.ErrorResponse{Error: msg})
}

// operatorID returns the id set by operatorMiddleware, or 0 outside it.
func operatorID(c *gin.Context) int {
	if id, ok := c.Get(operatorIDKey); ok {
		if n, ok := id.(int); ok {
			return n
		}
	}
	return 0
}

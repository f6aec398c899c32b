package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/baiirun/mesa/internal/apperr"
)

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// fail writes err as {"detail": ...}. Internal errors are logged and reported
// generically.
func fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logEntry(c).WithError(err).Error("request failed")
	}
	detail(c, status, apperr.Message(err))
}

// bind decodes a JSON body into dst.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func respondOK(c *gin.Context, extra gin.H) {
	body := gin.H{"ok": true}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

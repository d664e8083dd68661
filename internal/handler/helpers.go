package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// publicBaseURL returns the configured base URL, or https://<Host>/ of the
// current request when none is configured. The Host fallback is client
// controlled, so release mode refuses to start without server.base_url.
func publicBaseURL(c *gin.Context, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/") + "/"
	}
	return "https://" + c.Request.Host + "/"
}

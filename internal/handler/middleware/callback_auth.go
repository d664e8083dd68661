package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"verifiedid/issuer/internal/service"
	"verifiedid/issuer/pkg/response"
)

// HeaderAPIKey carries the shared secret on issuance callbacks.
const HeaderAPIKey = "api-key"

// CallbackAuth rejects callbacks whose api-key header does not match before
// the body is read.
func CallbackAuth(auth *service.CallbackAuthenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.Authenticate(c.GetHeader(HeaderAPIKey)) {
			logger.Warn("callback rejected",
				zap.Error(service.ErrUnauthorized),
				zap.String("client_ip", c.ClientIP()),
				zap.String("request_id", c.GetString(ContextKeyRequestID)),
			)
			response.Unauthorized(c, service.ErrUnauthorized.Error())
			c.Abort()
			return
		}
		c.Next()
	}
}

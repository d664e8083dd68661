package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"verifiedid/issuer/internal/config"
	"verifiedid/issuer/internal/handler/middleware"
	"verifiedid/issuer/internal/service"
	"verifiedid/issuer/pkg/response"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	callbackAuth *service.CallbackAuthenticator,
	issuerHandler *IssuerHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))

	r.GET("/healthz", func(c *gin.Context) {
		response.JSON(c, gin.H{"status": "ok"})
	})

	issuer := r.Group("/api/issuer")
	{
		issuer.GET("/issuance-request", issuerHandler.CreateIssuance)
		issuer.GET("/issuance-response", issuerHandler.Status)
		issuer.GET("/get-manifest", issuerHandler.Manifest)
	}
	r.POST(service.CallbackPath, middleware.CallbackAuth(callbackAuth, logger), issuerHandler.Callback)

	return r
}

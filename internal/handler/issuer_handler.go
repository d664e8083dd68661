package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"verifiedid/issuer/internal/handler/middleware"
	"verifiedid/issuer/internal/model"
	"verifiedid/issuer/internal/service"
	"verifiedid/issuer/pkg/response"
)

type IssuerHandler struct {
	issuance  service.IssuanceService
	sessions  service.SessionService
	manifests service.ManifestService
	baseURL   string
	logger    *zap.Logger
}

// NewIssuerHandler wires the issuer endpoints. baseURL may be empty, in which
// case callback URLs are derived from the Host of each request.
func NewIssuerHandler(
	issuance service.IssuanceService,
	sessions service.SessionService,
	manifests service.ManifestService,
	baseURL string,
	logger *zap.Logger,
) *IssuerHandler {
	return &IssuerHandler{
		issuance:  issuance,
		sessions:  sessions,
		manifests: manifests,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// CreateIssuance starts an issuance and returns the upstream response with
// the correlation id and, for desktop browsers, the pin.
func (h *IssuerHandler) CreateIssuance(c *gin.Context) {
	resp, err := h.issuance.CreateIssuance(c.Request.Context(), service.ClientContext{
		BaseURL:   publicBaseURL(c, h.baseURL),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.logger.Error("create issuance failed", zap.Error(err), zap.String("request_id", requestID(c)))
		response.TechnicalError(c)
		return
	}
	response.JSON(c, resp)
}

func (h *IssuerHandler) Callback(c *gin.Context) {
	// Missing fields are left empty and classified by ApplyCallback.
	var event model.CallbackEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		h.logger.Warn("malformed callback body", zap.Error(err), zap.String("request_id", requestID(c)))
		response.BadRequest(c, "invalid request")
		return
	}

	log := h.logger.With(
		zap.String("state", event.State),
		zap.String("request_status", string(event.RequestStatus)),
		zap.String("request_id", requestID(c)),
	)
	err := h.sessions.ApplyCallback(c.Request.Context(), event.State, event.RequestStatus, event.Detail())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownCorrelation):
			log.Warn("callback for unknown state")
			response.BadRequest(c, "Unknown state")
		case errors.Is(err, service.ErrUnsupportedStatus):
			log.Warn("callback with unsupported status")
			response.BadRequest(c, "Unsupported requestStatus")
		case errors.Is(err, service.ErrStatusRegression):
			log.Warn("callback would move status backwards", zap.Error(err))
			response.Conflict(c, err.Error())
		default:
			log.Error("apply callback failed", zap.Error(err))
			response.TechnicalError(c)
		}
		return
	}
	log.Info("callback applied")
	response.JSON(c, gin.H{})
}

// Status answers the browser's poll. An unknown or expired id is not an
// error: the UI keeps polling until the session shows up or it gives up.
func (h *IssuerHandler) Status(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		response.BadRequest(c, "id is required")
		return
	}
	session, err := h.sessions.Status(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("read session failed", zap.Error(err), zap.String("request_id", requestID(c)))
		response.TechnicalError(c)
		return
	}
	if session == nil {
		response.NoContent(c)
		return
	}
	response.JSON(c, session)
}

func (h *IssuerHandler) Manifest(c *gin.Context) {
	doc, err := h.manifests.Manifest(c.Request.Context())
	if err != nil {
		h.logger.Error("get manifest failed", zap.Error(err), zap.String("request_id", requestID(c)))
		response.TechnicalError(c)
		return
	}
	response.Raw(c, doc)
}

func requestID(c *gin.Context) string {
	return c.GetString(middleware.ContextKeyRequestID)
}

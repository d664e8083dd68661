package response

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// TechnicalErrorMessage is the only detail a caller sees when something
// behind the issuer broke.
const TechnicalErrorMessage = "technical error"

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Raw writes an already encoded JSON document without wrapping it.
func Raw(c *gin.Context, doc json.RawMessage) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

// JSON writes v as a bare document, for bodies the browser UI reads field by field.
func JSON(c *gin.Context, v interface{}) {
	c.JSON(http.StatusOK, v)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, APIResponse{Code: httpStatus, Message: message})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

func TechnicalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, TechnicalErrorMessage)
}

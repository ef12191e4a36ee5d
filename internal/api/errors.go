package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/logging"
	"okx-scanner/internal/security"
)

// writeError maps a domain error onto a status code and a JSON body.
func writeError(c *gin.Context, err error) {
	var (
		ve *errors.ValidationError
		ue *errors.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "field": ve.Field, "detail": ve.Message})
	case errors.Is(err, errors.ErrUnknownPolicy), errors.Is(err, errors.ErrArtifactNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "detail": err.Error()})
	case errors.As(err, &ue):
		code := ue.Code
		if code == "" {
			code = "-1"
		}
		c.JSON(http.StatusBadGateway, gin.H{"code": code, "error": "upstream_error", "detail": security.SanitizeText(ue.Error())})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "timeout", "detail": err.Error()})
	default:
		logger := logging.FromContext(c.Request.Context())
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": "-2", "error": "server_exception", "detail": security.SanitizeText(err.Error())})
	}
}

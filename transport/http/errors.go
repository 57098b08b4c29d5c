package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
	"go.uber.org/zap"
)

var statusByCode = map[core.Code]int{
	core.CodeRateLimited:              http.StatusTooManyRequests,
	core.CodeChallengeNotFound:        http.StatusUnauthorized,
	core.CodeChallengeExpired:         http.StatusUnauthorized,
	core.CodeChallengeAlreadyConsumed: http.StatusUnauthorized,
	core.CodeSignatureInvalid:         http.StatusUnauthorized,
	core.CodeAssertionMalformed:       http.StatusUnauthorized,
	core.CodeAssertionExpired:         http.StatusUnauthorized,
	core.CodeAssertionRevoked:         http.StatusUnauthorized,
	core.CodeRefreshReuseDetected:     http.StatusUnauthorized,
	core.CodeInvalidRequest:           http.StatusBadRequest,
	core.CodeInvalidAddress:           http.StatusBadRequest,
	core.CodeDomainMismatch:           http.StatusBadRequest,
	core.CodeUnsupportedChain:         http.StatusBadRequest,
}

type errorBody struct {
	Code    core.Code `json:"code"`
	Message string    `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// abortWithError writes the error envelope for err and stops the chain
func (h *AuthHandlers) abortWithError(c *gin.Context, err error) {
	code := core.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	if status == http.StatusTooManyRequests && h.retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
	}

	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{
		Code:    code,
		Message: core.MessageOf(err),
	}})
}

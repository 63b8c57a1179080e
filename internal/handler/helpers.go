package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/clavisedu/ragline/internal/middleware"
	"github.com/clavisedu/ragline/internal/pkg/errcode"
	appErr "github.com/clavisedu/ragline/internal/pkg/errors"
	"github.com/clavisedu/ragline/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrProvider):
		response.Error(c, errcode.ErrProviderUnavailable, "ai provider unavailable")
	case errors.Is(err, appErr.ErrStore):
		response.Error(c, errcode.ErrStoreUnavailable, "store unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

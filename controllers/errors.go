package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/services"
	"go.uber.org/zap"
)

var errorCodes = []struct {
	kind   error
	status int
	code   string
}{
	{services.ErrValidation, http.StatusBadRequest, "validation_error"},
	{services.ErrConfiguration, http.StatusBadRequest, "configuration_error"},
	{services.ErrForbidden, http.StatusForbidden, "forbidden"},
	{services.ErrNotFound, http.StatusNotFound, "not_found"},
	{services.ErrBuildInProgress, http.StatusConflict, "build_in_progress"},
	{services.ErrKeyExists, http.StatusConflict, "key_exists"},
	{services.ErrNoSuccessfulBuild, http.StatusPreconditionFailed, "no_successful_build"},
	{services.ErrPrecondition, http.StatusPreconditionFailed, "precondition_failed"},
	{services.ErrUnsupportedOperation, http.StatusNotImplemented, "unsupported_operation"},
	{services.ErrInfrastructure, http.StatusBadGateway, "infrastructure_error"},
}

// respondError writes the error body for err and logs unexpected failures
func respondError(ctx *gin.Context, err error) {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.kind) {
			if entry.status >= http.StatusInternalServerError {
				zap.S().Warnf("⚠️ %s %s: %v", ctx.Request.Method, ctx.FullPath(), err)
			}
			ctx.JSON(entry.status, dto.ErrorResponse{Detail: err.Error(), Code: entry.code})
			return
		}
	}

	zap.S().Errorf("❌ %s %s: %v", ctx.Request.Method, ctx.FullPath(), err)
	ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "Internal server error", Code: "internal_error"})
}

func respondBindError(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: "Invalid request body: " + err.Error(), Code: "validation_error"})
}

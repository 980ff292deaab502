package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/middleware"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/services"
	"github.com/portal-orchestrator/utils"
	"go.uber.org/zap"
)

// BuildController exposes the build pipeline
type BuildController struct {
	studentService *services.StudentService
	buildService   *services.BuildService
	streamInterval time.Duration
}

func NewBuildController(studentService *services.StudentService, buildService *services.BuildService) *BuildController {
	return &BuildController{
		studentService: studentService,
		buildService:   buildService,
		streamInterval: 2 * time.Second,
	}
}

// authorizedBuild loads a build and checks the caller may see its student
func (c *BuildController) authorizedBuild(ctx *gin.Context) (models.Build, bool) {
	build, err := c.buildService.GetBuild(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return build, false
	}
	if _, err := c.studentService.Get(middleware.ActorFrom(ctx), build.StudentID); err != nil {
		respondError(ctx, err)
		return build, false
	}
	return build, true
}

// ListBuilds handles GET /builds?student_id=&status=&limit=
func (c *BuildController) ListBuilds(ctx *gin.Context) {
	actor := middleware.ActorFrom(ctx)
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	filter := repositories.BuildFilter{
		StudentID: ctx.Query("student_id"),
		Status:    models.BuildStatus(ctx.Query("status")),
		Limit:     limit,
	}

	if filter.StudentID != "" {
		if _, err := c.studentService.Get(actor, filter.StudentID); err != nil {
			respondError(ctx, err)
			return
		}
	} else if !actor.IsAdmin() {
		students, err := c.studentService.List(actor)
		if err != nil {
			respondError(ctx, err)
			return
		}
		filter.StudentIDs = make([]string, 0, len(students))
		for _, student := range students {
			filter.StudentIDs = append(filter.StudentIDs, student.ID)
		}
	}

	builds, err := c.buildService.ListBuilds(filter)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, builds)
}

// TriggerBuild handles POST /builds/trigger. Portal clients post student_id and
// branch as query parameters with an empty body; a JSON body is accepted too and
// query parameters win over it.
func (c *BuildController) TriggerBuild(ctx *gin.Context) {
	var req dto.ManualBuildRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBindError(ctx, err)
		return
	}
	if studentID := ctx.Query("student_id"); studentID != "" {
		req.StudentID = studentID
	}
	if branch := ctx.Query("branch"); branch != "" {
		req.Branch = branch
	}
	if commitSHA := ctx.Query("commit_sha"); commitSHA != "" {
		req.CommitSHA = commitSHA
	}
	if req.StudentID == "" {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: "student_id is required", Code: "validation_error"})
		return
	}

	if _, err := c.studentService.Get(middleware.ActorFrom(ctx), req.StudentID); err != nil {
		respondError(ctx, err)
		return
	}

	build, err := c.buildService.TriggerBuild(ctx.Request.Context(), req.StudentID, req.TriggerBuildRequest)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, build)
}

// GetBuild handles GET /builds/:id
func (c *BuildController) GetBuild(ctx *gin.Context) {
	build, ok := c.authorizedBuild(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, build)
}

// CancelBuild handles POST /builds/:id/cancel
func (c *BuildController) CancelBuild(ctx *gin.Context) {
	build, ok := c.authorizedBuild(ctx)
	if !ok {
		return
	}

	build, err := c.buildService.CancelBuild(ctx.Request.Context(), build.ID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, build)
}

// SyncBuild handles POST /builds/:id/sync
func (c *BuildController) SyncBuild(ctx *gin.Context) {
	build, ok := c.authorizedBuild(ctx)
	if !ok {
		return
	}

	build, err := c.buildService.SyncBuild(ctx.Request.Context(), build.ID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, build)
}

// GetBuildLogs handles GET /builds/:id/logs
func (c *BuildController) GetBuildLogs(ctx *gin.Context) {
	build, ok := c.authorizedBuild(ctx)
	if !ok {
		return
	}

	logs, err := c.buildService.GetLogs(ctx.Request.Context(), build.ID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, logs)
}

// StreamBuildLogs handles GET /builds/:id/logs/stream. It emits a status
// event on every change and the collected logs until the build is terminal.
func (c *BuildController) StreamBuildLogs(ctx *gin.Context) {
	build, ok := c.authorizedBuild(ctx)
	if !ok {
		return
	}

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")
	ctx.Status(http.StatusOK)

	ticker := time.NewTicker(c.streamInterval)
	defer ticker.Stop()

	var lastStatus models.BuildStatus
	var lastContent string
	for {
		current, err := c.buildService.GetBuild(build.ID)
		if err != nil {
			_ = utils.WriteSSEMessage(ctx.Writer, "Stream ended: "+err.Error())
			ctx.Writer.Flush()
			return
		}

		if current.Status != lastStatus {
			lastStatus = current.Status
			if err := utils.WriteSSEEvent(ctx.Writer, "status", gin.H{"status": current.Status, "message": current.Message}); err != nil {
				zap.S().Debugf("log stream for build %s closed: %v", build.ID, err)
				return
			}
		}

		logs, err := c.buildService.GetLogs(ctx.Request.Context(), current.ID)
		if err == nil && logs.Content != lastContent {
			lastContent = logs.Content
			_ = utils.WriteSSEEvent(ctx.Writer, "logs", logs)
		}
		ctx.Writer.Flush()

		if current.Status.IsTerminal() {
			return
		}

		select {
		case <-ctx.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

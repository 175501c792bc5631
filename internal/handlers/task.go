package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/day-planner-api/internal/dto"
	apierrors "github.com/yukikurage/day-planner-api/internal/errors"
	"github.com/yukikurage/day-planner-api/internal/middleware"
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/schedule"
	"github.com/yukikurage/day-planner-api/internal/services"
	"github.com/yukikurage/day-planner-api/internal/utils"
)

// TaskHandler serves the day schedule and its task mutations.
type TaskHandler struct {
	scheduleService *services.ScheduleService
	log             logrus.FieldLogger
}

func NewTaskHandler(scheduleService *services.ScheduleService, log logrus.FieldLogger) *TaskHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TaskHandler{
		scheduleService: scheduleService,
		log:             log,
	}
}

// GetDay returns the tasks visible on :date, sorted and split into buckets
func (h *TaskHandler) GetDay(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	view, err := h.scheduleService.Day(c.Request.Context(), userID, c.Param("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToDayResponse(view))
}

// CreateTask adds a task at the top of :date
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequestWithDetails(c, "Invalid request body", err.Error())
		return
	}

	task, err := h.scheduleService.AddTask(c.Request.Context(), userID, c.Param("date"), req.ToTask())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task))
}

// UpdateTask merges the given fields into a task
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequestWithDetails(c, "Invalid request body", err.Error())
		return
	}

	task, err := h.scheduleService.UpdateTask(c.Request.Context(), userID, c.Param("date"), c.Param("id"), req.ToPatch())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// ToggleTask flips the completed flag of a task
func (h *TaskHandler) ToggleTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	task, err := h.scheduleService.ToggleTask(c.Request.Context(), userID, c.Param("date"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// DeleteTask removes a task
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.scheduleService.DeleteTask(c.Request.Context(), userID, c.Param("date"), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// ReorderTasks sets the manual order of :date
func (h *TaskHandler) ReorderTasks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequestWithDetails(c, "Invalid request body", err.Error())
		return
	}

	tasks, err := h.scheduleService.ReorderTasks(c.Request.Context(), userID, c.Param("date"), req.TaskIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": dto.ToTaskDTOs(tasks),
	})
}

// CalendarLink returns a Google Calendar link and event payload for a task
func (h *TaskHandler) CalendarLink(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	link, event, err := h.scheduleService.CalendarLink(c.Request.Context(), userID, c.Param("date"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CalendarLinkResponse{URL: link, Event: event})
}

// DraftTasks uses AI to turn free text into unsaved tasks for :date
func (h *TaskHandler) DraftTasks(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	var req dto.DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequestWithDetails(c, "Invalid request body", err.Error())
		return
	}

	drafts, err := h.scheduleService.DraftTasks(c.Request.Context(), c.Param("date"), req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": dto.ToTaskDTOs(drafts),
	})
}

// Sweep completes the caller's tasks of today whose time has passed
func (h *TaskHandler) Sweep(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	completed, err := h.scheduleService.Sweep(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if completed == nil {
		completed = []string{}
	}

	c.JSON(http.StatusOK, dto.SweepResponse{Completed: completed})
}

// ListTasks returns the caller's saved tasks, newest date first
func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	input := services.HistoryInput{
		UserID:   userID,
		DateFrom: c.Query("from"),
		DateTo:   c.Query("to"),
	}
	if raw := c.Query("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.InvalidFormat(c, "completed must be true or false")
			return
		}
		input.Completed = &completed
	}
	params := utils.GetPaginationParams(c)
	input.Page, input.PageSize = params.Page, params.Limit

	tasks, total, err := h.scheduleService.History(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TaskListResponse{
		Tasks:      dto.ToTaskDTOs(tasks),
		Pagination: utils.NewPaginationResponse(params, total),
	})
}

func requireUser(c *gin.Context) (string, bool) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return "", false
	}
	return userID, true
}

func (h *TaskHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidDate):
		apierrors.InvalidFormat(c, err.Error())
	case models.IsValidationError(err),
		errors.Is(err, services.ErrTextRequired),
		errors.Is(err, services.ErrAINoTasksGenerated),
		errors.Is(err, services.ErrAINoValidTasks):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrTaskNotFound), errors.Is(err, schedule.ErrTaskNotFound):
		apierrors.NotFound(c, "Task not found")
	case errors.Is(err, services.ErrAIServiceNotConfigured):
		apierrors.NotImplemented(c, err.Error())
	case errors.Is(err, schedule.ErrRemoteWrite):
		h.log.WithError(err).Warn("task write failed")
		apierrors.ServiceUnavailable(c, "Task storage is unavailable, the change was not saved")
	case errors.Is(err, schedule.ErrRemoteRead):
		h.log.WithError(err).Warn("task read failed")
		apierrors.ServiceUnavailable(c, "Task storage is unavailable")
	default:
		h.log.WithError(err).Error("request failed")
		apierrors.InternalError(c, "")
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/day-planner-api/internal/constants"
	"github.com/yukikurage/day-planner-api/internal/dto"
	"github.com/yukikurage/day-planner-api/internal/middleware"
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/repository"
	"github.com/yukikurage/day-planner-api/internal/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Task{}))
	return db
}

// brokenRepository fails every write while reads go to the wrapped repository
type brokenRepository struct {
	repository.TaskRepository
}

var errStorageDown = errors.New("storage down")

func (r brokenRepository) Save(context.Context, string, string, *models.Task) (*models.Task, error) {
	return nil, errStorageDown
}

func (r brokenRepository) Delete(context.Context, string, string, string) error {
	return errStorageDown
}

type stubDrafter struct {
	tasks []services.GeneratedTask
}

func (s stubDrafter) DraftTasks(context.Context, string, string) ([]services.GeneratedTask, error) {
	return s.tasks, nil
}

// TaskHandlerTestSuite defines the test suite for TaskHandler
type TaskHandlerTestSuite struct {
	suite.Suite
	db      *gorm.DB
	clock   *clock.Mock
	service *services.ScheduleService
	handler *TaskHandler
	router  *gin.Engine
}

// SetupTest runs before each test
func (suite *TaskHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	suite.db = openTestDB(suite.T())
	suite.clock = clock.NewMock()
	suite.clock.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	suite.service = suite.newService(repository.NewTaskRepositoryWithClock(suite.db, suite.clock), stubDrafter{
		tasks: []services.GeneratedTask{{Title: "Call plumber", Time: "10:00"}},
	})
	suite.handler = NewTaskHandler(suite.service, quietLogger())
	suite.router = suite.newRouter("u1", suite.handler)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func (suite *TaskHandlerTestSuite) newService(repo repository.TaskRepository, drafter services.TaskDrafter) *services.ScheduleService {
	return services.NewScheduleService(repo, services.ScheduleOptions{
		Clock:    suite.clock,
		Location: time.UTC,
		Logger:   quietLogger(),
		Drafter:  drafter,
	})
}

// newRouter mounts the schedule routes with userID standing in for the session
func (suite *TaskHandlerTestSuite) newRouter(userID string, h *TaskHandler) *gin.Engine {
	r := gin.New()
	api := r.Group("/api")
	api.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set(constants.ContextKeyUserID, userID)
		}
		c.Next()
	})

	api.GET("/tasks", h.ListTasks)
	api.POST("/tasks/sweep", h.Sweep)

	day := api.Group("/schedule/:date")
	day.Use(middleware.RequireDateKey())
	{
		day.GET("", h.GetDay)
		day.POST("/tasks", h.CreateTask)
		day.PATCH("/tasks/:id", h.UpdateTask)
		day.DELETE("/tasks/:id", h.DeleteTask)
		day.POST("/tasks/:id/toggle", h.ToggleTask)
		day.GET("/tasks/:id/calendar", h.CalendarLink)
		day.PUT("/order", h.ReorderTasks)
		day.POST("/drafts", h.DraftTasks)
	}
	return r
}

func (suite *TaskHandlerTestSuite) do(router *gin.Engine, method, url string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func (suite *TaskHandlerTestSuite) create(date string, body map[string]interface{}) dto.TaskDTO {
	w := suite.do(suite.router, http.MethodPost, "/api/schedule/"+date+"/tasks", body)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var task dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &task))
	return task
}

func (suite *TaskHandlerTestSuite) day(date string) dto.DayResponse {
	w := suite.do(suite.router, http.MethodGet, "/api/schedule/"+date, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.DayResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (suite *TaskHandlerTestSuite) TestCreateTask_Success() {
	task := suite.create("2024-01-01", map[string]interface{}{
		"title":             "Design review",
		"time":              "14:00",
		"guest_emails_text": "a@example.com, B@example.com",
	})

	assert.NotEmpty(suite.T(), task.ID)
	assert.Equal(suite.T(), "2024-01-01", task.StartDate)
	assert.Equal(suite.T(), "15:00", task.EndTime)
	assert.Equal(suite.T(), []string{"a@example.com", "B@example.com"}, task.GuestEmails)
	suite.Require().NotNil(task.Order)
	assert.Equal(suite.T(), 0, *task.Order)
}

func (suite *TaskHandlerTestSuite) TestCreateTask_ValidationErrors() {
	w := suite.do(suite.router, http.MethodPost, "/api/schedule/2024-01-01/tasks", map[string]interface{}{
		"description": "no title",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.do(suite.router, http.MethodPost, "/api/schedule/2024-01-01/tasks", map[string]interface{}{
		"title": "Bad time",
		"time":  "25:00",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.do(suite.router, http.MethodPost, "/api/schedule/01-01-2024/tasks", map[string]interface{}{
		"title": "Bad date",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "INVALID_FORMAT")
}

func (suite *TaskHandlerTestSuite) TestGetDay_Buckets() {
	suite.create("2024-01-01", map[string]interface{}{"title": "Breakfast", "time": "08:00"})
	lunch := suite.create("2024-01-01", map[string]interface{}{"title": "Lunch", "time": "11:30", "end_time": "12:30"})
	dinner := suite.create("2024-01-01", map[string]interface{}{"title": "Dinner", "time": "19:00"})

	resp := suite.day("2024-01-01")
	assert.True(suite.T(), resp.IsToday)
	assert.Len(suite.T(), resp.Tasks, 3)
	suite.Require().Len(resp.Buckets.WorkedOn, 1)
	assert.Equal(suite.T(), lunch.ID, resp.Buckets.WorkedOn[0].ID)
	assert.Len(suite.T(), resp.Buckets.Ended, 1)
	assert.Len(suite.T(), resp.Buckets.WillStart, 1)
	assert.Equal(suite.T(), lunch.ID, resp.CurrentTaskID)
	assert.Equal(suite.T(), dinner.ID, resp.NextTaskID)

	other := suite.day("2024-01-02")
	assert.False(suite.T(), other.IsToday)
	assert.Empty(suite.T(), other.Tasks)
	assert.NotNil(suite.T(), other.Buckets.WorkedOn)
}

func (suite *TaskHandlerTestSuite) TestGetDay_MultiDayTaskVisibleOnEveryDay() {
	trip := suite.create("2024-01-02", map[string]interface{}{"title": "Trip", "duration_days": 3})

	for _, date := range []string{"2024-01-02", "2024-01-03", "2024-01-04"} {
		resp := suite.day(date)
		suite.Require().Len(resp.Tasks, 1, date)
		assert.Equal(suite.T(), trip.ID, resp.Tasks[0].ID)
	}
	assert.Empty(suite.T(), suite.day("2024-01-05").Tasks)
}

func (suite *TaskHandlerTestSuite) TestUpdateTask() {
	task := suite.create("2024-01-01", map[string]interface{}{"title": "Draft", "time": "09:00"})

	w := suite.do(suite.router, http.MethodPatch, "/api/schedule/2024-01-01/tasks/"+task.ID, map[string]interface{}{
		"title":    "Final",
		"end_time": "09:30",
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var updated dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(suite.T(), "Final", updated.Title)
	assert.Equal(suite.T(), "09:00", updated.Time)
	assert.Equal(suite.T(), "09:30", updated.EndTime)
}

func (suite *TaskHandlerTestSuite) TestUpdateTask_MovesToNewStartDate() {
	task := suite.create("2024-01-01", map[string]interface{}{"title": "Movable"})

	w := suite.do(suite.router, http.MethodPatch, "/api/schedule/2024-01-01/tasks/"+task.ID, map[string]interface{}{
		"start_date": "2024-01-04",
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	assert.Empty(suite.T(), suite.day("2024-01-01").Tasks)
	moved := suite.day("2024-01-04")
	suite.Require().Len(moved.Tasks, 1)
	assert.Equal(suite.T(), task.ID, moved.Tasks[0].ID)
}

func (suite *TaskHandlerTestSuite) TestUpdateTask_NotFound() {
	w := suite.do(suite.router, http.MethodPatch, "/api/schedule/2024-01-01/tasks/missing", map[string]interface{}{
		"title": "Nope",
	})
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *TaskHandlerTestSuite) TestToggleTask() {
	task := suite.create("2024-01-01", map[string]interface{}{"title": "Water plants", "time": "16:00"})

	w := suite.do(suite.router, http.MethodPost, "/api/schedule/2024-01-01/tasks/"+task.ID+"/toggle", nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var toggled dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &toggled))
	assert.True(suite.T(), toggled.Completed)

	resp := suite.day("2024-01-01")
	suite.Require().Len(resp.Buckets.Ended, 1)
	assert.Equal(suite.T(), task.ID, resp.Buckets.Ended[0].ID)
}

func (suite *TaskHandlerTestSuite) TestDeleteTask() {
	task := suite.create("2024-01-01", map[string]interface{}{"title": "Temporary"})

	w := suite.do(suite.router, http.MethodDelete, "/api/schedule/2024-01-01/tasks/"+task.ID, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	assert.Empty(suite.T(), suite.day("2024-01-01").Tasks)

	w = suite.do(suite.router, http.MethodDelete, "/api/schedule/2024-01-01/tasks/"+task.ID, nil)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *TaskHandlerTestSuite) TestReorderTasks() {
	a := suite.create("2024-01-01", map[string]interface{}{"title": "A"})
	b := suite.create("2024-01-01", map[string]interface{}{"title": "B"})
	c := suite.create("2024-01-01", map[string]interface{}{"title": "C"})

	w := suite.do(suite.router, http.MethodPut, "/api/schedule/2024-01-01/order", map[string]interface{}{
		"task_ids": []string{a.ID, b.ID, c.ID},
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Tasks []dto.TaskDTO `json:"tasks"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Require().Len(resp.Tasks, 3)
	assert.Equal(suite.T(), []string{a.ID, b.ID, c.ID}, []string{resp.Tasks[0].ID, resp.Tasks[1].ID, resp.Tasks[2].ID})

	day := suite.day("2024-01-01")
	assert.Equal(suite.T(), a.ID, day.Tasks[0].ID)

	w = suite.do(suite.router, http.MethodPut, "/api/schedule/2024-01-01/order", map[string]interface{}{})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *TaskHandlerTestSuite) TestCalendarLink() {
	task := suite.create("2024-01-01", map[string]interface{}{
		"title":        "Sync",
		"time":         "10:00",
		"end_time":     "10:45",
		"guest_emails": []string{"guest@example.com"},
	})

	w := suite.do(suite.router, http.MethodGet, "/api/schedule/2024-01-01/tasks/"+task.ID+"/calendar", nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		URL   string `json:"url"`
		Event struct {
			Summary   string `json:"summary"`
			Attendees []struct {
				Email string `json:"email"`
			} `json:"attendees"`
		} `json:"event"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(suite.T(), resp.URL, "https://calendar.google.com/calendar/u/0/r/eventedit?")
	assert.Contains(suite.T(), resp.URL, "add=guest%40example.com")
	assert.Equal(suite.T(), "Sync", resp.Event.Summary)
	suite.Require().Len(resp.Event.Attendees, 1)
	assert.Equal(suite.T(), "guest@example.com", resp.Event.Attendees[0].Email)
}

func (suite *TaskHandlerTestSuite) TestDraftTasks() {
	w := suite.do(suite.router, http.MethodPost, "/api/schedule/2024-01-03/drafts", map[string]interface{}{
		"text": "call the plumber in the morning",
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Tasks []dto.TaskDTO `json:"tasks"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Require().Len(resp.Tasks, 1)
	assert.Equal(suite.T(), "2024-01-03", resp.Tasks[0].StartDate)
	assert.Equal(suite.T(), "11:00", resp.Tasks[0].EndTime)
	assert.Empty(suite.T(), suite.day("2024-01-03").Tasks)
}

func (suite *TaskHandlerTestSuite) TestDraftTasks_NotConfigured() {
	service := suite.newService(repository.NewTaskRepositoryWithClock(suite.db, suite.clock), nil)
	router := suite.newRouter("u1", NewTaskHandler(service, quietLogger()))

	w := suite.do(router, http.MethodPost, "/api/schedule/2024-01-03/drafts", map[string]interface{}{
		"text": "anything",
	})
	assert.Equal(suite.T(), http.StatusNotImplemented, w.Code)
}

func (suite *TaskHandlerTestSuite) TestSweep() {
	passed := suite.create("2024-01-01", map[string]interface{}{"title": "Breakfast", "time": "08:00"})
	suite.create("2024-01-01", map[string]interface{}{"title": "Dinner", "time": "19:00"})

	w := suite.do(suite.router, http.MethodPost, "/api/tasks/sweep", nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.SweepResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(suite.T(), []string{passed.ID}, resp.Completed)

	w = suite.do(suite.router, http.MethodPost, "/api/tasks/sweep", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(suite.T(), resp.Completed)
	assert.NotNil(suite.T(), resp.Completed)
}

func (suite *TaskHandlerTestSuite) TestListTasks() {
	suite.create("2024-01-01", map[string]interface{}{"title": "One"})
	suite.create("2024-01-02", map[string]interface{}{"title": "Two"})
	done := suite.create("2024-01-03", map[string]interface{}{"title": "Three"})
	w := suite.do(suite.router, http.MethodPost, "/api/schedule/2024-01-03/tasks/"+done.ID+"/toggle", nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.do(suite.router, http.MethodGet, "/api/tasks?page=1&limit=2", nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.TaskListResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(suite.T(), resp.Tasks, 2)
	assert.Equal(suite.T(), int64(3), resp.Pagination.Total)
	assert.Equal(suite.T(), 2, resp.Pagination.TotalPages)
	assert.Equal(suite.T(), "Three", resp.Tasks[0].Title)

	w = suite.do(suite.router, http.MethodGet, "/api/tasks?completed=true", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Require().Len(resp.Tasks, 1)
	assert.Equal(suite.T(), done.ID, resp.Tasks[0].ID)

	w = suite.do(suite.router, http.MethodGet, "/api/tasks?completed=maybe", nil)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.do(suite.router, http.MethodGet, "/api/tasks?from=yesterday", nil)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *TaskHandlerTestSuite) TestStorageFailure_ReturnsServiceUnavailable() {
	service := suite.newService(brokenRepository{repository.NewTaskRepositoryWithClock(suite.db, suite.clock)}, nil)
	router := suite.newRouter("u1", NewTaskHandler(service, quietLogger()))

	w := suite.do(router, http.MethodPost, "/api/schedule/2024-01-01/tasks", map[string]interface{}{
		"title": "Never saved",
	})
	assert.Equal(suite.T(), http.StatusServiceUnavailable, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "SERVICE_UNAVAILABLE")

	w = suite.do(router, http.MethodGet, "/api/schedule/2024-01-01", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var resp dto.DayResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(suite.T(), resp.Tasks, "failed add is rolled back")
}

func (suite *TaskHandlerTestSuite) TestRequiresUser() {
	router := suite.newRouter("", suite.handler)

	w := suite.do(router, http.MethodGet, "/api/schedule/2024-01-01", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	w = suite.do(router, http.MethodGet, "/api/tasks", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
}

func (suite *TaskHandlerTestSuite) TestUsersAreIsolated() {
	suite.create("2024-01-01", map[string]interface{}{"title": "Private"})

	other := suite.newRouter("u2", suite.handler)
	w := suite.do(other, http.MethodGet, "/api/schedule/2024-01-01", nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	var resp dto.DayResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(suite.T(), resp.Tasks)
}

// TestTaskHandlerTestSuite runs the test suite
func TestTaskHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(TaskHandlerTestSuite))
}

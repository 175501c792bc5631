package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/repository"
	"github.com/yukikurage/day-planner-api/internal/schedule"
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
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Task{}))
	return db
}

type fakeDrafter struct {
	tasks []GeneratedTask
	err   error
}

func (f *fakeDrafter) DraftTasks(context.Context, string, string) ([]GeneratedTask, error) {
	return f.tasks, f.err
}

type ScheduleServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	clock   *clock.Mock
	drafter *fakeDrafter
	service *ScheduleService
	ctx     context.Context
}

func (suite *ScheduleServiceTestSuite) SetupTest() {
	suite.db = openTestDB(suite.T())
	suite.clock = clock.NewMock()
	suite.clock.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	suite.drafter = &fakeDrafter{}
	suite.ctx = context.Background()

	log := logrus.New()
	log.SetOutput(io.Discard)
	suite.service = NewScheduleService(repository.NewTaskRepository(suite.db), ScheduleOptions{
		Clock:    suite.clock,
		Location: time.UTC,
		Logger:   log,
		Drafter:  suite.drafter,
	})
}

func (suite *ScheduleServiceTestSuite) add(dateKey string, task models.Task) *models.Task {
	created, err := suite.service.AddTask(suite.ctx, "u1", dateKey, task)
	suite.Require().NoError(err)
	return created
}

func (suite *ScheduleServiceTestSuite) TestDay_ClassifiesToday() {
	suite.add("2024-01-01", models.Task{Title: "Standup", Time: "09:00"})
	suite.add("2024-01-01", models.Task{Title: "Deep work", Time: "11:00", EndTime: "13:00"})
	suite.add("2024-01-01", models.Task{Title: "Review", Time: "15:00"})

	view, err := suite.service.Day(suite.ctx, "u1", "2024-01-01")
	suite.Require().NoError(err)
	assert.True(suite.T(), view.IsToday)
	assert.Len(suite.T(), view.Tasks, 3)
	suite.Require().Len(view.Buckets.WorkedOn, 1)
	assert.Equal(suite.T(), "Deep work", view.Buckets.WorkedOn[0].Title)
	assert.Len(suite.T(), view.Buckets.Ended, 1)
	assert.Len(suite.T(), view.Buckets.WillStart, 1)
	suite.Require().NotNil(view.Highlights)
	suite.Require().NotNil(view.Highlights.Next)
	assert.Equal(suite.T(), "Review", view.Highlights.Next.Title)

	other, err := suite.service.Day(suite.ctx, "u1", "2024-01-02")
	suite.Require().NoError(err)
	assert.False(suite.T(), other.IsToday)
	assert.Nil(suite.T(), other.Highlights)
}

func (suite *ScheduleServiceTestSuite) TestDay_InvalidDate() {
	_, err := suite.service.Day(suite.ctx, "u1", "2024-13-01")
	assert.ErrorIs(suite.T(), err, ErrInvalidDate)
}

func (suite *ScheduleServiceTestSuite) TestStoreFor_LoadsPersistedTasks() {
	suite.add("2024-01-01", models.Task{Title: "Persisted"})

	suite.service.Forget("u1")
	view, err := suite.service.Day(suite.ctx, "u1", "2024-01-01")
	suite.Require().NoError(err)
	suite.Require().Len(view.Tasks, 1)
	assert.Equal(suite.T(), "Persisted", view.Tasks[0].Title)
}

func (suite *ScheduleServiceTestSuite) TestMutationsThroughMultiDayView() {
	trip := suite.add("2024-01-01", models.Task{Title: "Trip", DurationDays: 3})

	toggled, err := suite.service.ToggleTask(suite.ctx, "u1", "2024-01-02", trip.ID)
	suite.Require().NoError(err)
	assert.True(suite.T(), toggled.Completed)

	title := "Long trip"
	updated, err := suite.service.UpdateTask(suite.ctx, "u1", "2024-01-03", trip.ID, schedule.TaskPatch{Title: &title})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), "Long trip", updated.Title)

	suite.Require().NoError(suite.service.DeleteTask(suite.ctx, "u1", "2024-01-02", trip.ID))
	err = suite.service.DeleteTask(suite.ctx, "u1", "2024-01-02", trip.ID)
	assert.ErrorIs(suite.T(), err, ErrTaskNotFound)
}

func (suite *ScheduleServiceTestSuite) TestReorderTasks() {
	a := suite.add("2024-01-01", models.Task{Title: "A"})
	b := suite.add("2024-01-01", models.Task{Title: "B"})

	tasks, err := suite.service.ReorderTasks(suite.ctx, "u1", "2024-01-01", []string{a.ID, b.ID})
	suite.Require().NoError(err)
	suite.Require().Len(tasks, 2)
	assert.Equal(suite.T(), a.ID, tasks[0].ID)

	history, total, err := suite.service.History(suite.ctx, HistoryInput{UserID: "u1", Page: 1, PageSize: 10})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(2), total)
	assert.Equal(suite.T(), a.ID, history[0].ID)
}

func (suite *ScheduleServiceTestSuite) TestCalendarLink() {
	task := suite.add("2024-01-01", models.Task{Title: "Sync", Time: "10:00", EndTime: "10:45"})

	link, event, err := suite.service.CalendarLink(suite.ctx, "u1", "2024-01-01", task.ID)
	suite.Require().NoError(err)
	assert.Contains(suite.T(), link, "dates=20240101T100000%2F20240101T104500")
	assert.Equal(suite.T(), "2024-01-01T10:45:00Z", event.End.DateTime)

	_, _, err = suite.service.CalendarLink(suite.ctx, "u1", "2024-01-01", "missing")
	assert.ErrorIs(suite.T(), err, ErrTaskNotFound)
}

func (suite *ScheduleServiceTestSuite) TestSweep() {
	passed := suite.add("2024-01-01", models.Task{Title: "Breakfast", Time: "08:00"})
	suite.add("2024-01-01", models.Task{Title: "Dinner", Time: "19:00"})

	completed, err := suite.service.Sweep(suite.ctx, "u1")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), []string{passed.ID}, completed)

	suite.clock.Add(8*time.Hour + time.Minute)
	suite.service.SweepAll(suite.ctx)

	completedOnly := true
	done, total, err := suite.service.History(suite.ctx, HistoryInput{UserID: "u1", Completed: &completedOnly})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(2), total)
	assert.Len(suite.T(), done, 2)
}

func (suite *ScheduleServiceTestSuite) TestHistory_InvalidRange() {
	_, _, err := suite.service.History(suite.ctx, HistoryInput{UserID: "u1", DateFrom: "yesterday"})
	assert.ErrorIs(suite.T(), err, ErrInvalidDate)
}

func (suite *ScheduleServiceTestSuite) TestDraftTasks() {
	suite.drafter.tasks = []GeneratedTask{
		{Title: "Call plumber", Time: "10:00"},
		{Title: "Conference", Time: "09:00", EndTime: "17:00", DurationDays: 2},
		{Title: "  "},
		{Title: "Bad time", Time: "noon"},
	}

	drafts, err := suite.service.DraftTasks(suite.ctx, "2024-01-05", "call the plumber, conference")
	suite.Require().NoError(err)
	suite.Require().Len(drafts, 3)
	assert.Equal(suite.T(), "11:00", drafts[0].EndTime)
	assert.Equal(suite.T(), "2024-01-06", drafts[1].EndDate)
	assert.Empty(suite.T(), drafts[2].Time)
	assert.NotEmpty(suite.T(), drafts[0].ID)

	view, err := suite.service.Day(suite.ctx, "u1", "2024-01-05")
	suite.Require().NoError(err)
	assert.Empty(suite.T(), view.Tasks, "drafts are not saved")
}

func (suite *ScheduleServiceTestSuite) TestDraftTasks_Errors() {
	_, err := suite.service.DraftTasks(suite.ctx, "2024-01-05", " ")
	assert.ErrorIs(suite.T(), err, ErrTextRequired)

	_, err = suite.service.DraftTasks(suite.ctx, "2024-01-05", "nothing")
	assert.ErrorIs(suite.T(), err, ErrAINoTasksGenerated)

	suite.drafter.tasks = []GeneratedTask{{Title: ""}}
	_, err = suite.service.DraftTasks(suite.ctx, "2024-01-05", "nothing useful")
	assert.ErrorIs(suite.T(), err, ErrAINoValidTasks)

	suite.drafter.err = errors.New("rate limited")
	_, err = suite.service.DraftTasks(suite.ctx, "2024-01-05", "anything")
	assert.Error(suite.T(), err)

	noAI := NewScheduleService(repository.NewTaskRepository(suite.db), ScheduleOptions{})
	_, err = noAI.DraftTasks(suite.ctx, "2024-01-05", "anything")
	assert.ErrorIs(suite.T(), err, ErrAIServiceNotConfigured)
}

func TestScheduleServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ScheduleServiceTestSuite))
}

func TestAuthService(t *testing.T) {
	db := openTestDB(t)
	service := NewAuthService(repository.NewUserRepository(db))

	user, err := service.Signup(SignupInput{Username: " alice ", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "password123", user.PasswordHash)

	_, err = service.Signup(SignupInput{Username: "alice", Password: "password123"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	_, err = service.Signup(SignupInput{Username: "bob", Password: "short"})
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	_, err = service.Signup(SignupInput{Username: "", Password: "password123"})
	assert.ErrorIs(t, err, ErrUsernameRequired)
	_, err = service.Signup(SignupInput{Username: "al", Password: "password123"})
	assert.ErrorIs(t, err, ErrUsernameTooShort)

	loggedIn, err := service.Login(LoginInput{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	_, err = service.Login(LoginInput{Username: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = service.Login(LoginInput{Username: "nobody", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	found, err := service.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)
	_, err = service.GetUser("missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	byName, err := service.GetUserByUsername(" alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
	_, err = service.GetUserByUsername("nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

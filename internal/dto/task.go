package dto

import (
	"time"

	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/schedule"
	"github.com/yukikurage/day-planner-api/internal/services"
	"github.com/yukikurage/day-planner-api/internal/utils"
	"google.golang.org/api/calendar/v3"
)

// UserDTO represents a user in API responses
type UserDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// TaskDTO represents a task in API responses
type TaskDTO struct {
	ID           string                      `json:"id"`
	Title        string                      `json:"title"`
	Description  string                      `json:"description"`
	StartDate    string                      `json:"start_date"`
	EndDate      string                      `json:"end_date"`
	DurationDays int                         `json:"duration_days"`
	Time         string                      `json:"time"`
	EndTime      string                      `json:"end_time"`
	DailyTimes   map[string]models.TimeRange `json:"daily_times,omitempty"`
	Completed    bool                        `json:"completed"`
	MeetingType  models.MeetingType          `json:"meeting_type"`
	MeetingURL   string                      `json:"meeting_url,omitempty"`
	GuestEmails  []string                    `json:"guest_emails"`
	Order        *int                        `json:"order,omitempty"`
	CreatedAt    *time.Time                  `json:"created_at,omitempty"`
	UpdatedAt    *time.Time                  `json:"updated_at,omitempty"`
}

// BucketsDTO groups the tasks of a day by progress
type BucketsDTO struct {
	WorkedOn  []TaskDTO `json:"worked_on"`
	WillStart []TaskDTO `json:"will_start"`
	Ended     []TaskDTO `json:"ended"`
}

// DayResponse is the schedule of one date
type DayResponse struct {
	Date          string     `json:"date"`
	Today         string     `json:"today"`
	IsToday       bool       `json:"is_today"`
	Tasks         []TaskDTO  `json:"tasks"`
	Buckets       BucketsDTO `json:"buckets"`
	CurrentTaskID string     `json:"current_task_id,omitempty"`
	NextTaskID    string     `json:"next_task_id,omitempty"`
}

// TaskListResponse represents a paginated list of tasks
type TaskListResponse struct {
	Tasks      []TaskDTO                `json:"tasks"`
	Pagination utils.PaginationResponse `json:"pagination"`
}

// CalendarLinkResponse carries the deep link and API payload of a task
type CalendarLinkResponse struct {
	URL   string          `json:"url"`
	Event *calendar.Event `json:"event"`
}

// SweepResponse lists the tasks a sweep completed
type SweepResponse struct {
	Completed []string `json:"completed"`
}

// Conversion functions

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:       user.ID,
		Username: user.Username,
	}
}

// ToTaskDTO converts a Task model to TaskDTO
func ToTaskDTO(task models.Task) TaskDTO {
	dto := TaskDTO{
		ID:           task.ID,
		Title:        task.Title,
		Description:  task.Description,
		StartDate:    task.StartDate,
		EndDate:      task.EndDate,
		DurationDays: task.DurationDays,
		Time:         task.Time,
		EndTime:      task.EndTime,
		DailyTimes:   task.DailyTimes,
		Completed:    task.Completed,
		MeetingType:  task.MeetingType,
		MeetingURL:   task.MeetingURL,
		GuestEmails:  task.GuestEmails,
		Order:        task.Order,
	}
	if dto.GuestEmails == nil {
		dto.GuestEmails = []string{}
	}
	if !task.CreatedAt.IsZero() {
		createdAt := task.CreatedAt
		dto.CreatedAt = &createdAt
	}
	if !task.UpdatedAt.IsZero() {
		updatedAt := task.UpdatedAt
		dto.UpdatedAt = &updatedAt
	}
	return dto
}

// ToTaskDTOs converts a slice of Task models
func ToTaskDTOs(tasks []models.Task) []TaskDTO {
	dtos := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		dtos = append(dtos, ToTaskDTO(t))
	}
	return dtos
}

// ToDayResponse converts a day view
func ToDayResponse(view *services.DayView) DayResponse {
	resp := DayResponse{
		Date:    view.Date,
		Today:   view.Today,
		IsToday: view.IsToday,
		Tasks:   ToTaskDTOs(view.Tasks),
		Buckets: toBucketsDTO(view.Buckets),
	}
	if h := view.Highlights; h != nil {
		if h.Current != nil {
			resp.CurrentTaskID = h.Current.ID
		}
		if h.Next != nil {
			resp.NextTaskID = h.Next.ID
		}
	}
	return resp
}

func toBucketsDTO(b schedule.Buckets) BucketsDTO {
	return BucketsDTO{
		WorkedOn:  ToTaskDTOs(b.WorkedOn),
		WillStart: ToTaskDTOs(b.WillStart),
		Ended:     ToTaskDTOs(b.Ended),
	}
}

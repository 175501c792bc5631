package dto

import (
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/schedule"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
)

// CreateTaskRequest is the body of POST /schedule/:date/tasks
type CreateTaskRequest struct {
	Title           string                      `json:"title" binding:"required,max=200"`
	Description     string                      `json:"description" binding:"max=2000"`
	Time            string                      `json:"time"`
	EndTime         string                      `json:"end_time"`
	DurationDays    int                         `json:"duration_days" binding:"omitempty,min=1"`
	DailyTimes      map[string]models.TimeRange `json:"daily_times"`
	MeetingType     models.MeetingType          `json:"meeting_type"`
	MeetingURL      string                      `json:"meeting_url"`
	GuestEmails     []string                    `json:"guest_emails"`
	GuestEmailsText string                      `json:"guest_emails_text"`
}

// ToTask converts the request into a task. A missing end time defaults to one hour
// after the start.
func (r CreateTaskRequest) ToTask() models.Task {
	task := models.Task{
		Title:        r.Title,
		Description:  r.Description,
		Time:         r.Time,
		EndTime:      r.EndTime,
		DurationDays: r.DurationDays,
		DailyTimes:   r.DailyTimes,
		MeetingType:  r.MeetingType,
		MeetingURL:   r.MeetingURL,
		GuestEmails:  mergeGuests(r.GuestEmails, r.GuestEmailsText),
	}
	// The default end wraps at midnight and stays on the start date.
	if task.EndTime == "" && timeutil.IsClock(task.Time) {
		task.EndTime = timeutil.DefaultEndTime(task.Time)
	}
	return task
}

// UpdateTaskRequest is the body of PATCH /schedule/:date/tasks/:id. Omitted fields are
// left unchanged.
type UpdateTaskRequest struct {
	Title           *string                      `json:"title" binding:"omitempty,min=1,max=200"`
	Description     *string                      `json:"description" binding:"omitempty,max=2000"`
	Time            *string                      `json:"time"`
	EndTime         *string                      `json:"end_time"`
	StartDate       *string                      `json:"start_date"`
	DurationDays    *int                         `json:"duration_days" binding:"omitempty,min=1"`
	DailyTimes      *map[string]models.TimeRange `json:"daily_times"`
	Completed       *bool                        `json:"completed"`
	MeetingType     *models.MeetingType          `json:"meeting_type"`
	MeetingURL      *string                      `json:"meeting_url"`
	GuestEmails     *[]string                    `json:"guest_emails"`
	GuestEmailsText *string                      `json:"guest_emails_text"`
}

// ToPatch converts the request into a store patch
func (r UpdateTaskRequest) ToPatch() schedule.TaskPatch {
	patch := schedule.TaskPatch{
		Title:        r.Title,
		Description:  r.Description,
		Time:         r.Time,
		EndTime:      r.EndTime,
		StartDate:    r.StartDate,
		DurationDays: r.DurationDays,
		DailyTimes:   r.DailyTimes,
		Completed:    r.Completed,
		MeetingType:  r.MeetingType,
		MeetingURL:   r.MeetingURL,
		GuestEmails:  r.GuestEmails,
	}
	if r.GuestEmailsText != nil {
		var base []string
		if r.GuestEmails != nil {
			base = *r.GuestEmails
		}
		guests := mergeGuests(base, *r.GuestEmailsText)
		patch.GuestEmails = &guests
	}
	return patch
}

// ReorderRequest is the body of PUT /schedule/:date/order
type ReorderRequest struct {
	TaskIDs []string `json:"task_ids" binding:"required"`
}

// DraftRequest is the body of POST /schedule/:date/drafts
type DraftRequest struct {
	Text string `json:"text" binding:"required,max=5000"`
}

func mergeGuests(list []string, text string) []string {
	all := append(append([]string{}, list...), models.ParseGuestEmails(text)...)
	return models.NormalizeGuestEmails(all)
}

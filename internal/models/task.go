package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/day-planner-api/internal/timeutil"
)

type MeetingType string

const (
	MeetingNone   MeetingType = "none"
	MeetingGoogle MeetingType = "google"
	MeetingTeams  MeetingType = "teams"
	MeetingCustom MeetingType = "custom"
)

// Valid reports whether m is one of the known meeting types. Empty counts as none.
func (m MeetingType) Valid() bool {
	switch m {
	case "", MeetingNone, MeetingGoogle, MeetingTeams, MeetingCustom:
		return true
	}
	return false
}

var (
	ErrTitleRequired       = errors.New("title is required")
	ErrInvalidDateKey      = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidDuration     = errors.New("duration_days must be at least 1")
	ErrInvalidClock        = errors.New("time must be formatted as HH:MM")
	ErrInvalidMeetingType  = errors.New("meeting_type must be one of none, google, teams, custom")
	ErrDailyTimeOutOfRange = errors.New("daily time override lies outside the task's date range")
)

// TimeRange is a start/end clock pair. Empty strings mean "absent".
type TimeRange struct {
	Time    string `json:"time"`
	EndTime string `json:"end_time"`
}

// Task is a planner entry anchored to StartDate. It is stored under the key
// "<user>_<date>_<id>" and appears in the bucket of its StartDate only; multi-day
// visibility is resolved by the schedule store.
type Task struct {
	DocKey       string               `gorm:"primarykey;type:varchar(191)" json:"-"`
	ID           string               `gorm:"type:varchar(64);not null" json:"id"`
	UserID       string               `gorm:"type:varchar(64);not null;index:idx_tasks_user_date" json:"user_id"`
	Date         string               `gorm:"type:varchar(10);not null;index:idx_tasks_user_date" json:"date"`
	StartDate    string               `gorm:"type:varchar(10);not null" json:"start_date"`
	EndDate      string               `gorm:"type:varchar(10);not null" json:"end_date"`
	DurationDays int                  `gorm:"not null;default:1" json:"duration_days"`
	Time         string               `gorm:"type:varchar(5)" json:"time"`
	EndTime      string               `gorm:"type:varchar(5)" json:"end_time"`
	DailyTimes   map[string]TimeRange `gorm:"serializer:json;type:text" json:"daily_times,omitempty"`
	Title        string               `gorm:"not null" json:"title"`
	Description  string               `gorm:"type:text" json:"description"`
	Completed    bool                 `gorm:"not null;default:false" json:"completed"`
	MeetingType  MeetingType          `gorm:"type:varchar(20);not null;default:'none'" json:"meeting_type"`
	MeetingURL   string               `gorm:"type:text" json:"meeting_url"`
	GuestEmails  []string             `gorm:"serializer:json;type:text" json:"guest_emails"`
	Order        *int                 `gorm:"column:sort_order" json:"order,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// DocKey builds the composite storage key of a task.
func DocKey(userID, dateKey, taskID string) string {
	return fmt.Sprintf("%s_%s_%s", userID, dateKey, taskID)
}

// IsMultiDay reports whether the task spans more than one calendar day.
func (t *Task) IsMultiDay() bool {
	return t.DurationDays > 1
}

// Covers reports whether dateKey lies within [StartDate, EndDate].
func (t *Task) Covers(dateKey string) bool {
	end := t.EndDate
	if end == "" {
		end = t.StartDate
	}
	return timeutil.DateInRange(dateKey, t.StartDate, end)
}

// TimeFor returns the per-day override for dateKey if one exists, otherwise the
// task's default window.
func (t *Task) TimeFor(dateKey string) TimeRange {
	if tr, ok := t.DailyTimes[dateKey]; ok {
		return tr
	}
	return TimeRange{Time: t.Time, EndTime: t.EndTime}
}

// Normalize fills derived fields: Date mirrors StartDate, DurationDays defaults to
// 1 and EndDate is recomputed from both.
func (t *Task) Normalize() error {
	if t.DurationDays < 1 {
		t.DurationDays = 1
	}
	t.Date = t.StartDate
	end, err := timeutil.AddDaysToDate(t.StartDate, t.DurationDays-1)
	if err != nil {
		return ErrInvalidDateKey
	}
	t.EndDate = end
	if t.MeetingType == "" {
		t.MeetingType = MeetingNone
	}
	return nil
}

// Validate checks the rules a task must satisfy before it is persisted.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrTitleRequired
	}
	if !timeutil.IsDateKey(t.StartDate) {
		return ErrInvalidDateKey
	}
	if t.DurationDays < 1 {
		return ErrInvalidDuration
	}
	if t.Time != "" && !timeutil.IsClock(t.Time) {
		return ErrInvalidClock
	}
	if t.EndTime != "" && !timeutil.IsClock(t.EndTime) {
		return ErrInvalidClock
	}
	if !t.MeetingType.Valid() {
		return ErrInvalidMeetingType
	}
	for day, tr := range t.DailyTimes {
		if !timeutil.IsDateKey(day) {
			return ErrInvalidDateKey
		}
		if !t.Covers(day) {
			return fmt.Errorf("%w: %s", ErrDailyTimeOutOfRange, day)
		}
		if (tr.Time != "" && !timeutil.IsClock(tr.Time)) || (tr.EndTime != "" && !timeutil.IsClock(tr.EndTime)) {
			return ErrInvalidClock
		}
	}
	return nil
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	c := t
	if t.DailyTimes != nil {
		c.DailyTimes = make(map[string]TimeRange, len(t.DailyTimes))
		for k, v := range t.DailyTimes {
			c.DailyTimes[k] = v
		}
	}
	if t.GuestEmails != nil {
		c.GuestEmails = append([]string(nil), t.GuestEmails...)
	}
	if t.Order != nil {
		o := *t.Order
		c.Order = &o
	}
	return c
}

// SetOrder assigns the display position.
func (t *Task) SetOrder(i int) {
	t.Order = &i
}

// ParseGuestEmails splits a delimited string on commas or semicolons, trimming
// entries and dropping empty or repeated ones.
func ParseGuestEmails(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';'
	})
	return NormalizeGuestEmails(fields)
}

// NormalizeGuestEmails trims and de-duplicates a list of emails, keeping the
// first occurrence order.
func NormalizeGuestEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	result := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, exists := seen[e]; exists {
			continue
		}
		seen[e] = struct{}{}
		result = append(result, e)
	}
	return result
}

// IsValidationError reports whether err is one of the task validation errors.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrTitleRequired,
		ErrInvalidDateKey,
		ErrInvalidDuration,
		ErrInvalidClock,
		ErrInvalidMeetingType,
		ErrDailyTimeOutOfRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

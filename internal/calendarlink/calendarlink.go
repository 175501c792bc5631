// Package calendarlink turns a task into a Google Calendar "create event" link and
// into the equivalent Calendar API event.
package calendarlink

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
	"google.golang.org/api/calendar/v3"
)

const (
	BaseURL = "https://calendar.google.com/calendar/u/0/r/eventedit"

	// TaskIDProperty is the private extended property carrying the task id.
	TaskIDProperty = "planner_task_id"

	defaultTitle       = "Meeting"
	defaultStartMinute = 9 * 60
	defaultLength      = 30 * time.Minute
	compactLayout      = "20060102T150405"
)

// EventURL builds a prefilled event editor link for task on dateKey.
func EventURL(task models.Task, dateKey string) (string, error) {
	start, end, err := eventWindow(task, dateKey, time.Local)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("text", title(task))
	params.Set("dates", start.Format(compactLayout)+"/"+end.Format(compactLayout))
	if details := details(task); details != "" {
		params.Set("details", details)
	}
	if guests := models.NormalizeGuestEmails(task.GuestEmails); len(guests) > 0 {
		params.Set("add", strings.Join(guests, ","))
	}
	if task.MeetingURL != "" {
		params.Set("location", task.MeetingURL)
	}
	return BaseURL + "?" + params.Encode(), nil
}

// Event builds the Calendar API event for task on dateKey in loc.
func Event(task models.Task, dateKey string, loc *time.Location) (*calendar.Event, error) {
	if loc == nil {
		loc = time.Local
	}
	start, end, err := eventWindow(task, dateKey, loc)
	if err != nil {
		return nil, err
	}

	event := &calendar.Event{
		Summary:     title(task),
		Description: details(task),
		Location:    task.MeetingURL,
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: loc.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: loc.String(),
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{TaskIDProperty: task.ID},
		},
	}
	for _, email := range models.NormalizeGuestEmails(task.GuestEmails) {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}
	return event, nil
}

func title(task models.Task) string {
	if t := strings.TrimSpace(task.Title); t != "" {
		return t
	}
	return defaultTitle
}

func details(task models.Task) string {
	var parts []string
	if task.Description != "" {
		parts = append(parts, task.Description)
	}
	if task.MeetingURL != "" {
		parts = append(parts, fmt.Sprintf("Meeting link: %s", task.MeetingURL))
	}
	return strings.Join(parts, "\n\n")
}

// eventWindow starts at the task's effective time on dateKey, or 09:00 without one,
// and ends at its effective end time or 30 minutes later.
func eventWindow(task models.Task, dateKey string, loc *time.Location) (time.Time, time.Time, error) {
	tr := task.TimeFor(dateKey)
	startMinute, ok := timeutil.MinutesFromTime(tr.Time)
	if !ok {
		startMinute = defaultStartMinute
	}
	start, err := timeutil.At(dateKey, startMinute, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	end := start.Add(defaultLength)
	if endMinute, ok := timeutil.MinutesFromTime(tr.EndTime); ok && endMinute > startMinute {
		end = start.Add(time.Duration(endMinute-startMinute) * time.Minute)
	}
	return start, end, nil
}

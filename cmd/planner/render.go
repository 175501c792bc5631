package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/schedule"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
)

var colors = struct {
	Primary lipgloss.Color
	Muted   lipgloss.Color
	Error   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Next    lipgloss.Color
}{
	Primary: lipgloss.Color("#6C5CE7"),
	Muted:   lipgloss.Color("#636E72"),
	Error:   lipgloss.Color("#D63031"),
	Success: lipgloss.Color("#00B894"),
	Warning: lipgloss.Color("#FDCB6E"),
	Next:    lipgloss.Color("#74B9FF"),
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colors.Primary)
	sectionStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
	mutedStyle   = lipgloss.NewStyle().Foreground(colors.Muted)
	doneStyle    = lipgloss.NewStyle().Foreground(colors.Muted).Strikethrough(true)
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(colors.Warning)
	nextStyle    = lipgloss.NewStyle().Foreground(colors.Next)
	successStyle = lipgloss.NewStyle().Foreground(colors.Success)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colors.Error)
	timerStyle   = lipgloss.NewStyle().Bold(true).Foreground(colors.Primary)
)

const shortIDLength = 8

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// renderDay draws the buckets of date. h may be nil when date is not today.
func renderDay(date, today string, buckets schedule.Buckets, h *schedule.Highlights) string {
	var b strings.Builder

	title := date
	if date == today {
		title += " (today)"
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")

	if buckets.Len() == 0 {
		b.WriteString(mutedStyle.Render("No tasks."))
		b.WriteString("\n")
		return b.String()
	}

	sections := []struct {
		name  string
		tasks []models.Task
	}{
		{"Working on", buckets.WorkedOn},
		{"Will start", buckets.WillStart},
		{"Ended", buckets.Ended},
	}
	for _, s := range sections {
		if len(s.tasks) == 0 {
			continue
		}
		b.WriteString(sectionStyle.Render(fmt.Sprintf("%s (%d)", s.name, len(s.tasks))))
		b.WriteString("\n")
		for _, t := range s.tasks {
			b.WriteString(renderTask(t, date, h))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderTask(t models.Task, date string, h *schedule.Highlights) string {
	marker, style := "•", lipgloss.NewStyle()
	switch {
	case t.Completed:
		marker, style = "✓", doneStyle
	case h != nil && h.IsCurrentTask(t.ID):
		marker, style = "▶", currentStyle
	case h != nil && h.IsNextTask(t.ID):
		marker, style = "→", nextStyle
	}

	line := fmt.Sprintf("  %s %-11s %s", marker, timeLabel(t.TimeFor(date)), t.Title)
	if t.IsMultiDay() {
		if n, err := timeutil.DaysBetween(t.StartDate, date); err == nil {
			line += fmt.Sprintf(" (day %d/%d)", n+1, t.DurationDays)
		}
	}
	if len(t.GuestEmails) > 0 {
		line += fmt.Sprintf(" +%d guests", len(t.GuestEmails))
	}
	return style.Render(line) + " " + mutedStyle.Render(shortID(t.ID))
}

func timeLabel(tr models.TimeRange) string {
	switch {
	case tr.Time == "":
		return "--:--"
	case tr.EndTime == "":
		return tr.Time
	default:
		return tr.Time + "-" + tr.EndTime
	}
}

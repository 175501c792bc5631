package schedule

import (
	"sort"
	"time"

	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
)

// Bucket is the display group a task falls into for a viewed date.
type Bucket int

const (
	BucketWillStart Bucket = iota
	BucketWorkedOn
	BucketEnded
)

func (b Bucket) String() string {
	switch b {
	case BucketWorkedOn:
		return "worked_on"
	case BucketEnded:
		return "ended"
	default:
		return "will_start"
	}
}

// Buckets holds the tasks of one viewed date split by Bucket.
type Buckets struct {
	WorkedOn  []models.Task `json:"worked_on"`
	WillStart []models.Task `json:"will_start"`
	Ended     []models.Task `json:"ended"`
}

// Len returns the number of tasks across all buckets.
func (b Buckets) Len() int {
	return len(b.WorkedOn) + len(b.WillStart) + len(b.Ended)
}

// ClassifyTask places one task for viewedDate. currentMinutes is the minute of day
// and only matters when isToday is set.
func ClassifyTask(task models.Task, viewedDate string, isToday bool, currentMinutes int) Bucket {
	if task.Completed {
		return BucketEnded
	}

	multiDay := task.IsMultiDay()
	lastDay := multiDay && viewedDate == task.EndDate
	if multiDay && viewedDate != task.StartDate && !lastDay {
		return BucketWillStart
	}

	start, end := window(task.TimeFor(viewedDate))
	if !isToday {
		return BucketWillStart
	}
	if currentMinutes > end {
		if multiDay && !lastDay {
			return BucketWillStart
		}
		return BucketEnded
	}
	if currentMinutes >= start {
		return BucketWorkedOn
	}
	return BucketWillStart
}

// Classify sorts tasks and splits them into buckets for viewedDate. today is the
// date key of now in the caller's zone.
func Classify(tasks []models.Task, viewedDate, today string, now time.Time) Buckets {
	sorted := cloneTasks(tasks)
	SortTasks(sorted)

	isToday := viewedDate == today
	current, _ := timeutil.MinutesFromTime(timeutil.CurrentTimeString(now))

	buckets := Buckets{
		WorkedOn:  []models.Task{},
		WillStart: []models.Task{},
		Ended:     []models.Task{},
	}
	for _, t := range sorted {
		switch ClassifyTask(t, viewedDate, isToday, current) {
		case BucketWorkedOn:
			buckets.WorkedOn = append(buckets.WorkedOn, t)
		case BucketEnded:
			buckets.Ended = append(buckets.Ended, t)
		default:
			buckets.WillStart = append(buckets.WillStart, t)
		}
	}
	return buckets
}

// SortTasks orders tasks by explicit order when both sides have one, otherwise by
// start time with untimed tasks last. The sort is stable.
func SortTasks(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Order != nil && b.Order != nil {
			return *a.Order < *b.Order
		}
		return timeKey(a.Time) < timeKey(b.Time)
	})
}

func timeKey(clock string) string {
	if clock == "" {
		return "99:99"
	}
	return clock
}

// window returns the start and end minute of a time range. A missing start counts
// as midnight and a missing end as one hour after the start. An end that wrapped
// past midnight (23:30-00:30) is taken as is, so such a task reads as ended for
// most of its day and the sweep completes it.
func window(tr models.TimeRange) (int, int) {
	start, ok := timeutil.MinutesFromTime(tr.Time)
	if !ok {
		start = 0
	}
	end, ok := timeutil.MinutesFromTime(tr.EndTime)
	if !ok {
		end = start + timeutil.DefaultDurationMinutes
	}
	return start, end
}

// Highlights marks the task running now and the next one to start on a day.
type Highlights struct {
	Current *models.Task `json:"current,omitempty"`
	Next    *models.Task `json:"next,omitempty"`
}

// Highlight finds, among the uncompleted tasks of dateKey, the first task whose
// window contains now and the first task starting after now.
func Highlight(tasks []models.Task, dateKey string, now time.Time) Highlights {
	pending := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Completed {
			pending = append(pending, t.Clone())
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return timeKey(pending[i].TimeFor(dateKey).Time) < timeKey(pending[j].TimeFor(dateKey).Time)
	})

	currentClock := timeutil.CurrentTimeString(now)
	current, _ := timeutil.MinutesFromTime(currentClock)

	var h Highlights
	for i := range pending {
		tr := pending[i].TimeFor(dateKey)
		if tr.Time == "" {
			continue
		}
		start, end := window(tr)
		if h.Current == nil && current >= start && current <= end {
			h.Current = &pending[i]
		}
		if h.Next == nil && tr.Time > currentClock {
			h.Next = &pending[i]
		}
	}
	return h
}

// IsCurrentTask reports whether id is the running task.
func (h Highlights) IsCurrentTask(id string) bool {
	return h.Current != nil && h.Current.ID == id
}

// IsNextTask reports whether id is the next task to start.
func (h Highlights) IsNextTask(id string) bool {
	return h.Next != nil && h.Next.ID == id
}

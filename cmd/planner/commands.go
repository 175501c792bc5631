package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yukikurage/day-planner-api/internal/calendarlink"
	"github.com/yukikurage/day-planner-api/internal/focus"
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/repository"
	"github.com/yukikurage/day-planner-api/internal/schedule"
	"github.com/yukikurage/day-planner-api/internal/services"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
)

// withApp runs fn against a signed-in app and closes it afterwards
func withApp(flags *globalFlags, fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, flags)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a)
	}
}

func (a *app) now() time.Time {
	return a.clock.Now().In(a.loc)
}

func signupCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create the user given by --user and --password",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, db, err := openDatabase(flags)
			if err != nil {
				return err
			}
			defer closeDB(db)

			user, err := services.NewAuthService(repository.NewUserRepository(db)).Signup(services.SignupInput{
				Username: flags.username,
				Password: flags.password,
			})
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Created user " + user.Username))
			return nil
		},
	}
}

func dayCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "day",
		Short: "Show the tasks of a day grouped by progress",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app) error {
			now := a.now()
			tasks := a.store.GetTasksSpanningDate(a.date)
			schedule.SortTasks(tasks)

			var h *schedule.Highlights
			if a.date == a.today {
				found := schedule.Highlight(tasks, a.date, now)
				h = &found
			}
			fmt.Print(renderDay(a.date, a.today, schedule.Classify(tasks, a.date, a.today, now), h))
			return nil
		}),
	}
}

func addCmd(flags *globalFlags) *cobra.Command {
	var (
		description string
		start       string
		end         string
		days        int
		guests      string
		meeting     string
		meetingURL  string
	)

	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a task at the top of a day",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := models.Task{
				Title:        strings.Join(args, " "),
				Description:  description,
				Time:         start,
				EndTime:      end,
				DurationDays: days,
				MeetingType:  models.MeetingType(meeting),
				MeetingURL:   meetingURL,
				GuestEmails:  models.ParseGuestEmails(guests),
			}
			if task.EndTime == "" && timeutil.IsClock(task.Time) {
				task.EndTime = timeutil.DefaultEndTime(task.Time)
			}

			return withApp(flags, func(ctx context.Context, a *app) error {
				created, err := a.store.AddTask(ctx, a.date, task)
				if err != nil {
					return err
				}
				fmt.Println(successStyle.Render("Added "+created.Title) + " " + mutedStyle.Render(shortID(created.ID)))
				return nil
			})(cmd, args)
		},
	}

	cmd.Flags().StringVar(&description, "desc", "", "Description")
	cmd.Flags().StringVarP(&start, "time", "t", "", "Start time as HH:MM")
	cmd.Flags().StringVarP(&end, "end", "e", "", "End time as HH:MM, defaults to one hour after start")
	cmd.Flags().IntVar(&days, "days", 1, "Number of days the task spans")
	cmd.Flags().StringVar(&guests, "guests", "", "Guest emails separated by commas")
	cmd.Flags().StringVar(&meeting, "meeting", string(models.MeetingNone), "Meeting type (none, google, teams, custom)")
	cmd.Flags().StringVar(&meetingURL, "meeting-url", "", "Meeting link")

	return cmd
}

func editCmd(flags *globalFlags) *cobra.Command {
	var (
		title       string
		description string
		start       string
		end         string
		startDate   string
		days        int
	)

	cmd := &cobra.Command{
		Use:   "edit [id]",
		Short: "Change the fields of a task, moving it when --start-date is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch schedule.TaskPatch
			changed := cmd.Flags().Changed
			if changed("title") {
				patch.Title = &title
			}
			if changed("desc") {
				patch.Description = &description
			}
			if changed("time") {
				patch.Time = &start
			}
			if changed("end") {
				patch.EndTime = &end
			}
			if changed("start-date") {
				patch.StartDate = &startDate
			}
			if changed("days") {
				patch.DurationDays = &days
			}

			return withApp(flags, func(ctx context.Context, a *app) error {
				task, err := a.find(a.date, args[0])
				if err != nil {
					return err
				}
				updated, err := a.store.UpdateTask(ctx, task.StartDate, task.ID, patch)
				if err != nil {
					return err
				}
				fmt.Println(successStyle.Render("Updated "+updated.Title) + " " + mutedStyle.Render(updated.StartDate))
				return nil
			})(cmd, args)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&description, "desc", "", "Description")
	cmd.Flags().StringVarP(&start, "time", "t", "", "Start time as HH:MM, empty to clear")
	cmd.Flags().StringVarP(&end, "end", "e", "", "End time as HH:MM, empty to clear")
	cmd.Flags().StringVar(&startDate, "start-date", "", "Move the task to this date")
	cmd.Flags().IntVar(&days, "days", 1, "Number of days the task spans")

	return cmd
}

func toggleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [id]",
		Short: "Mark a task done or not done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, a *app) error {
				task, err := a.find(a.date, args[0])
				if err != nil {
					return err
				}
				toggled, err := a.store.ToggleTaskComplete(ctx, task.StartDate, task.ID)
				if err != nil {
					return err
				}
				state := "not done"
				if toggled.Completed {
					state = "done"
				}
				fmt.Println(successStyle.Render(toggled.Title + " is " + state))
				return nil
			})(cmd, args)
		},
	}
}

func deleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, a *app) error {
				task, err := a.find(a.date, args[0])
				if err != nil {
					return err
				}
				if err := a.store.DeleteTask(ctx, task.StartDate, task.ID); err != nil {
					return err
				}
				fmt.Println(successStyle.Render("Deleted " + task.Title))
				return nil
			})(cmd, args)
		},
	}
}

func reorderCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder [id...]",
		Short: "Put the given tasks first, in this order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, a *app) error {
				ids := make([]string, 0, len(args))
				for _, arg := range args {
					task, err := a.find(a.date, arg)
					if err != nil {
						return err
					}
					ids = append(ids, task.ID)
				}
				if err := a.store.ReorderTasks(ctx, a.date, ids); err != nil {
					return err
				}
				for i, t := range a.store.GetTasksForDate(a.date) {
					fmt.Printf("%2d. %s %s\n", i+1, t.Title, mutedStyle.Render(shortID(t.ID)))
				}
				return nil
			})(cmd, args)
		},
	}
}

func linkCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "link [id]",
		Short: "Print a Google Calendar link for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, a *app) error {
				task, err := a.find(a.date, args[0])
				if err != nil {
					return err
				}
				link, err := calendarlink.EventURL(task, a.date)
				if err != nil {
					return err
				}
				fmt.Println(link)
				return nil
			})(cmd, args)
		},
	}
}

func sweepCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark today's tasks whose time has passed as done",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app) error {
			completed, err := a.store.AutoCompleteNow(ctx, a.loc)
			if len(completed) == 0 {
				fmt.Println(mutedStyle.Render("Nothing to complete."))
			} else {
				fmt.Println(successStyle.Render(fmt.Sprintf("Completed %d task(s)", len(completed))))
			}
			return err
		}),
	}
}

func focusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "focus [id]",
		Short: "Run a focus timer, synced to the current task's end when there is one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, a *app) error {
				var active *models.Task
				if len(args) == 1 {
					task, err := a.find(a.today, args[0])
					if err != nil {
						return err
					}
					active = &task
				} else {
					h := schedule.Highlight(a.store.GetTasksSpanningDate(a.today), a.today, a.now())
					active = h.Current
				}
				return runFocus(ctx, a, active)
			})(cmd, args)
		},
	}
}

func runFocus(ctx context.Context, a *app, active *models.Task) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	finished := make(chan focus.Mode, 1)
	timer := focus.New(a.clock, func(m focus.Mode) {
		finished <- m
	})

	label := "Focus"
	if active != nil {
		label += " on " + active.Title
	}
	fmt.Println(headerStyle.Render(label))

	timer.Start(active)
	ticker := a.clock.Ticker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Pause()
			fmt.Printf("\r%s %s\n", timerStyle.Render(timer.Display()), mutedStyle.Render("paused"))
			return nil
		case m := <-finished:
			fmt.Printf("\r%s\n", successStyle.Render(fmt.Sprintf("%s finished, next up: %s %s", m, timer.Mode(), timer.Display())))
			return nil
		case <-ticker.C:
			fmt.Printf("\r%s", timerStyle.Render(timer.Display()))
		}
	}
}

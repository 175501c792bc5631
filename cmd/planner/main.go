package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/yukikurage/day-planner-api/internal/config"
	"github.com/yukikurage/day-planner-api/internal/database"
	"github.com/yukikurage/day-planner-api/internal/logging"
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/repository"
	"github.com/yukikurage/day-planner-api/internal/schedule"
	"github.com/yukikurage/day-planner-api/internal/services"
	"github.com/yukikurage/day-planner-api/internal/session"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
	"gorm.io/gorm"
)

var Version = "dev"

type globalFlags struct {
	driver     string
	sqlitePath string
	username   string
	password   string
	date       string
}

// app is what every command works against once the user is signed in
type app struct {
	cfg     *config.Config
	loc     *time.Location
	log     *logrus.Logger
	db      *gorm.DB
	clock   clock.Clock
	state   *session.State
	store   *schedule.Store
	users   repository.UserRepository
	today   string
	date    string
	release func()
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "planner",
		Short:         "Plan and track the tasks of your day",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.driver, "driver", "sqlite", "Database driver (mysql, postgres, sqlite)")
	rootCmd.PersistentFlags().StringVar(&flags.sqlitePath, "sqlite-path", "", "SQLite file, defaults to SQLITE_PATH")
	rootCmd.PersistentFlags().StringVarP(&flags.username, "user", "u", os.Getenv("PLANNER_USER"), "Username to act as")
	rootCmd.PersistentFlags().StringVarP(&flags.password, "password", "p", os.Getenv("PLANNER_PASSWORD"), "Password, verified when set")
	rootCmd.PersistentFlags().StringVarP(&flags.date, "date", "d", "", "Date as YYYY-MM-DD, defaults to today")

	rootCmd.AddCommand(signupCmd(flags))
	rootCmd.AddCommand(dayCmd(flags))
	rootCmd.AddCommand(addCmd(flags))
	rootCmd.AddCommand(toggleCmd(flags))
	rootCmd.AddCommand(deleteCmd(flags))
	rootCmd.AddCommand(editCmd(flags))
	rootCmd.AddCommand(reorderCmd(flags))
	rootCmd.AddCommand(linkCmd(flags))
	rootCmd.AddCommand(sweepCmd(flags))
	rootCmd.AddCommand(focusCmd(flags))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// openDatabase loads the configuration and connects with the CLI overrides applied
func openDatabase(flags *globalFlags) (*config.Config, *logrus.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if flags.driver != "" {
		cfg.DBDriver = flags.driver
	}
	if flags.sqlitePath != "" {
		cfg.SQLitePath = flags.sqlitePath
	}

	log, err := logging.New(logging.Options{Level: "warn", File: cfg.LogFile})
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.Migrate(db, log); err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}

// openApp connects, signs the user in and loads their tasks into a store
func openApp(ctx context.Context, flags *globalFlags) (*app, error) {
	if flags.username == "" {
		return nil, errors.New("no user given, pass --user or set PLANNER_USER")
	}
	if flags.date != "" && !timeutil.IsDateKey(flags.date) {
		return nil, services.ErrInvalidDate
	}

	cfg, log, db, err := openDatabase(flags)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		closeDB(db)
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		loc:   loc,
		log:   log,
		db:    db,
		clock: clock.New(),
		state: session.NewState(),
		users: repository.NewUserRepository(db),
	}
	a.today = timeutil.FormatDate(a.clock.Now().In(loc))
	a.date = a.today
	if flags.date != "" {
		a.date = flags.date
	}

	a.store = schedule.NewStore(repository.NewTaskRepositoryWithClock(db, a.clock),
		schedule.WithClock(a.clock),
		schedule.WithLogger(log),
		schedule.WithRetry(cfg.RemoteRetryAttempts, cfg.RemoteRetryDelay),
	)
	a.release = a.store.BindSession(ctx, a.state)

	if err := a.signIn(flags.username, flags.password); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) signIn(username, password string) error {
	a.state.SetLoading(true)
	defer a.state.SetLoading(false)

	auth := services.NewAuthService(a.users)
	var (
		user *models.User
		err  error
	)
	if password != "" {
		user, err = auth.Login(services.LoginInput{Username: username, Password: password})
	} else {
		user, err = auth.GetUserByUsername(username)
	}
	if err != nil {
		a.state.SetError(err.Error())
		return err
	}

	a.state.SetIdentity(&session.Identity{ID: user.ID, Username: user.Username})
	return nil
}

// Close signs out and releases the database
func (a *app) Close() {
	a.state.Clear()
	if a.release != nil {
		a.release()
	}
	closeDB(a.db)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// find locates a task visible on date by its id or an unambiguous id prefix of at
// least four characters. The task's StartDate is the bucket it is stored under.
func (a *app) find(date, id string) (models.Task, error) {
	var matches []models.Task
	for _, t := range a.store.GetTasksSpanningDate(date) {
		if t.ID == id {
			return t, nil
		}
		if len(id) >= 4 && strings.HasPrefix(t.ID, id) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.Task{}, fmt.Errorf("%w: %s", services.ErrTaskNotFound, id)
	default:
		return models.Task{}, fmt.Errorf("task id %q is ambiguous", id)
	}
}

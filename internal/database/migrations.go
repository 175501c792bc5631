package database

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yukikurage/day-planner-api/internal/models"
	"gorm.io/gorm"
)

type index struct {
	model   interface{}
	name    string
	columns []string
}

// indexes lists the secondary indexes not declared on the models
var indexes = []index{
	{&models.Task{}, "idx_tasks_user_start_date", []string{"user_id", "start_date"}},
	{&models.Task{}, "idx_tasks_completed", []string{"completed"}},
	{&models.Task{}, "idx_tasks_end_date", []string{"end_date"}},
}

// AddIndexes adds the history and sweep query indexes, skipping existing ones
func AddIndexes(db *gorm.DB, log logrus.FieldLogger) error {
	migrator := db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.model, idx.name) {
			log.WithField("index", idx.name).Debug("index already exists, skipping")
			continue
		}

		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(idx.model); err != nil {
			return fmt.Errorf("failed to parse model for index %s: %w", idx.name, err)
		}
		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			db.Statement.Quote(idx.name),
			db.Statement.Quote(stmt.Schema.Table),
			quoteColumns(db, idx.columns),
		)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}

		log.WithField("index", idx.name).Info("created index")
	}
	return nil
}

func quoteColumns(db *gorm.DB, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = db.Statement.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

// MigrateDatabase runs the migrations that AutoMigrate does not cover
func MigrateDatabase(db *gorm.DB, log logrus.FieldLogger) error {
	if err := AddIndexes(db, log); err != nil {
		return fmt.Errorf("failed to add indexes: %w", err)
	}
	return nil
}

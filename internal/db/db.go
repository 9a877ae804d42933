package db

import (
	"fmt"
	stlog "log"
	"time"

	"waflow/internal/bot"
	"waflow/internal/campaign"
	"waflow/internal/jobs"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         newLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info().Msg("database connection established")
	return gdb, nil
}

// newLogger writes gorm's output through the global zerolog logger at a
// level derived from zerolog's.
func newLogger() gormlogger.Interface {
	level := gormlogger.Warn
	switch zerolog.GlobalLevel() {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		level = gormlogger.Info
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		level = gormlogger.Error
	case zerolog.Disabled:
		level = gormlogger.Silent
	}
	return gormlogger.New(
		stlog.New(log.Logger, "", 0),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Models lists every table the service owns, in migration order.
func Models() []any {
	return []any{
		&jobs.Job{},
		&campaign.Campaign{},
		&bot.Rule{},
		&bot.FireRecord{},
	}
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	stmts := []string{
		`create index if not exists idx_jobs_due on jobs(status, scheduled_at);`,
		`create index if not exists idx_jobs_group on jobs(group_kind, group_key, status);`,
		`create index if not exists idx_rules_owner_active on rules(owner, active);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	log.Info().Int("models", len(Models())).Msg("database migrated")
	return nil
}

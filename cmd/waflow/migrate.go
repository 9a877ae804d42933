package main

import (
	"waflow/internal/config"
	"waflow/internal/db"
	"waflow/internal/logger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, gdb, err := open()
			if err != nil {
				return err
			}
			log.Info().Msg("migrating")
			return db.AutoMigrateAndIndexes(gdb)
		},
	}
}

// open loads configuration, sets up logging and connects to the database.
func open() (config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, gdb, nil
}

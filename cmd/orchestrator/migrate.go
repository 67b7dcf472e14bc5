package main

import (
	"github.com/callinsights/transcribe-orchestrator/internal/config"
	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		sync := initLogging(cfg)
		defer sync()

		zap.S().Info("Starting db migration")
		defer zap.S().Info("Db migrated")

		if cfg.Service.StoreBackend == storeBackendDynamoDB {
			zap.S().Info("dynamodb backend has no schema to migrate")
			return nil
		}

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := migrations.MigrateStore(db, cfg); err != nil {
			zap.S().Fatalw("running migrations", "error", err)
		}

		return nil
	},
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/Heyzerohey/packhey/internal/audit"
	"github.com/Heyzerohey/packhey/internal/clock"
	"github.com/Heyzerohey/packhey/internal/config"
	"github.com/Heyzerohey/packhey/internal/creditledger"
	"github.com/Heyzerohey/packhey/internal/events"
	"github.com/Heyzerohey/packhey/internal/migration"
	"github.com/Heyzerohey/packhey/internal/observability"
	"github.com/Heyzerohey/packhey/internal/pack"
	"github.com/Heyzerohey/packhey/internal/payment"
	"github.com/Heyzerohey/packhey/internal/reconciliation"
	"github.com/Heyzerohey/packhey/internal/seed"
	"github.com/Heyzerohey/packhey/internal/server"
	"github.com/Heyzerohey/packhey/internal/signing"
	"github.com/Heyzerohey/packhey/internal/storage"
	"github.com/Heyzerohey/packhey/internal/subscription"
	"github.com/Heyzerohey/packhey/pkg/db"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			if !cfg.IsProduction() && cfg.Bootstrap.EnsureDevAccount {
				return seed.EnsureDevAccount(conn)
			}
			return nil
		}),

		audit.Module,
		events.Module,
		subscription.Module,
		creditledger.Module,
		signing.Module,
		storage.Module,
		pack.Module,
		payment.Module,
		reconciliation.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

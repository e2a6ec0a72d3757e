package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/scorebench/internal/billing/adapters/stripe"
	"github.com/smallbiznis/scorebench/internal/billing/pricing"
	"github.com/smallbiznis/scorebench/internal/billing/repository"
	"github.com/smallbiznis/scorebench/internal/billing/service"
	"github.com/smallbiznis/scorebench/internal/billing/webhook"
	"github.com/smallbiznis/scorebench/internal/clock"
	"github.com/smallbiznis/scorebench/internal/config"
	"github.com/smallbiznis/scorebench/internal/migration"
	"github.com/smallbiznis/scorebench/internal/observability"
	"github.com/smallbiznis/scorebench/internal/server"
	"github.com/smallbiznis/scorebench/pkg/db"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Billing
		pricing.Module,
		stripe.Module,
		repository.Module,
		service.Module,
		webhook.Module,

		server.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

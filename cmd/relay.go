package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed/pgfeed"
	"github.com/shenikar/dispatch_coordination_system/internal/changefeed/redisfeed"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
	"github.com/shenikar/dispatch_coordination_system/pkg/postgres"
	redisclient "github.com/shenikar/dispatch_coordination_system/pkg/redis"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Forward Postgres change notifications into Redis Streams",
	Long: "Holds one LISTEN connection per table and republishes every change into changes:<table> " +
		"streams, so coordinator processes started with CHANGEFEED_DRIVER=redis share a single listener.",
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	dbpool, err := postgres.NewPostgresDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	relay := redisfeed.NewRelay(pgfeed.New(dbpool, log), redisfeed.NewStreamPublisher(redisClient, cfg.StreamMaxLen), log)
	relay.InitialInterval = cfg.ReseedInitialInterval
	relay.MaxInterval = cfg.ReseedMaxInterval

	log.Info("Change feed relay started")
	err = relay.Run(ctx, models.EntityAccidents, models.EntityAssignments, models.EntityResponders)
	if errors.Is(err, context.Canceled) {
		log.Info("Change feed relay stopped")
		return nil
	}
	return err
}

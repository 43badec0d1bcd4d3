package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"gitcord/internal/discord"
	"gitcord/internal/publisher"
	"gitcord/internal/scheduler"
	"gitcord/internal/service"
	"gitcord/internal/source/github"
	"gitcord/internal/store/postgres"
)

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "poll the tracked feeds and relay new events",
		Action: func(c *cli.Context) error {
			cfg, logger, err := bootstrap(c)
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Info("connected to database")

			creds := cfg.Credentials()

			store := postgres.NewFeedStore(db)

			source := github.New(github.Config{
				BaseURL:  cfg.GitHub.BaseURL,
				Token:    creds.GitHub,
				Timeout:  cfg.GitHub.Timeout,
				PageSize: cfg.GitHub.PageSize,
				MaxPages: cfg.GitHub.MaxPages,
			}, logger)

			deliverer := discord.New(discord.Config{
				BaseURL:        cfg.Discord.BaseURL,
				Token:          creds.Discord,
				Timeout:        cfg.Discord.Timeout,
				MaxAttempts:    cfg.Discord.Retry.MaxAttempts,
				InitialBackoff: cfg.Discord.Retry.InitialBackoff,
				MaxBackoff:     cfg.Discord.Retry.MaxBackoff,
			}, logger)

			var bus service.EventPublisher
			if cfg.Bus.URL != "" {
				rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
					URL:        cfg.Bus.URL,
					Exchange:   cfg.Bus.Exchange,
					RoutingKey: cfg.Bus.RoutingKey,
					QueueName:  cfg.Bus.QueueName,
				}, logger)
				if err != nil {
					return err
				}
				defer rabbitMQ.Close()
				bus = rabbitMQ
			}

			pollService := service.NewPollService(source, store, deliverer, bus, logger)

			sched := scheduler.NewScheduler(pollService, store, scheduler.Config{
				Interval:       cfg.Poll.Interval,
				Workers:        cfg.Poll.Workers,
				CycleTimeout:   cfg.Poll.CycleTimeout,
				InitialBackoff: cfg.Poll.SourceBackoff.InitialBackoff,
				MaxBackoff:     cfg.Poll.SourceBackoff.MaxBackoff,
			}, logger)

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				sig := <-sigCh
				logger.Info("received shutdown signal", "signal", sig)
				cancel()
			}()

			logger.Info("starting gitcord daemon",
				"interval", cfg.Poll.Interval,
				"workers", cfg.Poll.Workers,
			)

			if err := sched.Start(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"gitcord/internal/discord"
	"gitcord/internal/domain"
	"gitcord/internal/source/github"
	"gitcord/internal/store/postgres"
)

func followCommand() *cli.Command {
	return &cli.Command{
		Name:  "follow",
		Usage: "start relaying a repository's or user's activity to a channel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "repo",
				Usage:    "repository (owner/name) or user to follow",
				Required: true,
			},
			&cli.Int64Flag{
				Name:     "channel",
				Usage:    "Discord channel ID to relay into",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := bootstrap(c)
			if err != nil {
				return err
			}

			subject := strings.TrimSpace(c.String("repo"))
			channelID := c.Int64("channel")
			if err := validateSubject(subject); err != nil {
				return err
			}

			creds := cfg.Credentials()

			source := github.New(github.Config{
				BaseURL: cfg.GitHub.BaseURL,
				Token:   creds.GitHub,
				Timeout: cfg.GitHub.Timeout,
			}, logger)

			exists, err := source.SubjectExists(c.Context, subject)
			if err != nil {
				return fmt.Errorf("check subject: %w", err)
			}
			if !exists {
				return fmt.Errorf("%q not found on GitHub", subject)
			}

			deliverer := discord.New(discord.Config{
				BaseURL: cfg.Discord.BaseURL,
				Token:   creds.Discord,
				Timeout: cfg.Discord.Timeout,
			}, logger)

			exists, err = deliverer.ChannelExists(c.Context, channelID)
			if err != nil {
				return fmt.Errorf("check channel: %w", err)
			}
			if !exists {
				return fmt.Errorf("channel %d is not accessible with the configured bot token", channelID)
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			store := postgres.NewFeedStore(db)
			err = store.Add(c.Context, &domain.Feed{
				Subject:   subject,
				ChannelID: channelID,
			})
			if errors.Is(err, domain.ErrDuplicateFeed) {
				return fmt.Errorf("%q is already followed", subject)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Now following %s into channel %d\n", subject, channelID)
			return nil
		},
	}
}

func unfollowCommand() *cli.Command {
	return &cli.Command{
		Name:  "unfollow",
		Usage: "stop relaying a repository's or user's activity",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "repo",
				Usage:    "repository (owner/name) or user to stop following",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := bootstrap(c)
			if err != nil {
				return err
			}

			subject := strings.TrimSpace(c.String("repo"))

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			store := postgres.NewFeedStore(db)
			err = store.Remove(c.Context, subject)
			if errors.Is(err, domain.ErrFeedNotFound) {
				return fmt.Errorf("%q is not followed", subject)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Stopped following %s\n", subject)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "show the followed feeds",
		Action: func(c *cli.Context) error {
			cfg, _, err := bootstrap(c)
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			store := postgres.NewFeedStore(db)
			feeds, err := store.List(c.Context)
			if err != nil {
				return err
			}

			if len(feeds) == 0 {
				fmt.Println("No feeds followed yet")
				return nil
			}

			for _, feed := range feeds {
				cursor := "never polled"
				if feed.Cursor != nil {
					cursor = fmt.Sprintf("cursor %d", *feed.Cursor)
				}
				fmt.Printf("%-40s -> channel %d (%s)\n", feed.Subject, feed.ChannelID, cursor)
			}
			return nil
		},
	}
}

// validateSubject rejects inputs that cannot name a GitHub user or an
// owner/name repository before any network round trip is made.
func validateSubject(subject string) error {
	if subject == "" {
		return errors.New("subject must not be empty")
	}
	parts := strings.Split(subject, "/")
	if len(parts) > 2 {
		return fmt.Errorf("%q is not a valid repository or user name", subject)
	}
	for _, part := range parts {
		if part == "" {
			return fmt.Errorf("%q is not a valid repository or user name", subject)
		}
	}
	return nil
}

package main

import (
	"context"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/glizzus/voicelink/internal/config"
	"github.com/glizzus/voicelink/internal/worker"
)

func jobHandler(c *cli.Context) (worker.JobHandler, func(), error) {
	if c.Bool("dry-run") {
		return &worker.PrintingJobHandler{}, func() {}, nil
	}

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
	})
	return worker.NewRedisJobHandler(rdb, redisConfig.Stream), func() { _ = rdb.Close() }, nil
}

func enqueue(c *cli.Context, job worker.JoinJob) error {
	handler, closeHandler, err := jobHandler(c)
	if err != nil {
		return cli.Exit("Failed to load redis config: "+err.Error(), 1)
	}
	defer closeHandler()

	if err := handler.HandleJobs(context.WithoutCancel(c.Context), job); err != nil {
		return cli.Exit("Failed to enqueue job: "+err.Error(), 1)
	}
	log.Printf("Enqueued %s job for guild %s.", job.Action, job.GuildID)
	return nil
}

func guildFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "guild-id",
		Usage:    "ID of the guild to act in",
		Required: true,
	}
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:        "voicelink-cli",
		Description: "A development CLI tool for driving voicelink workers without Discord",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print jobs instead of enqueueing them",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "join",
				Usage: "Ask a worker to join a voice channel",
				Action: func(c *cli.Context) error {
					return enqueue(c, worker.JoinJob{
						Action:    worker.ActionJoin,
						GuildID:   c.String("guild-id"),
						ChannelID: c.String("channel-id"),
						SelfMute:  c.Bool("mute"),
						SelfDeaf:  c.Bool("deaf"),
					})
				},
				Flags: []cli.Flag{
					guildFlag(),
					&cli.StringFlag{
						Name:     "channel-id",
						Usage:    "ID of the voice channel to join",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "mute",
						Usage: "Join self-muted",
					},
					&cli.BoolFlag{
						Name:  "deaf",
						Usage: "Join self-deafened",
					},
				},
			},
			{
				Name:  "leave",
				Usage: "Ask a worker to leave voice in a guild",
				Action: func(c *cli.Context) error {
					return enqueue(c, worker.JoinJob{
						Action:  worker.ActionLeave,
						GuildID: c.String("guild-id"),
					})
				},
				Flags: []cli.Flag{guildFlag()},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}

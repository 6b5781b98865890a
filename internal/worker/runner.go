package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/glizzus/voicelink/internal/util"
	"github.com/glizzus/voicelink/internal/voice"
)

// Voice is the part of voice.Coordinator the runner needs.
type Voice interface {
	Join(ctx context.Context, req voice.JoinRequest) (voice.Connection, error)
	Disconnect(ctx context.Context, guildID string)
}

var _ Voice = (*voice.Coordinator)(nil)

type RunnerConfig struct {
	Voice    Voice
	Receiver JobReceiver
	// JoinOptions are applied before the job's own mute and deaf flags.
	JoinOptions []voice.JoinOption
	Logger      *slog.Logger
}

// Runner executes received jobs. Jobs for one guild run in the order they
// were received; different guilds run in parallel.
type Runner struct {
	voice       Voice
	receiver    JobReceiver
	joinOptions []voice.JoinOption
	logger      *slog.Logger
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		voice:       cfg.Voice,
		receiver:    cfg.Receiver,
		joinOptions: cfg.JoinOptions,
		logger:      cfg.Logger,
	}
}

// Run receives and executes jobs until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		jobs, err := r.receiver.ReceiveJobs(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to receive jobs: %w", err)
		}
		r.RunBatch(ctx, jobs)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// RunBatch executes jobs and acknowledges each one once it has run,
// whether it succeeded or not.
func (r *Runner) RunBatch(ctx context.Context, jobs []JoinJob) {
	order, byGuild := util.GroupBy(jobs, func(j JoinJob) string { return j.GuildID })

	var g errgroup.Group
	for _, guildID := range order {
		guildJobs := byGuild[guildID]
		g.Go(func() error {
			for _, job := range guildJobs {
				if err := r.Execute(ctx, job); err != nil {
					attrs := append(job.LogAttrs(), slog.Any("error", err))
					r.logger.Error("failed to execute voice job", attrs...)
				}
				if err := r.receiver.Ack(context.WithoutCancel(ctx), job); err != nil {
					r.logger.Warn("failed to acknowledge voice job", "jobID", job.ID, "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) Execute(ctx context.Context, job JoinJob) error {
	switch job.Action {
	case ActionJoin:
		opts := append(append([]voice.JoinOption(nil), r.joinOptions...),
			voice.WithSelfMute(job.SelfMute),
			voice.WithSelfDeaf(job.SelfDeaf),
		)
		conn, err := r.voice.Join(ctx, voice.NewJoinRequest(job.GuildID, job.ChannelID, opts...))
		if err != nil {
			return err
		}
		r.logger.Info("joined voice channel", "guildID", conn.GuildID(), "channelID", job.ChannelID)
		return nil
	case ActionLeave:
		r.voice.Disconnect(ctx, job.GuildID)
		return nil
	default:
		return fmt.Errorf("unknown job action %q", job.Action)
	}
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
)

// JoinJob asks a worker to move the bot in or out of a voice channel.
type JoinJob struct {
	// ID is the stream entry ID. It is empty until the job has been received.
	ID string

	Action    Action
	GuildID   string
	ChannelID string
	SelfMute  bool
	SelfDeaf  bool
}

func (j JoinJob) Validate() error {
	if j.GuildID == "" {
		return fmt.Errorf("job has no guild ID")
	}
	switch j.Action {
	case ActionJoin:
		if j.ChannelID == "" {
			return fmt.Errorf("join job for guild %s has no channel ID", j.GuildID)
		}
	case ActionLeave:
	default:
		return fmt.Errorf("unknown job action %q", j.Action)
	}
	return nil
}

// Values is the stream entry encoding of the job.
func (j JoinJob) Values() map[string]any {
	return map[string]any{
		"action":    string(j.Action),
		"guildID":   j.GuildID,
		"channelID": j.ChannelID,
		"selfMute":  strconv.FormatBool(j.SelfMute),
		"selfDeaf":  strconv.FormatBool(j.SelfDeaf),
	}
}

func (j JoinJob) LogAttrs() []any {
	return []any{
		slog.String("jobID", j.ID),
		slog.String("action", string(j.Action)),
		slog.String("guildID", j.GuildID),
		slog.String("channelID", j.ChannelID),
	}
}

// JobFromValues decodes a stream entry.
func JobFromValues(id string, values map[string]any) (JoinJob, error) {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}
	flag := func(key string) (bool, error) {
		v := str(key)
		if v == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		return b, nil
	}

	job := JoinJob{
		ID:        id,
		Action:    Action(str("action")),
		GuildID:   str("guildID"),
		ChannelID: str("channelID"),
	}

	var err error
	if job.SelfMute, err = flag("selfMute"); err != nil {
		return JoinJob{}, err
	}
	if job.SelfDeaf, err = flag("selfDeaf"); err != nil {
		return JoinJob{}, err
	}
	if err := job.Validate(); err != nil {
		return JoinJob{}, err
	}
	return job, nil
}

type JobHandler interface {
	HandleJobs(ctx context.Context, jobs ...JoinJob) error
}

// PrintingJobHandler logs jobs instead of enqueueing them.
type PrintingJobHandler struct{}

func (h *PrintingJobHandler) HandleJobs(ctx context.Context, jobs ...JoinJob) error {
	for _, job := range jobs {
		slog.InfoContext(ctx, "Handling voice job", job.LogAttrs()...)
	}
	return nil
}

type JobReceiver interface {
	ReceiveJobs(ctx context.Context) ([]JoinJob, error)
	Ack(ctx context.Context, jobs ...JoinJob) error
}

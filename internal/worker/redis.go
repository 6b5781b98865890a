package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisJobHandler struct {
	client *redis.Client
	stream string
}

var _ JobHandler = (*RedisJobHandler)(nil)

func NewRedisJobHandler(client *redis.Client, stream string) *RedisJobHandler {
	return &RedisJobHandler{client: client, stream: stream}
}

func (h *RedisJobHandler) HandleJobs(ctx context.Context, jobs ...JoinJob) error {
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return err
		}
	}

	_, err := h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, job := range jobs {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: h.stream,
				Values: job.Values(),
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue %d jobs: %w", len(jobs), err)
	}
	return nil
}

const (
	defaultReceiveBlock = 5 * time.Second
	defaultReceiveCount = 16
)

type RedisJobReceiver struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	count    int64
	logger   *slog.Logger
}

var _ JobReceiver = (*RedisJobReceiver)(nil)

// NewRedisJobReceiver joins the consumer group, creating the stream and
// group when they do not exist yet.
func NewRedisJobReceiver(ctx context.Context, client *redis.Client, stream, group, consumer string) (*RedisJobReceiver, error) {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", group, err)
	}

	return &RedisJobReceiver{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    defaultReceiveBlock,
		count:    defaultReceiveCount,
		logger:   slog.Default(),
	}, nil
}

// ReceiveJobs blocks for a while waiting for new entries. It returns no jobs
// and no error when nothing arrived. Malformed entries are acknowledged and
// dropped.
func (r *RedisJobReceiver) ReceiveJobs(ctx context.Context) ([]JoinJob, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, ">"},
		Count:    r.count,
		Block:    r.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from stream %s: %w", r.stream, err)
	}

	var (
		jobs      []JoinJob
		malformed []string
	)
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			job, err := JobFromValues(msg.ID, msg.Values)
			if err != nil {
				r.logger.Warn("dropping malformed voice job", "jobID", msg.ID, "error", err)
				malformed = append(malformed, msg.ID)
				continue
			}
			jobs = append(jobs, job)
		}
	}

	if len(malformed) > 0 {
		if err := r.client.XAck(ctx, r.stream, r.group, malformed...).Err(); err != nil {
			r.logger.Warn("failed to acknowledge malformed jobs", "error", err)
		}
	}
	return jobs, nil
}

func (r *RedisJobReceiver) Ack(ctx context.Context, jobs ...JoinJob) error {
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job.ID != "" {
			ids = append(ids, job.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if err := r.client.XAck(ctx, r.stream, r.group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge jobs: %w", err)
	}
	return nil
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/hibiken/asynq"
)

type Client struct {
	client      *asynq.Client
	queue       string
	storageName string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName, storageName string) *Client {
	return &Client{
		client:      asynq.NewClient(redisOpt),
		queue:       queueName,
		storageName: storageName,
	}
}

// EnqueueProbe schedules one probe of feature. While a probe for the same
// capability and snapshot is still queued, further calls are no-ops.
func (c *Client) EnqueueProbe(ctx context.Context, feature capability.Capability) error {
	task, err := NewProbeCapabilityTask(ProbeCapabilityPayload{
		Capability:  feature,
		StorageName: c.storageName,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.TaskID(c.storageName+":"+string(feature)),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue probe %s: %w", feature, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

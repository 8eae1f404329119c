package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/staffcore/internal/config"
	"github.com/nikhilbhutani/staffcore/internal/mail"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type Client struct {
	client enqueuer
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Send queues m for delivery by the worker, making Client a mail.Sender.
func (c *Client) Send(ctx context.Context, m mail.Message) error {
	payload := MailSendPayload{Message: m}
	if id := tenant.IDFromContext(ctx); id != uuid.Nil {
		payload.TenantID = id.String()
	}
	return c.enqueue(ctx, TypeMailSend, payload, asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
}

// EnqueueTeishokubiRebuild schedules a from-scratch rebuild of one tenant,
// or of all tenants when tenantID is uuid.Nil.
func (c *Client) EnqueueTeishokubiRebuild(ctx context.Context, tenantID uuid.UUID) error {
	payload := TeishokubiRebuildPayload{}
	if tenantID != uuid.Nil {
		payload.TenantID = tenantID.String()
	}
	return c.enqueue(ctx, TypeTeishokubiRebuild, payload, asynq.MaxRetry(2), asynq.Timeout(10*time.Minute))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}

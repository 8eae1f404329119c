package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/staffcore/internal/mail"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestSendEnqueuesMail(t *testing.T) {
	fe := &fakeEnqueuer{}
	c := &Client{client: fe}
	tid := uuid.New()
	ctx := tenant.WithTenantID(context.Background(), tid)

	require.NoError(t, c.Send(ctx, mail.Message{To: "a@example.com", Subject: "hi", Body: "body"}))
	require.Len(t, fe.tasks, 1)
	assert.Equal(t, TypeMailSend, fe.tasks[0].Type())

	var p MailSendPayload
	require.NoError(t, json.Unmarshal(fe.tasks[0].Payload(), &p))
	assert.Equal(t, "a@example.com", p.To)
	assert.Equal(t, tid.String(), p.TenantID)
}

func TestEnqueueTeishokubiRebuild(t *testing.T) {
	fe := &fakeEnqueuer{}
	c := &Client{client: fe}

	require.NoError(t, c.EnqueueTeishokubiRebuild(context.Background(), uuid.Nil))
	var p TeishokubiRebuildPayload
	require.NoError(t, json.Unmarshal(fe.tasks[0].Payload(), &p))
	assert.Empty(t, p.TenantID)
	assert.JSONEq(t, `{}`, string(fe.tasks[0].Payload()))
}

func TestEnqueueFailureIsWrapped(t *testing.T) {
	boom := errors.New("redis down")
	c := &Client{client: &fakeEnqueuer{err: boom}}
	err := c.Send(context.Background(), mail.Message{To: "a@example.com"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), TypeMailSend)
}

func TestHandlersRegistry(t *testing.T) {
	r := NewHandlersRegistry()
	var got string
	r.RegisterFunc(TypeMailSend, func(ctx context.Context, task *asynq.Task) error {
		got = task.Type()
		return nil
	})
	assert.Equal(t, []string{TypeMailSend}, r.Types())

	require.NoError(t, r.Mux().ProcessTask(context.Background(), asynq.NewTask(TypeMailSend, nil)))
	assert.Equal(t, TypeMailSend, got)
}

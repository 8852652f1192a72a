// Package replication applies documents replicated from other devices. The
// apply path is an ordinary revision-checked write, so it races with local
// writers the same way they race with each other.
package replication

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tinoosan/tillbook/internal/docstore"
)

const (
	// QueueDefault is used when no queue is configured.
	QueueDefault = "replication"
	// TaskApplyDocument carries one document to apply locally.
	TaskApplyDocument = "replication:apply"
)

type ApplyPayload struct {
	Origin   string            `json:"origin"`
	Document docstore.Document `json:"document"`
}

func NewApplyTask(origin string, doc docstore.Document) (*asynq.Task, error) {
	data, err := json.Marshal(ApplyPayload{Origin: origin, Document: doc})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskApplyDocument, data), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher wraps a Store and enqueues every successful write for the
// devices that replicate from this one. A failed enqueue is logged and does
// not undo the local write.
type Publisher struct {
	docstore.Store
	queue  Enqueuer
	name   string
	origin string
	log    *slog.Logger
}

func NewPublisher(store docstore.Store, queue Enqueuer, queueName, origin string, log *slog.Logger) *Publisher {
	if queueName == "" {
		queueName = QueueDefault
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{Store: store, queue: queue, name: queueName, origin: origin, log: log}
}

func (p *Publisher) Put(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	saved, err := p.Store.Put(ctx, doc)
	if err != nil {
		return saved, err
	}
	task, err := NewApplyTask(p.origin, saved)
	if err != nil {
		p.log.Error("replication encode", "doc_id", saved.ID, "err", err)
		return saved, nil
	}
	if _, err := p.queue.EnqueueContext(ctx, task, asynq.Queue(p.name)); err != nil {
		p.log.Warn("replication enqueue", "doc_id", saved.ID, "err", err)
	}
	return saved, nil
}

package taskqueue

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log interface {
	Info(string, ...zapcore.Field)
}

// Task is a unit of deferred work executed by the queue's worker.
type Task func(context.Context) error

// Queue is a single-slot task queue: at most one task is in flight and at
// most one is pending. Submitting while a task is pending replaces it, so
// the latest submission always wins.
type Queue struct {
	slot chan Task
	log  Log
}

func NewQueue(log Log) *Queue {
	return &Queue{
		slot: make(chan Task, 1),
		log:  log,
	}
}

// Submit hands a task to the worker, superseding any still-undelivered one.
func (q *Queue) Submit(task Task) {
	for {
		select {
		case q.slot <- task:
			return
		default:
		}

		select {
		case <-q.slot:
			q.log.Info("superseding pending task with a newer one")
		default:
		}
	}
}

// RunBackground processes tasks until the context is cancelled. Tasks run
// strictly one at a time.
func (q *Queue) RunBackground(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.slot:
			if err := task(ctx); err != nil {
				q.log.Info("task failed: ", zap.Error(err))
			}
		}
	}
}

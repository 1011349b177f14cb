package input

import (
	"context"
	"fmt"
)

// Action runs on the worker goroutine in response to a button.
type Action func(ctx context.Context) error

// Worker drains the queue on a single goroutine.
type Worker struct {
	queue    *Queue
	bindings map[Button]Action
	logger   Logger
}

// NewWorker creates a worker for queue. Buttons without a binding are
// logged and ignored.
func NewWorker(queue *Queue, bindings map[Button]Action) *Worker {
	return &Worker{
		queue:    queue,
		bindings: bindings,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the worker.
func (w *Worker) SetLogger(l Logger) {
	w.logger = l
}

// Submit queues a deferred task. It never blocks and reports false when
// the queue is full.
func (w *Worker) Submit(name string, run func(ctx context.Context) error) bool {
	return w.queue.Push(Event{Kind: KindTask, Task: Task{Name: name, Run: run}})
}

// Run processes events until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.queue.C():
			w.handle(ctx, ev)
		}
	}
}

func (w *Worker) handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("input action panic recovered", "event", ev.Name(), "panic", fmt.Sprint(r))
		}
	}()

	var err error
	switch ev.Kind {
	case KindTask:
		if ev.Task.Run == nil {
			return
		}
		err = ev.Task.Run(ctx)
	default:
		action, ok := w.bindings[ev.Button]
		if !ok {
			w.logger.Debug("no action bound", "button", ev.Button.String())
			return
		}
		err = action(ctx)
	}

	if err != nil {
		w.logger.Warn("input action failed", "event", ev.Name(), "error", err)
		return
	}
	w.logger.Debug("input action done", "event", ev.Name())
}

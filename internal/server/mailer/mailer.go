// Package mailer implements outbound notification dispatch. Submission is
// fire-and-forget: protocol code never waits for delivery, and delivery
// failures surface on a separate failure stream carrying the original task.
package mailer

import (
	"context"
	"errors"
	"sync"

	"github.com/identkit/identkit/internal/logging"
)

// ErrQueueFull reports a task rejected because the dispatch queue was full.
var ErrQueueFull = errors.New("mail queue full")

// Template identifiers accepted by Task.Template.
const (
	TemplateVerification = "verification"
	TemplateRecovery     = "password-recovery"
)

// Task describes one outbound notification.
type Task struct {
	Recipient string
	Subject   string
	Template  string
	Locals    map[string]string
}

// Failure carries a task whose delivery failed, for out-of-band handling.
type Failure struct {
	Task Task
	Err  error
}

// Dispatcher accepts tasks for asynchronous delivery.
type Dispatcher interface {
	Submit(task Task)
}

// Sender performs one delivery attempt.
type Sender func(ctx context.Context, task Task) error

// QueueDispatcher runs a single delivery worker over a buffered queue.
// Submit never blocks the caller: when the queue is full the task goes
// straight to the failure stream.
type QueueDispatcher struct {
	send     Sender
	tasks    chan Task
	failures chan Failure
	logger   logging.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewQueueDispatcher(send Sender, logger logging.Logger) *QueueDispatcher {
	d := &QueueDispatcher{
		send:     send,
		tasks:    make(chan Task, 64),
		failures: make(chan Failure, 64),
		logger:   logger,
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *QueueDispatcher) Submit(task Task) {
	select {
	case d.tasks <- task:
	default:
		d.fail(task, ErrQueueFull)
	}
}

// Failures returns the out-of-band delivery-failure stream.
func (d *QueueDispatcher) Failures() <-chan Failure {
	return d.failures
}

// Close stops the worker after draining queued tasks.
func (d *QueueDispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.tasks)
		<-d.done
	})
}

func (d *QueueDispatcher) run() {
	defer close(d.done)
	for task := range d.tasks {
		if err := d.send(context.Background(), task); err != nil {
			d.fail(task, err)
		}
	}
}

func (d *QueueDispatcher) fail(task Task, err error) {
	select {
	case d.failures <- Failure{Task: task, Err: err}:
	default:
		// nobody is draining failures; at least leave a trace
		d.logger.Error(context.Background(), "mail delivery failed and failure stream is full",
			"recipient", task.Recipient, "template", task.Template, "error", err.Error())
	}
}

package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/identkit/identkit/internal/logging"
)

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func TestQueueDispatcher_Delivers(t *testing.T) {
	t.Parallel()

	delivered := make(chan Task, 1)
	d := NewQueueDispatcher(func(ctx context.Context, task Task) error {
		delivered <- task
		return nil
	}, discardLogger())
	defer d.Close()

	d.Submit(Task{Recipient: "test@test.com", Template: TemplateVerification})

	select {
	case task := <-delivered:
		if task.Recipient != "test@test.com" {
			t.Fatalf("unexpected task: %+v", task)
		}
	case <-time.After(time.Second):
		t.Fatalf("task never delivered")
	}
}

func TestQueueDispatcher_FailureCarriesOriginalTask(t *testing.T) {
	t.Parallel()

	boom := errors.New("smtp down")
	d := NewQueueDispatcher(func(ctx context.Context, task Task) error {
		return boom
	}, discardLogger())
	defer d.Close()

	submitted := Task{
		Recipient: "test@test.com",
		Subject:   "Please confirm your email address",
		Template:  TemplateVerification,
		Locals:    map[string]string{"link": "http://localhost/confirm/x"},
	}
	d.Submit(submitted)

	select {
	case failure := <-d.Failures():
		if !errors.Is(failure.Err, boom) {
			t.Fatalf("unexpected error: %v", failure.Err)
		}
		if failure.Task.Recipient != submitted.Recipient || failure.Task.Locals["link"] != submitted.Locals["link"] {
			t.Fatalf("failure lost the original payload: %+v", failure.Task)
		}
	case <-time.After(time.Second):
		t.Fatalf("failure never surfaced")
	}
}

func TestQueueDispatcher_SubmitNeverBlocks(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	d := NewQueueDispatcher(func(ctx context.Context, task Task) error {
		<-block
		return nil
	}, discardLogger())
	defer func() {
		close(block)
		d.Close()
	}()

	done := make(chan struct{})
	go func() {
		// far more tasks than queue capacity
		for i := 0; i < 500; i++ {
			d.Submit(Task{Recipient: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Submit blocked the caller")
	}
}

func TestRenderBody(t *testing.T) {
	t.Parallel()

	body := renderBody(Task{
		Template: TemplateRecovery,
		Locals:   map[string]string{"username": "username", "link": "http://x/recover/abc", "window": "45 minutes"},
	})
	if !strings.Contains(body, "http://x/recover/abc") || !strings.Contains(body, "username") {
		t.Fatalf("recovery body missing payload: %q", body)
	}
	if !strings.Contains(body, "expires in 45 minutes") {
		t.Fatalf("recovery body missing expiry window: %q", body)
	}

	body = renderBody(Task{
		Template: TemplateRecovery,
		Locals:   map[string]string{"username": "username", "link": "http://x/recover/abc"},
	})
	if strings.Contains(body, "expires in") {
		t.Fatalf("recovery body invented an expiry window: %q", body)
	}

	body = renderBody(Task{Template: "unknown", Locals: map[string]string{"link": "http://x"}})
	if body != "http://x" {
		t.Fatalf("fallback body: %q", body)
	}
}

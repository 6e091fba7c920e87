// Package dispatch fans committed task changes out to notification, activity
// and chat sinks.
package dispatch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"coinline/internal/domain"
	"coinline/internal/metrics"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type ActivityRecorder interface {
	Record(ctx context.Context, e domain.ActivityEntry) error
}

type ChatAnnouncer interface {
	Announce(ctx context.Context, m domain.ChatMessage) error
}

// ChatHistory resolves earlier chat messages, used to quote a submission when
// it is approved or rejected.
type ChatHistory interface {
	Message(ctx context.Context, projectID, messageID string) (domain.ChatMessage, error)
}

// Effects is everything one committed operation wants to emit.
type Effects struct {
	Chat          *domain.ChatMessage
	Activity      *domain.ActivityEntry
	Notifications []domain.Notification
}

func (e Effects) Empty() bool {
	return e.Chat == nil && e.Activity == nil && len(e.Notifications) == 0
}

// Dispatcher delivers Effects. Each sink call is isolated: an error or panic
// is logged and counted, and never reaches the caller or the other sinks.
type Dispatcher struct {
	Notifiers  []Notifier
	Recorders  []ActivityRecorder
	Announcers []ChatAnnouncer
	Log        logrus.FieldLogger
	// Async runs every sink call on its own goroutine, detached from the
	// caller's cancellation. Wait blocks until they finish.
	Async bool

	wg sync.WaitGroup
}

func (d *Dispatcher) Dispatch(ctx context.Context, fx Effects) {
	if d == nil || fx.Empty() {
		return
	}
	fields := logrus.Fields{}
	if fx.Activity != nil {
		fields["task_id"] = fx.Activity.TaskID
		fields["event"] = fx.Activity.Type
	}
	if fx.Chat != nil {
		for _, a := range d.Announcers {
			a, msg := a, *fx.Chat
			d.run(ctx, "chat", fields, func(ctx context.Context) error { return a.Announce(ctx, msg) })
		}
	}
	if fx.Activity != nil {
		for _, r := range d.Recorders {
			r, entry := r, *fx.Activity
			d.run(ctx, "activity", fields, func(ctx context.Context) error { return r.Record(ctx, entry) })
		}
	}
	for _, n := range fx.Notifications {
		for _, sink := range d.Notifiers {
			sink, n := sink, n
			d.run(ctx, "notification", fields, func(ctx context.Context) error { return sink.Notify(ctx, n) })
		}
	}
}

// Wait blocks until all asynchronous deliveries have finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, sink string, fields logrus.Fields, fn func(context.Context) error) {
	if !d.Async {
		d.guard(ctx, sink, fields, fn)
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.guard(ctx, sink, fields, fn)
	}()
}

func (d *Dispatcher) guard(ctx context.Context, sink string, fields logrus.Fields, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDispatchFailure(ctx, sink)
			d.logger().WithFields(fields).WithField("sink", sink).Errorf("side effect panicked: %v", r)
		}
	}()
	if err := fn(ctx); err != nil {
		metrics.RecordDispatchFailure(ctx, sink)
		d.logger().WithFields(fields).WithField("sink", sink).WithError(err).Warn("side effect failed")
	}
}

func (d *Dispatcher) logger() logrus.FieldLogger {
	if d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}

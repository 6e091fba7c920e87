package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"coinline/internal/domain"
	"coinline/internal/logging"
)

type recordingSink struct {
	mu            sync.Mutex
	notifications []domain.Notification
	activity      []domain.ActivityEntry
	chat          []domain.ChatMessage
}

func (s *recordingSink) Notify(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *recordingSink) Record(_ context.Context, e domain.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, e)
	return nil
}

func (s *recordingSink) Announce(_ context.Context, m domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append(s.chat, m)
	return nil
}

type failingSink struct{}

func (failingSink) Notify(context.Context, domain.Notification) error  { return errors.New("smtp down") }
func (failingSink) Record(context.Context, domain.ActivityEntry) error { panic("recorder exploded") }
func (failingSink) Announce(context.Context, domain.ChatMessage) error {
	return errors.New("chat down")
}

func sampleEffects() Effects {
	return Effects{
		Chat:     &domain.ChatMessage{ID: "m1", Content: "submitted", MessageType: domain.MessageTaskSubmission},
		Activity: &domain.ActivityEntry{Type: "task_submitted", TaskID: "t1"},
		Notifications: []domain.Notification{
			{ID: "n1", RecipientID: "creator"},
		},
	}
}

func TestDispatchIsolatesFailingSinks(t *testing.T) {
	good := &recordingSink{}
	d := &Dispatcher{
		Notifiers:  []Notifier{failingSink{}, good},
		Recorders:  []ActivityRecorder{failingSink{}, good},
		Announcers: []ChatAnnouncer{failingSink{}, good},
		Log:        logging.Discard(),
	}
	d.Dispatch(context.Background(), sampleEffects())
	if len(good.chat) != 1 || len(good.activity) != 1 || len(good.notifications) != 1 {
		t.Fatalf("healthy sink missed effects: chat=%d activity=%d notifications=%d", len(good.chat), len(good.activity), len(good.notifications))
	}
}

func TestDispatchAsyncSurvivesCancelledContext(t *testing.T) {
	good := &recordingSink{}
	d := &Dispatcher{
		Notifiers:  []Notifier{good},
		Recorders:  []ActivityRecorder{good},
		Announcers: []ChatAnnouncer{good, failingSink{}},
		Log:        logging.Discard(),
		Async:      true,
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, sampleEffects())
	cancel()
	d.Wait()
	if len(good.chat) != 1 || len(good.activity) != 1 || len(good.notifications) != 1 {
		t.Fatalf("async delivery incomplete: %+v", good)
	}
}

func TestNilDispatcherAndEmptyEffects(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(context.Background(), sampleEffects())
	d.Wait()
	good := &recordingSink{}
	(&Dispatcher{Recorders: []ActivityRecorder{good}}).Dispatch(context.Background(), Effects{})
	if len(good.activity) != 0 {
		t.Fatalf("empty effects should emit nothing")
	}
}

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

type captureSink struct {
	mu            sync.Mutex
	err           error
	notifications []domain.Notification
}

func (s *captureSink) Publish(n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

func TestDispatcher_DeliversQueuedNotifications(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	dispatcher := NewDispatcher(sink, WithQueueSize(8))
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	for i := 0; i < 3; i++ {
		if err := dispatcher.Publish(domain.Notification{ID: "n", Subject: "test"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for sink.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 delivered notifications, got %d", sink.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	// Воркер не запущен: очередь ёмкостью 1 переполняется вторым сообщением.
	dispatcher := NewDispatcher(&captureSink{}, WithQueueSize(1))

	if err := dispatcher.Publish(domain.Notification{ID: "first"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := dispatcher.Publish(domain.Notification{ID: "second"}); err != nil {
		t.Fatalf("second publish must not fail, drop is best-effort: %v", err)
	}

	if len(dispatcher.queue) != 1 {
		t.Fatalf("expected exactly one queued notification, got %d", len(dispatcher.queue))
	}
}

func TestDispatcher_DrainsOnStop(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	dispatcher := NewDispatcher(sink, WithQueueSize(8))

	for i := 0; i < 5; i++ {
		_ = dispatcher.Publish(domain.Notification{ID: "n"})
	}

	dispatcher.Start(context.Background())
	dispatcher.Stop()

	if sink.count() != 5 {
		t.Fatalf("expected 5 notifications delivered before stop, got %d", sink.count())
	}
}

func TestDispatcher_SinkErrorDoesNotStopWorker(t *testing.T) {
	t.Parallel()

	sink := &captureSink{err: errors.New("broker unavailable")}
	dispatcher := NewDispatcher(sink, WithQueueSize(8))
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	_ = dispatcher.Publish(domain.Notification{ID: "n1"})

	// Воркер переживает ошибку sink'а и продолжает принимать сообщения.
	time.Sleep(20 * time.Millisecond)
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	_ = dispatcher.Publish(domain.Notification{ID: "n2"})

	deadline := time.Now().Add(time.Second)
	for sink.count() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("worker stopped delivering after a sink error")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLogSink_Publish(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	if err := sink.Publish(domain.Notification{ID: "n", Subject: "test", Body: "body"}); err != nil {
		t.Fatalf("log sink publish: %v", err)
	}
}

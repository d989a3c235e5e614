package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujicara/cbt-backend/internal/model"
)

func newRunningController(t *testing.T, manager *Manager, participantID int, settings model.ExamSettings, sink ResultSink, startedAt time.Time) *Controller {
	t.Helper()
	settings.DetectIntegrityViolations = false // start directly in RUNNING

	ctrl, err := NewController(context.Background(), participantID, makeQuestions(2), settings, startedAt, Options{
		Store: newFakeStore(),
		Sink:  sink,
		Log:   zerolog.Nop(),
		Notify: func(n Notification) {
			manager.Dispatch(participantID, n)
		},
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl
}

func TestManagerTicksSessionToExpiry(t *testing.T) {
	manager := NewManager(5*time.Millisecond, zerolog.Nop())
	defer manager.Shutdown()

	sink := &fakeSink{}
	settings := testSettings()
	settings.DurationSeconds = 1
	// Started 900ms ago with a 1s budget: expires shortly after attach, so
	// the subscriber below is registered before the expiry tick fires.
	ctrl := newRunningController(t, manager, 1, settings, sink, time.Now().Add(-900*time.Millisecond))

	manager.Attach(1, ctrl)

	notifications, unsubscribe := manager.Subscribe(1)
	defer unsubscribe()

	deadline := time.After(2 * time.Second)
	for !ctrl.Terminal() {
		select {
		case <-deadline:
			t.Fatal("session never expired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := ctrl.Snapshot(time.Now()).FinishReason; got != FinishReasonTimeExpired {
		t.Fatalf("finish reason %s, want TIME_EXPIRED", got)
	}

	select {
	case n := <-notifications:
		if n.Kind != NoteFinished {
			t.Fatalf("notification kind %s, want finished", n.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("finished notification never delivered")
	}
}

func TestManagerAttachReplacesPrevious(t *testing.T) {
	manager := NewManager(time.Hour, zerolog.Nop()) // interval long enough to never tick
	defer manager.Shutdown()

	sink := &fakeSink{}
	first := newRunningController(t, manager, 1, testSettings(), sink, time.Now())
	second := newRunningController(t, manager, 1, testSettings(), sink, time.Now())

	manager.Attach(1, first)
	manager.Attach(1, second)

	if got := manager.Get(1); got != second {
		t.Fatal("Get must return the latest controller")
	}
}

func TestManagerEvictsTerminalSession(t *testing.T) {
	manager := NewManager(5*time.Millisecond, zerolog.Nop())
	defer manager.Shutdown()

	sink := &fakeSink{}
	settings := testSettings()
	settings.DurationSeconds = 1
	ctrl := newRunningController(t, manager, 1, settings, sink, time.Now().Add(-2*time.Second))

	manager.Attach(1, ctrl)

	// The expiry tick finishes the session; the registration must then be
	// gone so finished attempts are not retained for the process lifetime.
	deadline := time.After(2 * time.Second)
	for manager.Get(1) != nil {
		select {
		case <-deadline:
			t.Fatal("terminal session never evicted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !ctrl.Terminal() {
		t.Fatal("controller must be terminal after eviction")
	}
}

func TestManagerSkipsTerminalAttach(t *testing.T) {
	manager := NewManager(time.Hour, zerolog.Nop())
	defer manager.Shutdown()

	ctrl, err := NewController(context.Background(), 1, nil, testSettings(), time.Now(), Options{
		Sink: &fakeSink{},
		Log:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if ctrl.Phase() != PhaseNoQuestions {
		t.Fatalf("phase %s, want NO_QUESTIONS", ctrl.Phase())
	}

	manager.Attach(1, ctrl)
	if manager.Get(1) != nil {
		t.Fatal("terminal controller must not be registered")
	}
}

func TestSubscribeUnknownParticipant(t *testing.T) {
	manager := NewManager(time.Hour, zerolog.Nop())
	defer manager.Shutdown()

	ch, unsubscribe := manager.Subscribe(99)
	defer unsubscribe()

	// Channel must be closed, not nil, so consumer loops exit cleanly.
	if _, ok := <-ch; ok {
		t.Fatal("expected a closed channel for unknown participant")
	}
}

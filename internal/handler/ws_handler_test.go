package handler

import (
	"errors"
	"testing"

	"github.com/ujicara/cbt-backend/internal/response"
	"github.com/ujicara/cbt-backend/internal/session"
	ws "github.com/ujicara/cbt-backend/internal/websocket"
)

func TestWsErrCode(t *testing.T) {
	cases := []struct {
		err  error
		want response.ErrCode
	}{
		{session.ErrNotRunning, response.ErrSessionNotRunning},
		{session.ErrOptionOutOfRange, response.ErrOptionOutOfRange},
		{errors.New("boom"), response.ErrInternal},
	}
	for _, tc := range cases {
		if got := wsErrCode(tc.err); got != tc.want {
			t.Errorf("wsErrCode(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestNotificationEventMapping(t *testing.T) {
	warn := notificationEvent(session.Notification{Kind: session.NoteWarning, Message: "1 strike"})
	if ev, ok := warn.(ws.WarningEvent); !ok || ev.Event != ws.EventWarning {
		t.Fatalf("warning notification mapped to %T", warn)
	}

	failed := notificationEvent(session.Notification{Kind: session.NoteSubmitFailed, Message: "sink down"})
	ev, ok := failed.(ws.ErrorResponse)
	if !ok {
		t.Fatalf("submit failure mapped to %T", failed)
	}
	if ev.Code != response.ErrSubmissionFailed {
		t.Fatalf("submit failure code %s, want %s", ev.Code, response.ErrSubmissionFailed)
	}

	finished := notificationEvent(session.Notification{Kind: session.NoteFinished})
	if _, ok := finished.(ws.FinishedEvent); !ok {
		t.Fatalf("finished notification mapped to %T", finished)
	}
}

package websocket

import (
	"github.com/ujicara/cbt-backend/internal/response"
	"github.com/ujicara/cbt-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer        Action = "answer"
	ActionGoto          Action = "goto"
	ActionNext          Action = "next"
	ActionPrevious      Action = "previous"
	ActionVisibility    Action = "visibility"
	ActionFullscreen    Action = "fullscreen"
	ActionFinishRequest Action = "finish_request"
	ActionFinishConfirm Action = "finish_confirm"
	ActionFinishCancel  Action = "finish_cancel"
	ActionMuteToggle    Action = "mute_toggle"
	ActionPing          Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest selects an option for a question.
type AnswerRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"q_id"`
	Option     int    `json:"option"`
}

// GotoRequest jumps to a question by index. Index is clamped server-side.
type GotoRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// VisibilityRequest reports a page visibility change.
// State is "hidden" or "visible".
type VisibilityRequest struct {
	Action Action `json:"action"`
	State  string `json:"state"`
}

// FullscreenRequest reports a fullscreen transition.
// State is "entered", "exited" or "unsupported".
type FullscreenRequest struct {
	Action Action `json:"action"`
	State  string `json:"state"`
}

const (
	VisibilityHidden  = "hidden"
	VisibilityVisible = "visible"

	FullscreenEntered     = "entered"
	FullscreenExited      = "exited"
	FullscreenUnsupported = "unsupported"
)

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState    Event = "state"
	EventWarning  Event = "warning"
	EventFinished Event = "finished"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// StateEvent carries the full session snapshot. Sent on connect and after
// every state-changing action; the client derives its countdown from
// remaining_seconds rather than waiting for periodic pushes.
type StateEvent struct {
	Event    Event            `json:"event"`
	Snapshot session.Snapshot `json:"snapshot"`
}

// WarningEvent carries a proctoring warning (first fullscreen exit,
// tab-switch grace countdown started).
type WarningEvent struct {
	Event    Event            `json:"event"`
	Message  string           `json:"message"`
	Snapshot session.Snapshot `json:"snapshot"`
}

// FinishedEvent is the terminal notification for the attempt.
type FinishedEvent struct {
	Event    Event            `json:"event"`
	Reason   string           `json:"reason"`
	Snapshot session.Snapshot `json:"snapshot"`
}

type ErrorResponse struct {
	Event Event            `json:"event"`
	Code  response.ErrCode `json:"code,omitempty"`
	Error string           `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

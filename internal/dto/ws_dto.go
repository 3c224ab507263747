package dto

import "encoding/json"

// Envelope is every frame on the page bridge. Replies echo the request Id.
type Envelope struct {
	Type  string          `json:"type"`
	Id    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *BridgeError    `json:"error,omitempty"`
}

// BridgeError is a DOMException reported by the page (name + message).
type BridgeError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Inbound signal types pushed by the page.
const (
	SignalReply       = "reply"
	SignalFrame       = "frame"
	SignalHidden      = "visibility.hidden"
	SignalVisible     = "visibility.visible"
	SignalBlur        = "window.blur"
	SignalFocus       = "window.focus"
	SignalContextMenu = "contextmenu"
	SignalDevtools    = "devtools"
	SignalRecalibrate = "recalibrate"
)

// Outbound message types rendered by the page.
const (
	MessageWarning  = "proctor.warning"
	MessageLock     = "proctor.lock"
	MessageAdvisory = "proctor.advisory"
	MessageLog      = "activity.log"
	MessageTick     = "timer.tick"
	MessagePhase    = "exam.phase"
	MessagePrevent  = "prevent"
)

// Signal is the HTTP alternative to pushing a frame over the bridge.
type Signal struct {
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data,omitempty"`
}

type DevtoolsSignal struct {
	Combo string `json:"combo"`
}

type WarningMessage struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type LockMessage struct {
	Reason string `json:"reason"`
}

type AdvisoryMessage struct {
	Message string `json:"message"`
}

type TickMessage struct {
	Remaining int    `json:"remaining"`
	Display   string `json:"display"`
}

type PhaseMessage struct {
	Phase string `json:"phase"`
	Error string `json:"error,omitempty"`
}

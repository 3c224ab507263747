package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Message kinds exchanged with the exam page.
const (
	KindCameraOpen     = "camera.open"
	KindCameraStop     = "camera.stop"
	KindCameraSnapshot = "camera.snapshot"
	KindSurfaceAttach  = "surface.attach"
	KindSurfaceDetach  = "surface.detach"
)

// Bridge is the request/reply channel to the page that owns the real camera.
// *websocket.Hub implements it.
type Bridge interface {
	Request(ctx context.Context, attemptID, kind string, payload any) (json.RawMessage, error)
	Send(attemptID, kind string, payload any) error
}

// BridgeDevice opens the camera of the connected exam page through getUserMedia.
type BridgeDevice struct {
	bridge    Bridge
	attemptID string
}

func NewBridgeDevice(b Bridge, attemptID string) *BridgeDevice {
	return &BridgeDevice{bridge: b, attemptID: attemptID}
}

type openRequest struct {
	Video bool `json:"video"`
	Audio bool `json:"audio"`
}

type openReply struct {
	StreamID string `json:"stream_id"`
}

func (d *BridgeDevice) Open(ctx context.Context) (Stream, error) {
	raw, err := d.bridge.Request(ctx, d.attemptID, KindCameraOpen, openRequest{Video: true})
	if err != nil {
		return nil, mapDOMError(err)
	}
	var reply openReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, &AcquireError{Reason: ReasonOther, Err: fmt.Errorf("decode camera.open reply: %w", err)}
	}
	if reply.StreamID == "" {
		return nil, &AcquireError{Reason: ReasonNoDevice, Err: errors.New("page returned no stream")}
	}
	return &remoteStream{bridge: d.bridge, attemptID: d.attemptID, id: reply.StreamID}, nil
}

type snapshotReply struct {
	DataURL string `json:"data_url"`
}

// Snapshot asks the page for a still frame of the live stream as a data URL.
func (d *BridgeDevice) Snapshot(ctx context.Context) (string, error) {
	raw, err := d.bridge.Request(ctx, d.attemptID, KindCameraSnapshot, nil)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	var reply snapshotReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decode snapshot reply: %w", err)
	}
	if reply.DataURL == "" {
		return "", errors.New("snapshot: empty frame")
	}
	return reply.DataURL, nil
}

type remoteStream struct {
	bridge    Bridge
	attemptID string
	id        string
}

func (s *remoteStream) ID() string { return s.id }

// Stop asks the page to stop every track; delivery is best effort.
func (s *remoteStream) Stop() {
	_ = s.bridge.Send(s.attemptID, KindCameraStop, map[string]string{"stream_id": s.id})
}

// RemoteSurface is a video element on the exam page, addressed by its DOM id.
type RemoteSurface struct {
	bridge    Bridge
	attemptID string
	element   string
}

func NewRemoteSurface(b Bridge, attemptID, element string) *RemoteSurface {
	return &RemoteSurface{bridge: b, attemptID: attemptID, element: element}
}

func (r *RemoteSurface) Attach(s Stream) error {
	return r.bridge.Send(r.attemptID, KindSurfaceAttach, map[string]string{
		"element":   r.element,
		"stream_id": s.ID(),
	})
}

func (r *RemoteSurface) Detach() {
	_ = r.bridge.Send(r.attemptID, KindSurfaceDetach, map[string]string{"element": r.element})
}

// mapDOMError turns a getUserMedia DOMException name into a reason.
func mapDOMError(err error) error {
	var named interface{ ErrorName() string }
	if !errors.As(err, &named) {
		return &AcquireError{Reason: ReasonOther, Err: err}
	}
	switch named.ErrorName() {
	case "NotAllowedError", "SecurityError", "PermissionDeniedError":
		return &AcquireError{Reason: ReasonPermissionDenied, Err: err}
	case "NotFoundError", "OverconstrainedError", "DevicesNotFoundError":
		return &AcquireError{Reason: ReasonNoDevice, Err: err}
	default:
		return &AcquireError{Reason: ReasonOther, Err: err}
	}
}

package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
	ActionSend        Action = "send"
)

// ClientFrame is every inbound message: an action, the destination it
// targets, and an optional payload.
type ClientFrame struct {
	Action      Action          `json:"action"`
	Destination string          `json:"destination"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// ─── Frames (Server → Client) ───────────────────────────────────────

type FrameType string

const (
	FrameMessage FrameType = "message"
	FrameAck     FrameType = "ack"
	FrameError   FrameType = "error"
)

// ServerFrame is every outbound message.
type ServerFrame struct {
	Type        FrameType   `json:"type"`
	Destination string      `json:"destination,omitempty"`
	Payload     interface{} `json:"payload,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// ─── Destination grammar ────────────────────────────────────────────

// DestKind classifies a parsed destination pattern.
type DestKind int

const (
	// DestQueueExam is /queue/exam/{sessionId}/{warning|suspend|update}.
	DestQueueExam DestKind = iota
	// DestProctorExam is /topic/proctor/exam/{examId}/{...}.
	DestProctorExam
	// DestProctorSession is /topic/proctor/session/{sessionId}.
	DestProctorSession
	// DestAdmin is /topic/admin/{...}.
	DestAdmin
	// DestAppExam is the client-send target /app/exam/{sessionId}/{kind}.
	DestAppExam
)

// ErrBadDestination marks a destination outside the grammar.
var ErrBadDestination = errors.New("unrecognised destination")

// Destination is a parsed destination path.
type Destination struct {
	Kind      DestKind
	SessionID uuid.UUID // queue/exam, proctor/session and app/exam forms
	ExamID    uuid.UUID // proctor/exam form
	Channel   string    // trailing segment: warning, suspend, frame, alerts, …
}

// queue/exam channels a client may subscribe to.
const (
	ChannelWarning = "warning"
	ChannelSuspend = "suspend"
	ChannelUpdate  = "update"
)

// app/exam kinds a client may send.
const (
	KindFrame     = "frame"
	KindAudio     = "audio"
	KindEvent     = "event"
	KindHeartbeat = "heartbeat"
)

// ParseDestination validates a destination path against the closed grammar.
// Anything outside it is rejected before authorisation is even attempted.
func ParseDestination(raw string) (Destination, error) {
	parts := strings.Split(strings.TrimPrefix(raw, "/"), "/")

	switch {
	case len(parts) == 4 && parts[0] == "queue" && parts[1] == "exam":
		id, err := uuid.Parse(parts[2])
		if err != nil {
			return Destination{}, ErrBadDestination
		}
		switch parts[3] {
		case ChannelWarning, ChannelSuspend, ChannelUpdate:
			return Destination{Kind: DestQueueExam, SessionID: id, Channel: parts[3]}, nil
		}
		return Destination{}, ErrBadDestination

	case len(parts) >= 5 && parts[0] == "topic" && parts[1] == "proctor" && parts[2] == "exam":
		id, err := uuid.Parse(parts[3])
		if err != nil {
			return Destination{}, ErrBadDestination
		}
		return Destination{Kind: DestProctorExam, ExamID: id, Channel: strings.Join(parts[4:], "/")}, nil

	case len(parts) == 4 && parts[0] == "topic" && parts[1] == "proctor" && parts[2] == "session":
		id, err := uuid.Parse(parts[3])
		if err != nil {
			return Destination{}, ErrBadDestination
		}
		return Destination{Kind: DestProctorSession, SessionID: id}, nil

	case len(parts) >= 2 && parts[0] == "topic" && parts[1] == "admin":
		return Destination{Kind: DestAdmin, Channel: strings.Join(parts[2:], "/")}, nil

	case len(parts) == 4 && parts[0] == "app" && parts[1] == "exam":
		id, err := uuid.Parse(parts[2])
		if err != nil {
			return Destination{}, ErrBadDestination
		}
		switch parts[3] {
		case KindFrame, KindAudio, KindEvent, KindHeartbeat:
			return Destination{Kind: DestAppExam, SessionID: id, Channel: parts[3]}, nil
		}
		return Destination{}, ErrBadDestination
	}

	return Destination{}, ErrBadDestination
}

// ─── Destination builders (server-side publication targets) ─────────

// StudentQueue builds /queue/exam/{sessionId}/{channel}.
func StudentQueue(sessionID uuid.UUID, channel string) string {
	return fmt.Sprintf("/queue/exam/%s/%s", sessionID, channel)
}

// ProctorExamTopic builds /topic/proctor/exam/{examId}/{channel}.
func ProctorExamTopic(examID uuid.UUID, channel string) string {
	return fmt.Sprintf("/topic/proctor/exam/%s/%s", examID, channel)
}

// ProctorSessionTopic builds /topic/proctor/session/{sessionId}.
func ProctorSessionTopic(sessionID uuid.UUID) string {
	return fmt.Sprintf("/topic/proctor/session/%s", sessionID)
}

// AdminTopic builds /topic/admin/{channel}.
func AdminTopic(channel string) string {
	return fmt.Sprintf("/topic/admin/%s", channel)
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the closed vocabulary of proctoring signals. Unknown types are
// never coerced; the consumer routes them to the dead-letter queue.
type EventType string

const (
	EventFaceMissing        EventType = "FACE_MISSING"
	EventMultipleFaces      EventType = "MULTIPLE_FACES"
	EventGazeAway           EventType = "GAZE_AWAY"
	EventMouthOpen          EventType = "MOUTH_OPEN"
	EventPhoneDetected      EventType = "PHONE_DETECTED"
	EventNotesDetected      EventType = "NOTES_DETECTED"
	EventMultiplePersons    EventType = "MULTIPLE_PERSONS"
	EventAudioSpeech        EventType = "AUDIO_SPEECH"
	EventSuspiciousBehavior EventType = "SUSPICIOUS_BEHAVIOR"
	EventTabSwitch          EventType = "TAB_SWITCH"
	EventFullscreenExit     EventType = "FULLSCREEN_EXIT"
	EventCopyPaste          EventType = "COPY_PASTE"
	EventIdentityMismatch   EventType = "IDENTITY_MISMATCH"
	EventManualFlag         EventType = "MANUAL_FLAG"
)

// Severity grades a proctoring event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// EventSource identifies who produced an event.
type EventSource string

const (
	SourceAI      EventSource = "AI"
	SourceBrowser EventSource = "BROWSER"
	SourceSystem  EventSource = "SYSTEM"
	SourceManual  EventSource = "MANUAL"
)

// ProctoringEvent is an append-only log entry attributed to a session.
type ProctoringEvent struct {
	ID           uuid.UUID      `json:"id"`
	SessionID    uuid.UUID      `json:"session_id"`
	EventType    EventType      `json:"event_type"`
	Severity     Severity       `json:"severity"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Description  *string        `json:"description,omitempty"`
	SnapshotPath *string        `json:"snapshot_path,omitempty"`
	Source       EventSource    `json:"source"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ProctoringResult is the wire shape consumed from the results queue.
// Field names follow the inference service's JSON contract.
type ProctoringResult struct {
	SessionID    uuid.UUID      `json:"sessionId"`
	EventType    string         `json:"eventType"`
	Severity     string         `json:"severity"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Description  *string        `json:"description,omitempty"`
	SnapshotPath *string        `json:"snapshotPath,omitempty"`
	RiskScore    *float64       `json:"riskScore,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// FlagSessionRequest appends a manual proctor flag.
type FlagSessionRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// ProctorNoteRequest sets the free-text note on a session's summary.
type ProctorNoteRequest struct {
	Note string `json:"note" binding:"required,max=2000"`
}

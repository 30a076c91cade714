package model

import (
	"time"

	"github.com/google/uuid"
)

// BehaviorEventType is the browser-signal vocabulary. Behaviour events are
// kept apart from ProctoringEvents so high-volume browser noise never
// pollutes the scoring log.
type BehaviorEventType string

const (
	BehaviorTabSwitch      BehaviorEventType = "TAB_SWITCH"
	BehaviorCopyPaste      BehaviorEventType = "COPY_PASTE"
	BehaviorContextMenu    BehaviorEventType = "CONTEXT_MENU"
	BehaviorFullscreenExit BehaviorEventType = "FULLSCREEN_EXIT"
	BehaviorFocusLoss      BehaviorEventType = "FOCUS_LOSS"
)

// KnownBehaviorType reports whether t is part of the browser vocabulary.
func KnownBehaviorType(t string) bool {
	switch BehaviorEventType(t) {
	case BehaviorTabSwitch, BehaviorCopyPaste, BehaviorContextMenu,
		BehaviorFullscreenExit, BehaviorFocusLoss:
		return true
	}
	return false
}

// BehaviorEvent is an append-only browser-originated record.
type BehaviorEvent struct {
	ID         uuid.UUID         `json:"id"`
	SessionID  uuid.UUID         `json:"session_id"`
	EventType  BehaviorEventType `json:"event_type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

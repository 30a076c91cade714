package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationSummary aggregates proctoring events per session. Each counter
// equals the number of persisted events of that type; riskScore is
// monotonically non-decreasing and clamped to [0, 1].
type ViolationSummary struct {
	SessionID               uuid.UUID `json:"session_id"`
	RiskScore               float64   `json:"risk_score"`
	FaceAwayCount           int       `json:"face_away_count"`
	MultipleFaceCount       int       `json:"multiple_face_count"`
	GazeAwayCount           int       `json:"gaze_away_count"`
	MouthOpenCount          int       `json:"mouth_open_count"`
	PhoneDetectedCount      int       `json:"phone_detected_count"`
	NotesDetectedCount      int       `json:"notes_detected_count"`
	MultiplePersonsCount    int       `json:"multiple_persons_count"`
	AudioViolationCount     int       `json:"audio_violation_count"`
	SuspiciousBehaviorCount int       `json:"suspicious_behavior_count"`
	TabSwitchCount          int       `json:"tab_switch_count"`
	FullscreenExitCount     int       `json:"fullscreen_exit_count"`
	CopyPasteCount          int       `json:"copy_paste_count"`
	IdentityMismatchCount   int       `json:"identity_mismatch_count"`
	ManualFlagCount         int       `json:"manual_flag_count"`
	ProctorFlag             bool      `json:"proctor_flag"`
	ProctorNote             *string   `json:"proctor_note,omitempty"`
	LastUpdatedAt           time.Time `json:"last_updated_at"`
}

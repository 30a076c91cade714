package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/realtime"
	"github.com/rs/zerolog"
)

// NotificationService addresses typed realtime pushes to the right
// destinations. Callers invoke it only after the commit that motivated the
// notification, so clients never learn state that later rolls back.
type NotificationService struct {
	hub *realtime.Hub
	log zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(hub *realtime.Hub, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		hub: hub,
		log: log.With().Str("component", "notifications").Logger(),
	}
}

// WarningPayload is pushed to the student's warning queue.
type WarningPayload struct {
	EventType string `json:"event_type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	IssuedAt  int64  `json:"issued_at"`
}

// SuspendPayload is pushed to the student's suspend queue.
type SuspendPayload struct {
	SessionID   uuid.UUID `json:"session_id"`
	Reason      string    `json:"reason"`
	SuspendedAt time.Time `json:"suspended_at"`
}

// SessionUpdatePayload is pushed on session lifecycle changes.
type SessionUpdatePayload struct {
	SessionID     uuid.UUID  `json:"session_id"`
	Status        string     `json:"status"`
	ExtendedEndAt *time.Time `json:"extended_end_at,omitempty"`
	Score         *float64   `json:"score,omitempty"`
}

// ProctorAlertPayload is broadcast on the exam's proctor topic.
type ProctorAlertPayload struct {
	SessionID   uuid.UUID `json:"session_id"`
	EventType   string    `json:"event_type"`
	Severity    string    `json:"severity"`
	Confidence  *float64  `json:"confidence,omitempty"`
	Description *string   `json:"description,omitempty"`
	RiskScore   *float64  `json:"risk_score,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// WarnStudent pushes a typed warning to /queue/exam/{id}/warning.
func (s *NotificationService) WarnStudent(ctx context.Context, sessionID uuid.UUID, eventType model.EventType, severity model.Severity, message string) {
	s.publish(ctx, realtime.StudentQueue(sessionID, realtime.ChannelWarning), WarningPayload{
		EventType: string(eventType),
		Severity:  string(severity),
		Message:   message,
		IssuedAt:  time.Now().UnixMilli(),
	})
}

// NotifySuspension pushes the suspension to the student and a CRITICAL alert
// to the exam's proctor topic.
func (s *NotificationService) NotifySuspension(ctx context.Context, session *model.ExamSession, reason string) {
	s.publish(ctx, realtime.StudentQueue(session.ID, realtime.ChannelSuspend), SuspendPayload{
		SessionID:   session.ID,
		Reason:      reason,
		SuspendedAt: time.Now(),
	})
	s.publish(ctx, realtime.ProctorExamTopic(session.ExamID, "alerts"), ProctorAlertPayload{
		SessionID:   session.ID,
		EventType:   "SESSION_SUSPENDED",
		Severity:    string(model.SeverityCritical),
		Description: &reason,
		OccurredAt:  time.Now(),
	})
	s.NotifySessionUpdate(ctx, session, "SUSPENDED")
}

// NotifySessionUpdate pushes a lifecycle update to the student's update queue
// and the proctor session topic.
func (s *NotificationService) NotifySessionUpdate(ctx context.Context, session *model.ExamSession, status string) {
	payload := SessionUpdatePayload{
		SessionID:     session.ID,
		Status:        status,
		ExtendedEndAt: session.ExtendedEndAt,
		Score:         session.Score,
	}
	s.publish(ctx, realtime.StudentQueue(session.ID, realtime.ChannelUpdate), payload)
	s.publish(ctx, realtime.ProctorSessionTopic(session.ID), payload)
}

// AlertProctors broadcasts a proctoring event on the exam's alerts topic.
func (s *NotificationService) AlertProctors(ctx context.Context, examID uuid.UUID, alert ProctorAlertPayload) {
	s.publish(ctx, realtime.ProctorExamTopic(examID, "alerts"), alert)
}

// publish is fire-and-forget: realtime delivery is best-effort by design and
// a relay outage must never fail the owning operation.
func (s *NotificationService) publish(ctx context.Context, destination string, payload interface{}) {
	if err := s.hub.Publish(ctx, destination, payload); err != nil {
		s.log.Error().Err(err).Str("destination", destination).Msg("Realtime publish failed")
	}
}

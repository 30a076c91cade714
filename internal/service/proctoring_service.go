package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/bus"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Ingestion and result-processing errors.
var (
	ErrUnknownEventType    = errors.New("event type outside the proctoring vocabulary")
	ErrUnknownBehaviorType = errors.New("behaviour type outside the browser vocabulary")
	ErrMalformedResult     = errors.New("malformed proctoring result")
)

// warningTexts is the closed message table for student-facing warnings, one
// entry per event type in the vocabulary.
var warningTexts = map[model.EventType]string{
	model.EventFaceMissing:        "Your face is not visible. Stay in front of the camera.",
	model.EventMultipleFaces:      "Multiple faces were detected. Only you may be on camera.",
	model.EventGazeAway:           "You appear to be looking away from the screen.",
	model.EventMouthOpen:          "Speaking during the exam is not allowed.",
	model.EventPhoneDetected:      "A phone was detected. Put all devices away.",
	model.EventNotesDetected:      "Notes or printed material were detected. Remove them.",
	model.EventMultiplePersons:    "Another person was detected in the room.",
	model.EventAudioSpeech:        "Speech was detected. The exam must be taken in silence.",
	model.EventSuspiciousBehavior: "Suspicious behaviour was detected. This incident is recorded.",
	model.EventTabSwitch:          "Leaving the exam tab is not allowed.",
	model.EventFullscreenExit:     "Return to fullscreen to continue your exam.",
	model.EventCopyPaste:          "Copy and paste are disabled during the exam.",
	model.EventIdentityMismatch:   "Identity verification failed. A proctor has been notified.",
	model.EventManualFlag:         "A proctor has flagged your session for review.",
}

// WarningText resolves the student-facing message for an event type.
func WarningText(t model.EventType) (string, bool) {
	text, ok := warningTexts[t]
	return text, ok
}

// tabSwitchWarnAt is the occurrence count at which repeated tab switches and
// focus losses draw an immediate warning.
const tabSwitchWarnAt = 3

// analysisMessage is the wire shape published to the AI work queues.
type analysisMessage struct {
	SessionID uuid.UUID       `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// BehaviorMessage is the inbound browser event and the shape forwarded to the
// behaviour analysis queue.
type BehaviorMessage struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// MonitorEntry is one session in the proctor monitor snapshot.
type MonitorEntry struct {
	Session model.SessionWithUser   `json:"session"`
	Summary *model.ViolationSummary `json:"summary,omitempty"`
	Online  bool                    `json:"online"`
}

// sessionSuspender is the slice of the session engine the risk evaluator
// needs: suspending a session with a recorded reason.
type sessionSuspender interface {
	Suspend(ctx context.Context, sessionID uuid.UUID, reason string) error
}

// ProctoringService runs the ingestion pipeline (browser → bus), the result
// consumer logic (bus → events/counters → notifications) and the rolling
// risk-window evaluator that decides auto-suspension.
type ProctoringService struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	bus  *bus.Bus
	cfg  *config.Config

	sessionRepo  *repository.ExamSessionRepository
	eventRepo    *repository.ProctoringEventRepository
	summaryRepo  *repository.ViolationSummaryRepository
	behaviorRepo *repository.BehaviorEventRepository

	sessions sessionSuspender
	notifier *NotificationService
	log      zerolog.Logger
}

// NewProctoringService creates a new ProctoringService.
func NewProctoringService(
	pool *pgxpool.Pool,
	rdb *redis.Client,
	b *bus.Bus,
	cfg *config.Config,
	sessionRepo *repository.ExamSessionRepository,
	eventRepo *repository.ProctoringEventRepository,
	summaryRepo *repository.ViolationSummaryRepository,
	behaviorRepo *repository.BehaviorEventRepository,
	sessions *ExamSessionService,
	notifier *NotificationService,
	log zerolog.Logger,
) *ProctoringService {
	return &ProctoringService{
		pool:         pool,
		rdb:          rdb,
		bus:          b,
		cfg:          cfg,
		sessionRepo:  sessionRepo,
		eventRepo:    eventRepo,
		summaryRepo:  summaryRepo,
		behaviorRepo: behaviorRepo,
		sessions:     sessions,
		notifier:     notifier,
		log:          log.With().Str("component", "proctoring_service").Logger(),
	}
}

// IngestFrame forwards a webcam frame to the frame analysis queue. Ownership
// of the session is checked by the caller.
func (s *ProctoringService) IngestFrame(ctx context.Context, sessionID uuid.UUID, payload json.RawMessage) error {
	return s.bus.Publish(ctx, config.BusKey.FrameAnalysisQueue, analysisMessage{
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
}

// IngestAudio forwards an audio clip to the audio analysis queue.
func (s *ProctoringService) IngestAudio(ctx context.Context, sessionID uuid.UUID, payload json.RawMessage) error {
	return s.bus.Publish(ctx, config.BusKey.AudioAnalysisQueue, analysisMessage{
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
}

// IngestBehavior records a browser event: queued for batch persistence,
// forwarded to the behaviour analysis queue, and run through the quick rules
// that warn the student without waiting for inference.
func (s *ProctoringService) IngestBehavior(ctx context.Context, sessionID uuid.UUID, msg BehaviorMessage) error {
	if !model.KnownBehaviorType(msg.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownBehaviorType, msg.Type)
	}

	event := &model.BehaviorEvent{
		SessionID:  sessionID,
		EventType:  model.BehaviorEventType(msg.Type),
		OccurredAt: ParseClientTimestamp(msg.Timestamp, time.Now()),
		Metadata:   msg.Metadata,
	}

	queued, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal behaviour event: %w", err)
	}
	if err := s.rdb.LPush(ctx, config.CacheKey.BehaviorQueue(), queued).Err(); err != nil {
		return fmt.Errorf("queue behaviour event: %w", err)
	}

	if err := s.bus.Publish(ctx, config.BusKey.BehaviorEventsQueue, map[string]any{
		"sessionId": sessionID,
		"type":      msg.Type,
		"timestamp": event.OccurredAt.UnixMilli(),
		"metadata":  msg.Metadata,
	}); err != nil {
		// Analysis enrichment is best-effort; the raw event is already queued.
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Behaviour publish failed")
	}

	s.applyQuickRules(ctx, sessionID, event.EventType)
	return nil
}

// applyQuickRules warns the student immediately for behaviours that need no
// inference round-trip.
func (s *ProctoringService) applyQuickRules(ctx context.Context, sessionID uuid.UUID, t model.BehaviorEventType) {
	count, err := s.rdb.Incr(ctx, config.CacheKey.BehaviorCountKey(sessionID, string(t))).Result()
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Quick-rule counter failed")
		return
	}

	switch t {
	case model.BehaviorTabSwitch, model.BehaviorFocusLoss:
		if count == tabSwitchWarnAt {
			s.notifier.WarnStudent(ctx, sessionID, model.EventTabSwitch, model.SeverityMedium,
				warningTexts[model.EventTabSwitch])
		}
	case model.BehaviorFullscreenExit:
		s.notifier.WarnStudent(ctx, sessionID, model.EventFullscreenExit, model.SeverityMedium,
			warningTexts[model.EventFullscreenExit])
	case model.BehaviorCopyPaste:
		s.notifier.WarnStudent(ctx, sessionID, model.EventCopyPaste, model.SeverityMedium,
			warningTexts[model.EventCopyPaste])
	}
}

// ProcessResult handles one message from the results queue. A returned error
// means the message is poison and belongs on the dead-letter queue; results
// for submitted or suspended sessions are dropped silently.
func (s *ProctoringService) ProcessResult(ctx context.Context, body []byte) error {
	var result model.ProctoringResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if result.SessionID == uuid.Nil || result.EventType == "" {
		return fmt.Errorf("%w: missing session or event type", ErrMalformedResult)
	}

	eventType := model.EventType(result.EventType)
	if _, ok := repository.CounterColumn(eventType); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, result.EventType)
	}
	severity := model.Severity(result.Severity)
	switch severity {
	case model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical:
	default:
		return fmt.Errorf("%w: severity %q", ErrMalformedResult, result.Severity)
	}

	session, err := s.sessionRepo.GetByID(ctx, result.SessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: unknown session %s", ErrMalformedResult, result.SessionID)
		}
		return fmt.Errorf("load session: %w", err)
	}
	if !session.IsOpen() || session.IsSuspended {
		return nil
	}

	riskScore := 0.0
	if result.RiskScore != nil {
		riskScore = *result.RiskScore
	}

	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		event := &model.ProctoringEvent{
			SessionID:    result.SessionID,
			EventType:    eventType,
			Severity:     severity,
			Confidence:   result.Confidence,
			Description:  result.Description,
			SnapshotPath: result.SnapshotPath,
			Source:       model.SourceAI,
			Metadata:     result.Metadata,
		}
		if err := s.eventRepo.WithTx(tx).Create(ctx, event); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return s.summaryRepo.WithTx(tx).IncrementCounter(ctx, result.SessionID, eventType, riskScore)
	})
	if err != nil {
		return err
	}

	s.notifier.AlertProctors(ctx, session.ExamID, ProctorAlertPayload{
		SessionID:   session.ID,
		EventType:   result.EventType,
		Severity:    result.Severity,
		Confidence:  result.Confidence,
		Description: result.Description,
		RiskScore:   result.RiskScore,
		OccurredAt:  time.Now(),
	})
	if shouldWarnStudent(severity, riskScore, s.cfg.HighRiskThreshold) {
		s.notifier.WarnStudent(ctx, session.ID, eventType, severity, warningTexts[eventType])
	}

	return s.EvaluateRiskWindow(ctx, session.ID, riskScore)
}

// shouldWarnStudent decides whether a result is pushed to the student. HIGH
// and CRITICAL severities always warn; lower severities still warn when the
// model's risk score reaches the high-risk threshold.
func shouldWarnStudent(severity model.Severity, riskScore, highRiskThreshold float64) bool {
	if severity == model.SeverityHigh || severity == model.SeverityCritical {
		return true
	}
	return highRiskThreshold > 0 && riskScore >= highRiskThreshold
}

// EvaluateRiskWindow records the result in the rolling window and suspends the
// session when critical results dominate it. Deleting both keys before the
// suspension makes a racing duplicate see an empty window.
func (s *ProctoringService) EvaluateRiskWindow(ctx context.Context, sessionID uuid.UUID, riskScore float64) error {
	framesKey := config.CacheKey.RiskFramesKey(sessionID)
	criticalKey := config.CacheKey.RiskCriticalKey(sessionID)

	now := time.Now().UnixMilli()
	member := redis.Z{Score: float64(now), Member: uuid.NewString()}
	windowStart := now - int64(s.cfg.WindowSeconds)*1000
	ttl := time.Duration(s.cfg.WindowTTLSeconds) * time.Second

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, framesKey, member)
	if riskScore > s.cfg.CriticalRiskThreshold {
		pipe.ZAdd(ctx, criticalKey, member)
	}
	pipe.ZRemRangeByScore(ctx, framesKey, "-inf", strconv.FormatInt(windowStart, 10))
	pipe.ZRemRangeByScore(ctx, criticalKey, "-inf", strconv.FormatInt(windowStart, 10))
	pipe.Expire(ctx, framesKey, ttl)
	pipe.Expire(ctx, criticalKey, ttl)
	frames := pipe.ZCard(ctx, framesKey)
	critical := pipe.ZCard(ctx, criticalKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("risk window update: %w", err)
	}

	n, k := frames.Val(), critical.Val()
	if n < int64(s.cfg.MinFramesInWindow) {
		return nil
	}
	ratio := float64(k) / float64(n)
	if ratio < s.cfg.CriticalRatioThreshold {
		return nil
	}

	if err := s.rdb.Del(ctx, framesKey, criticalKey).Err(); err != nil {
		return fmt.Errorf("clear risk window: %w", err)
	}
	reason := fmt.Sprintf("automated suspension: %d of %d recent analyses critical (%.0f%%)",
		k, n, ratio*100)
	return s.sessions.Suspend(ctx, sessionID, reason)
}

// FlagSession appends a manual proctor flag and marks the summary.
func (s *ProctoringService) FlagSession(ctx context.Context, sessionID uuid.UUID, reason string) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	confidence := 1.0
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		event := &model.ProctoringEvent{
			SessionID:   sessionID,
			EventType:   model.EventManualFlag,
			Severity:    model.SeverityHigh,
			Confidence:  &confidence,
			Description: &reason,
			Source:      model.SourceManual,
		}
		if err := s.eventRepo.WithTx(tx).Create(ctx, event); err != nil {
			return fmt.Errorf("append flag event: %w", err)
		}
		summaryRepo := s.summaryRepo.WithTx(tx)
		if err := summaryRepo.IncrementCounter(ctx, sessionID, model.EventManualFlag, 0); err != nil {
			return err
		}
		return summaryRepo.SetProctorFlag(ctx, sessionID, true)
	})
	if err != nil {
		return err
	}

	s.notifier.AlertProctors(ctx, session.ExamID, ProctorAlertPayload{
		SessionID:   sessionID,
		EventType:   string(model.EventManualFlag),
		Severity:    string(model.SeverityHigh),
		Description: &reason,
		OccurredAt:  time.Now(),
	})
	return nil
}

// ClearFlag clears the manual flag marker. The MANUAL_FLAG events stay in the
// append-only log.
func (s *ProctoringService) ClearFlag(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := s.sessionRepo.GetByID(ctx, sessionID); err != nil {
		return err
	}
	return s.summaryRepo.SetProctorFlag(ctx, sessionID, false)
}

// SetNote replaces the proctor's free-text note on a session.
func (s *ProctoringService) SetNote(ctx context.Context, sessionID uuid.UUID, note string) error {
	if _, err := s.sessionRepo.GetByID(ctx, sessionID); err != nil {
		return err
	}
	return s.summaryRepo.SetProctorNote(ctx, sessionID, &note)
}

// GetSummary retrieves the violation aggregate, materialising the zero row for
// sessions that have produced no events yet.
func (s *ProctoringService) GetSummary(ctx context.Context, sessionID uuid.UUID) (*model.ViolationSummary, error) {
	summary, err := s.summaryRepo.GetBySessionID(ctx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := s.summaryRepo.EnsureRow(ctx, sessionID); err != nil {
			return nil, err
		}
		return s.summaryRepo.GetBySessionID(ctx, sessionID)
	}
	return summary, err
}

// ListEvents retrieves the session's proctoring log.
func (s *ProctoringService) ListEvents(ctx context.Context, sessionID uuid.UUID, filter repository.EventFilter, page, perPage int) ([]model.ProctoringEvent, int64, error) {
	return s.eventRepo.ListBySession(ctx, sessionID, filter, page, perPage)
}

// ListBehaviorEvents retrieves the session's raw browser telemetry.
func (s *ProctoringService) ListBehaviorEvents(ctx context.Context, sessionID uuid.UUID, limit int) ([]model.BehaviorEvent, error) {
	return s.behaviorRepo.ListBySession(ctx, sessionID, limit)
}

// MonitorSnapshot assembles the proctor monitor view for an exam: active
// sessions with their violation summaries and live presence, the latter two
// fetched concurrently.
func (s *ProctoringService) MonitorSnapshot(ctx context.Context, examID uuid.UUID) ([]MonitorEntry, error) {
	sessions, err := s.sessionRepo.ListActiveByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	if len(sessions) == 0 {
		return []MonitorEntry{}, nil
	}

	ids := make([]uuid.UUID, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}

	var (
		wg         sync.WaitGroup
		summaries  map[uuid.UUID]model.ViolationSummary
		summaryErr error
		presence   = make(map[uuid.UUID]bool, len(ids))
		presentErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		summaries, summaryErr = s.summaryRepo.FindBySessionIDs(ctx, ids)
	}()
	go func() {
		defer wg.Done()
		pipe := s.rdb.Pipeline()
		checks := make(map[uuid.UUID]*redis.IntCmd, len(ids))
		for _, id := range ids {
			checks[id] = pipe.Exists(ctx, config.CacheKey.SessionPresenceKey(id))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			presentErr = err
			return
		}
		for id, cmd := range checks {
			presence[id] = cmd.Val() > 0
		}
	}()
	wg.Wait()

	if summaryErr != nil {
		return nil, fmt.Errorf("load summaries: %w", summaryErr)
	}
	if presentErr != nil {
		return nil, fmt.Errorf("check presence: %w", presentErr)
	}

	entries := make([]MonitorEntry, len(sessions))
	for i, sess := range sessions {
		entry := MonitorEntry{Session: sess, Online: presence[sess.ID]}
		if summary, ok := summaries[sess.ID]; ok {
			entry.Summary = &summary
		}
		entries[i] = entry
	}
	return entries, nil
}

// ParseClientTimestamp reads a client-supplied timestamp defensively: a JSON
// number or numeric string is taken as epoch milliseconds, anything else falls
// back to the server clock. Telemetry is never rejected over a bad clock.
func ParseClientTimestamp(raw json.RawMessage, now time.Time) time.Time {
	if len(raw) == 0 {
		return now
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return time.UnixMilli(millis)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if millis, err := strconv.ParseInt(text, 10, 64); err == nil {
			return time.UnixMilli(millis)
		}
	}
	return now
}

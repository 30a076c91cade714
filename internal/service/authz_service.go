package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
)

// ErrForbidden is returned when an authenticated principal is not authorised
// for the target resource.
var ErrForbidden = errors.New("not authorised for this resource")

// proctorAssignments is the slice of the proctor repository the kernel needs.
type proctorAssignments interface {
	IsAssigned(ctx context.Context, examID, proctorID uuid.UUID) (bool, error)
}

// AuthzService is the authorisation kernel. Every session operation, realtime
// subscription and proctoring endpoint funnels through these three predicates
// instead of re-implementing role checks per endpoint.
type AuthzService struct {
	proctors proctorAssignments
}

// NewAuthzService creates a new AuthzService.
func NewAuthzService(proctors proctorAssignments) *AuthzService {
	return &AuthzService{proctors: proctors}
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (s *AuthzService) IsAdmin(claims *Claims) bool {
	return claims != nil && claims.Role == model.RoleAdmin
}

// IsAssignedProctor reports whether the principal may act as a proctor for the
// exam. Admins always pass.
func (s *AuthzService) IsAssignedProctor(ctx context.Context, claims *Claims, examID uuid.UUID) (bool, error) {
	if claims == nil {
		return false, nil
	}
	if claims.Role == model.RoleAdmin {
		return true, nil
	}
	if claims.Role != model.RoleProctor {
		return false, nil
	}
	return s.proctors.IsAssigned(ctx, examID, claims.UserID())
}

// IsSessionParticipant reports whether the principal may touch the session:
// the owning student, an assigned proctor of the session's exam, or an admin.
func (s *AuthzService) IsSessionParticipant(ctx context.Context, claims *Claims, session *model.ExamSession) (bool, error) {
	if claims == nil || session == nil {
		return false, nil
	}
	if claims.Role == model.RoleStudent {
		return claims.UserID() == session.UserID, nil
	}
	return s.IsAssignedProctor(ctx, claims, session.ExamID)
}

// RequireSessionParticipant is IsSessionParticipant folded into an error.
func (s *AuthzService) RequireSessionParticipant(ctx context.Context, claims *Claims, session *model.ExamSession) error {
	ok, err := s.IsSessionParticipant(ctx, claims, session)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// RequireAssignedProctor is IsAssignedProctor folded into an error.
func (s *AuthzService) RequireAssignedProctor(ctx context.Context, claims *Claims, examID uuid.UUID) error {
	ok, err := s.IsAssignedProctor(ctx, claims, examID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

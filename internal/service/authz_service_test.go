package service

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAssignments answers assignment lookups from an in-memory set.
type fakeAssignments struct {
	assigned map[uuid.UUID]map[uuid.UUID]bool
}

func (f *fakeAssignments) IsAssigned(_ context.Context, examID, proctorID uuid.UUID) (bool, error) {
	return f.assigned[examID][proctorID], nil
}

func claimsFor(userID uuid.UUID, role model.Role) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		Role:             role,
		userID:           userID,
	}
}

func TestAuthzMatrix(t *testing.T) {
	ctx := context.Background()

	examID := uuid.New()
	otherExamID := uuid.New()
	studentID := uuid.New()
	proctorID := uuid.New()
	adminID := uuid.New()

	svc := NewAuthzService(&fakeAssignments{
		assigned: map[uuid.UUID]map[uuid.UUID]bool{
			examID: {proctorID: true},
		},
	})

	session := &model.ExamSession{ID: uuid.New(), ExamID: examID, UserID: studentID}

	t.Run("IsAdmin", func(t *testing.T) {
		assert.True(t, svc.IsAdmin(claimsFor(adminID, model.RoleAdmin)))
		assert.False(t, svc.IsAdmin(claimsFor(proctorID, model.RoleProctor)))
		assert.False(t, svc.IsAdmin(nil))
	})

	t.Run("assigned proctor passes", func(t *testing.T) {
		ok, err := svc.IsAssignedProctor(ctx, claimsFor(proctorID, model.RoleProctor), examID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unassigned proctor fails", func(t *testing.T) {
		ok, err := svc.IsAssignedProctor(ctx, claimsFor(proctorID, model.RoleProctor), otherExamID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("admin passes without assignment", func(t *testing.T) {
		ok, err := svc.IsAssignedProctor(ctx, claimsFor(adminID, model.RoleAdmin), otherExamID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("student never acts as proctor", func(t *testing.T) {
		ok, err := svc.IsAssignedProctor(ctx, claimsFor(studentID, model.RoleStudent), examID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("owning student is a participant", func(t *testing.T) {
		err := svc.RequireSessionParticipant(ctx, claimsFor(studentID, model.RoleStudent), session)
		assert.NoError(t, err)
	})

	t.Run("other student is not a participant", func(t *testing.T) {
		err := svc.RequireSessionParticipant(ctx, claimsFor(uuid.New(), model.RoleStudent), session)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("assigned proctor is a participant", func(t *testing.T) {
		err := svc.RequireSessionParticipant(ctx, claimsFor(proctorID, model.RoleProctor), session)
		assert.NoError(t, err)
	})

	t.Run("unassigned proctor is not a participant", func(t *testing.T) {
		other := &model.ExamSession{ID: uuid.New(), ExamID: otherExamID, UserID: studentID}
		err := svc.RequireSessionParticipant(ctx, claimsFor(proctorID, model.RoleProctor), other)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("nil claims are rejected", func(t *testing.T) {
		err := svc.RequireSessionParticipant(ctx, nil, session)
		assert.ErrorIs(t, err, ErrForbidden)
		err = svc.RequireAssignedProctor(ctx, nil, examID)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

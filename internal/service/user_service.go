package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/objectstore"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/rs/zerolog"
)

// Account and media errors.
var (
	ErrUnsupportedMedia = errors.New("unsupported photo content type")
	ErrNoProfilePhoto   = errors.New("user has no profile photo")
)

// photoContentTypes maps acceptable upload MIME types to object extensions.
var photoContentTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// photoURLExpiry bounds how long a presigned profile photo link stays valid.
const photoURLExpiry = 15 * time.Minute

// UserService handles account administration and profile media.
type UserService struct {
	userRepo *repository.UserRepository
	auth     *AuthService
	store    *objectstore.Store
	log      zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(
	userRepo *repository.UserRepository,
	auth *AuthService,
	store *objectstore.Store,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		userRepo: userRepo,
		auth:     auth,
		store:    store,
		log:      log.With().Str("component", "user_service").Logger(),
	}
}

// GetByID retrieves one account.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// List retrieves accounts filtered by role and free-text query.
func (s *UserService) List(ctx context.Context, role *model.Role, q string, page, perPage int) ([]model.User, int64, error) {
	return s.userRepo.List(ctx, role, q, page, perPage)
}

// Create provisions an account of any role. Admin only; student
// self-registration goes through the auth service instead.
func (s *UserService) Create(ctx context.Context, req *model.CreateUserRequest) (*model.User, error) {
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         model.Role(req.Role),
		IsActive:     true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Str("user_id", user.ID.String()).Str("role", req.Role).Msg("Account created")
	return user, nil
}

// UpdateRole changes an account's role.
func (s *UserService) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) (*model.User, error) {
	if err := s.userRepo.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, id)
}

// Deactivate soft-deletes an account.
func (s *UserService) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.userRepo.Deactivate(ctx, id)
}

// UploadPhoto stores a profile photo in the object store and records its key.
// The reader is expected to be size-capped by the handler.
func (s *UserService) UploadPhoto(ctx context.Context, userID uuid.UUID, r io.Reader, size int64, contentType string) (string, error) {
	ext, ok := photoContentTypes[contentType]
	if !ok {
		return "", ErrUnsupportedMedia
	}

	objectName := fmt.Sprintf("%s/%d.%s", userID, time.Now().UnixMilli(), ext)
	path, err := s.store.Upload(ctx, objectstore.BucketProfilePhotos, objectName, r, size, contentType)
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	if err := s.userRepo.UpdatePhotoPath(ctx, userID, path); err != nil {
		return "", fmt.Errorf("record photo path: %w", err)
	}
	return path, nil
}

// PhotoURL returns a short-lived presigned link to the user's profile photo.
func (s *UserService) PhotoURL(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.PhotoPath == nil {
		return "", ErrNoProfilePhoto
	}
	return s.store.PresignedURL(ctx, objectstore.BucketProfilePhotos, *user.PhotoPath, photoURLExpiry)
}

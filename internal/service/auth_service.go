package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is deactivated")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrWrongTokenType     = errors.New("wrong token type for this operation")
)

// TokenType distinguishes the two capability kinds. ACCESS admits API and
// realtime traffic; REFRESH is accepted only by the refresh endpoint.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS"
	TokenTypeRefresh TokenType = "REFRESH"
)

// Claims carries the signed identity: {sub, role, type, jti, exp, iat}.
type Claims struct {
	jwt.RegisteredClaims
	Role      model.Role `json:"role"`
	TokenType TokenType  `json:"type"`

	userID uuid.UUID
}

// UserID is the parsed subject. Populated during validation.
func (c *Claims) UserID() uuid.UUID {
	return c.userID
}

// AuthService issues, validates, rotates and revokes capabilities.
type AuthService struct {
	cfg      *config.Config
	rdb      *redis.Client
	userRepo *repository.UserRepository
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, userRepo *repository.UserRepository) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, userRepo: userRepo}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Register creates a STUDENT account. Self-registration never grants another role.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         model.RoleStudent,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and issues a fresh token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if err := s.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}

	tokens, err := s.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	return &model.LoginResponse{User: user, Tokens: tokens}, nil
}

// IssuePair signs a new ACCESS+REFRESH pair and repoints the refresh index to
// the new refresh jti.
func (s *AuthService) IssuePair(ctx context.Context, user *model.User) (model.TokenPair, error) {
	access, _, err := s.sign(user, TokenTypeAccess, s.cfg.AccessTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshJTI, err := s.sign(user, TokenTypeRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	key := config.CacheKey.RefreshTokenKey(user.ID)
	if err := s.rdb.Set(ctx, key, refreshJTI, s.cfg.RefreshTTL).Err(); err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh index: %w", err)
	}
	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates the presented refresh capability: the old jti is revoked for
// its remaining lifetime and a brand-new pair is returned. A replayed refresh
// token fails against the blacklist and against the repointed index.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.validate(ctx, refreshToken, TokenTypeRefresh)
	if err != nil {
		return model.TokenPair{}, err
	}

	stored, err := s.rdb.Get(ctx, config.CacheKey.RefreshTokenKey(claims.userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.TokenPair{}, ErrTokenRevoked
		}
		return model.TokenPair{}, fmt.Errorf("read refresh index: %w", err)
	}
	if stored != claims.ID {
		return model.TokenPair{}, ErrTokenRevoked
	}

	user, err := s.userRepo.GetByID(ctx, claims.userID)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive {
		return model.TokenPair{}, ErrAccountDisabled
	}

	if err := s.revoke(ctx, claims); err != nil {
		return model.TokenPair{}, err
	}
	return s.IssuePair(ctx, user)
}

// Logout revokes the presented access capability and invalidates the stored
// refresh capability so neither survives the call.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	if err := s.revoke(ctx, claims); err != nil {
		return err
	}
	return s.rdb.Del(ctx, config.CacheKey.RefreshTokenKey(claims.userID)).Err()
}

// ValidateAccess admits a capability to API and realtime surfaces.
// Signature, expiry, type=ACCESS and the revocation set are all checked.
func (s *AuthService) ValidateAccess(ctx context.Context, tokenStr string) (*Claims, error) {
	return s.validate(ctx, tokenStr, TokenTypeAccess)
}

func (s *AuthService) sign(user *model.User, tokenType TokenType, ttl time.Duration) (signed, jti string, err error) {
	now := time.Now()
	jti = uuid.New().String()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:      user.Role,
		TokenType: tokenType,
	}

	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	return signed, jti, err
}

func (s *AuthService) validate(ctx context.Context, tokenStr string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.TokenType != want {
		return nil, ErrWrongTokenType
	}

	claims.userID, err = uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject: %w", err)
	}

	revoked, err := s.rdb.Exists(ctx, config.CacheKey.TokenBlacklistKey(claims.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked > 0 {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// revoke blacklists a capability's jti for its remaining lifetime. Nothing to
// do when the token already expired.
func (s *AuthService) revoke(ctx context.Context, claims *Claims) error {
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	key := config.CacheKey.TokenBlacklistKey(claims.ID)
	if err := s.rdb.Set(ctx, key, "1", remaining).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

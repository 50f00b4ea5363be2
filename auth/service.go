package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"strata.evalgo.org/common"
)

// Store persists users and API keys. The db package implements it over gorm.
type Store interface {
	InsertUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*User, error)

	InsertAPIKey(ctx context.Context, key *APIKey) error
	UpdateAPIKey(ctx context.Context, key *APIKey) error
	APIKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	TouchAPIKey(ctx context.Context, id string, when time.Time) error
	DeleteAPIKey(ctx context.Context, id string) error
	ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error)
}

// Service provides authentication and user management.
type Service struct {
	store  Store
	tokens *TokenService
	logger *logrus.Logger
}

// NewService creates an auth service.
func NewService(store Store, tokens *TokenService) *Service {
	return &Service{store: store, tokens: tokens, logger: common.Logger}
}

// Tokens exposes the token service for the HTTP layer's JWT middleware.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Authenticate verifies email and password and returns tokens. Lookup
// failures and password mismatches both report ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		s.logger.WithField("email", common.MaskSecret(email)).Warn("login failed: unknown user")
		return nil, ErrInvalidCredentials
	}
	if err := ValidatePassword(password, user.PasswordHash); err != nil {
		s.logger.WithField("email", common.MaskSecret(email)).Warn("login failed: bad password")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.GenerateTokenPair(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:         user.ToResponse(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// CreateUser registers a new account.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	if err := ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := CheckPasswordStrength(req.Password, false); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = RoleViewer
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		Permissions:  req.Permissions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		if common.IsKind(err, common.KindConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"user": user.ID, "role": role}).Info("user created")
	return user, nil
}

// ChangePassword verifies the current password before setting the new one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}
	if err := ValidatePassword(current, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	if err := CheckPasswordStrength(next, false); err != nil {
		return err
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	return s.store.UpdateUser(ctx, user)
}

// DeleteUser removes an account. Users cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, userID, requestingUserID string) error {
	if userID == requestingUserID {
		return ErrSelfDelete
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if common.IsKind(err, common.KindNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// ValidateToken validates a JWT access token.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return s.tokens.ValidateToken(token)
}

// CreateAPIKey mints a new key for a user. The returned raw key is shown
// exactly once; the stored record keeps the hash and display prefix.
func (s *Service) CreateAPIKey(ctx context.Context, userID string, req CreateAPIKeyRequest) (string, *APIKey, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return "", nil, ErrUserNotFound
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now().UTC()) {
		return "", nil, common.NewError(common.KindValidation, "expires_at is in the past")
	}
	raw, err := GenerateRawAPIKey()
	if err != nil {
		return "", nil, err
	}
	rateLimit := req.RateLimit
	if rateLimit <= 0 {
		rateLimit = DefaultAPIKeyRateLimit
	}

	key := &APIKey{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        req.Name,
		KeyHash:     HashAPIKey(raw),
		Prefix:      KeyPrefix(raw),
		Permissions: req.Permissions,
		RateLimit:   rateLimit,
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.InsertAPIKey(ctx, key); err != nil {
		return "", nil, err
	}

	s.logger.WithFields(logrus.Fields{"user": userID, "prefix": key.Prefix}).Info("api key created")
	return raw, key, nil
}

// AuthenticateAPIKey resolves a raw key to its owning user and records the
// use. Disabled and expired keys are rejected the same way unknown ones are.
func (s *Service) AuthenticateAPIKey(ctx context.Context, raw string) (*User, *APIKey, error) {
	key, err := s.store.APIKeyByHash(ctx, HashAPIKey(raw))
	if err != nil {
		return nil, nil, ErrInvalidAPIKey
	}
	if !key.IsActive {
		s.logger.WithField("prefix", key.Prefix).Warn("rejected disabled api key")
		return nil, nil, ErrInvalidAPIKey
	}
	if key.ExpiresAt != nil && time.Now().UTC().After(*key.ExpiresAt) {
		s.logger.WithField("prefix", key.Prefix).Warn("rejected expired api key")
		return nil, nil, ErrInvalidAPIKey
	}
	user, err := s.store.GetUser(ctx, key.UserID)
	if err != nil {
		return nil, nil, ErrInvalidAPIKey
	}
	if err := s.store.TouchAPIKey(ctx, key.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to record api key use: ", err)
	}
	return user, key, nil
}

// ListAPIKeys returns a user's keys, hashes excluded from serialization.
func (s *Service) ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error) {
	return s.store.ListAPIKeys(ctx, userID)
}

// RevokeAPIKey deletes a key.
func (s *Service) RevokeAPIKey(ctx context.Context, id string) error {
	return s.store.DeleteAPIKey(ctx, id)
}

// DisableAPIKey deactivates a key without deleting its record, keeping the
// usage trail intact.
func (s *Service) DisableAPIKey(ctx context.Context, userID, id string) error {
	keys, err := s.store.ListAPIKeys(ctx, userID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if key.ID != id {
			continue
		}
		key.IsActive = false
		return s.store.UpdateAPIKey(ctx, key)
	}
	return ErrInvalidAPIKey
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.ListUsers(ctx)
}

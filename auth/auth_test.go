package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata.evalgo.org/common"
)

type memStore struct {
	users map[string]*User
	keys  map[string]*APIKey // by hash
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*User), keys: make(map[string]*APIKey)}
}

func (m *memStore) InsertUser(ctx context.Context, user *User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return common.NewError(common.KindConflict, "email taken")
		}
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memStore) GetUser(ctx context.Context, id string) (*User, error) {
	if u, ok := m.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, common.NewError(common.KindNotFound, "user not found")
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, common.NewError(common.KindNotFound, "user not found")
}

func (m *memStore) UpdateUser(ctx context.Context, user *User) error {
	if _, ok := m.users[user.ID]; !ok {
		return common.NewError(common.KindNotFound, "user not found")
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memStore) DeleteUser(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return common.NewError(common.KindNotFound, "user not found")
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) ListUsers(ctx context.Context) ([]*User, error) {
	var out []*User
	for _, u := range m.users {
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memStore) InsertAPIKey(ctx context.Context, key *APIKey) error {
	clone := *key
	m.keys[key.KeyHash] = &clone
	return nil
}

func (m *memStore) UpdateAPIKey(ctx context.Context, key *APIKey) error {
	if _, ok := m.keys[key.KeyHash]; !ok {
		return common.NewError(common.KindNotFound, "api key not found")
	}
	clone := *key
	m.keys[key.KeyHash] = &clone
	return nil
}

func (m *memStore) APIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	if k, ok := m.keys[hash]; ok {
		clone := *k
		return &clone, nil
	}
	return nil, common.NewError(common.KindNotFound, "api key not found")
}

func (m *memStore) TouchAPIKey(ctx context.Context, id string, when time.Time) error {
	for _, k := range m.keys {
		if k.ID == id {
			k.LastUsedAt = &when
			return nil
		}
	}
	return common.NewError(common.KindNotFound, "api key not found")
}

func (m *memStore) DeleteAPIKey(ctx context.Context, id string) error {
	for hash, k := range m.keys {
		if k.ID == id {
			delete(m.keys, hash)
			return nil
		}
	}
	return common.NewError(common.KindNotFound, "api key not found")
}

func (m *memStore) ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error) {
	var out []*APIKey
	for _, k := range m.keys {
		if k.UserID == userID {
			clone := *k
			out = append(out, &clone)
		}
	}
	return out, nil
}

func testService() (*Service, *memStore) {
	store := newMemStore()
	tokens := NewTokenService("test-secret", time.Hour, 24*time.Hour)
	return NewService(store, tokens), store
}

// TestCreateUserAndAuthenticate tests the register/login round trip
func TestCreateUserAndAuthenticate(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserRequest{
		Email:    "editor@example.com",
		Password: "s3cret-pass",
		Role:     RoleEditor,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	result, err := svc.Authenticate(ctx, "editor@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, user.ID, result.User.ID)

	claims, err := svc.ValidateToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, RoleEditor, claims.Role)
}

// TestAuthenticateRejectsBadCredentials tests the uniform failure error
func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserRequest{Email: "a@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "a@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

// TestCreateUserValidation tests email and password checks plus duplicates
func TestCreateUserValidation(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserRequest{Email: "not-an-email", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.CreateUser(ctx, CreateUserRequest{Email: "a@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = svc.CreateUser(ctx, CreateUserRequest{Email: "a@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, CreateUserRequest{Email: "a@example.com", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrUserExists)
}

// TestChangePassword tests verification of the current password
func TestChangePassword(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserRequest{Email: "a@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "wrong", "new-s3cret-pass"), ErrInvalidCredentials)
	require.NoError(t, svc.ChangePassword(ctx, user.ID, "s3cret-pass", "new-s3cret-pass"))

	_, err = svc.Authenticate(ctx, "a@example.com", "new-s3cret-pass")
	assert.NoError(t, err)
}

// TestDeleteUserSelfGuard tests that users cannot delete their own account
func TestDeleteUserSelfGuard(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserRequest{Email: "a@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteUser(ctx, user.ID, user.ID), ErrSelfDelete)
	assert.NoError(t, svc.DeleteUser(ctx, user.ID, "someone-else"))
	assert.ErrorIs(t, svc.DeleteUser(ctx, user.ID, "someone-else"), ErrUserNotFound)
}

// TestAPIKeyLifecycle tests mint, authenticate, revoke
func TestAPIKeyLifecycle(t *testing.T) {
	svc, store := testService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserRequest{Email: "a@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	raw, key, err := svc.CreateAPIKey(ctx, user.ID, CreateAPIKeyRequest{Name: "ci"})
	require.NoError(t, err)
	assert.Contains(t, raw, "sk_")
	assert.Equal(t, raw[:10], key.Prefix)
	assert.Equal(t, DefaultAPIKeyRateLimit, key.RateLimit)
	assert.True(t, key.IsActive)

	// only the hash is stored
	stored, err := store.APIKeyByHash(ctx, HashAPIKey(raw))
	require.NoError(t, err)
	assert.NotContains(t, stored.KeyHash, raw)

	gotUser, gotKey, err := svc.AuthenticateAPIKey(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, user.ID, gotUser.ID)
	assert.Equal(t, key.ID, gotKey.ID)

	_, _, err = svc.AuthenticateAPIKey(ctx, "sk_bogus")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	require.NoError(t, svc.RevokeAPIKey(ctx, key.ID))
	_, _, err = svc.AuthenticateAPIKey(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

// TestDisabledAPIKeyRejected tests that deactivation stops authentication
// while the record survives
func TestDisabledAPIKeyRejected(t *testing.T) {
	svc, store := testService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserRequest{Email: "a@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	raw, key, err := svc.CreateAPIKey(ctx, user.ID, CreateAPIKeyRequest{Name: "ci"})
	require.NoError(t, err)
	_, _, err = svc.AuthenticateAPIKey(ctx, raw)
	require.NoError(t, err)

	require.NoError(t, svc.DisableAPIKey(ctx, user.ID, key.ID))
	_, _, err = svc.AuthenticateAPIKey(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	// the record is kept for the audit trail
	stored, err := store.APIKeyByHash(ctx, HashAPIKey(raw))
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	// only the owner can disable
	assert.ErrorIs(t, svc.DisableAPIKey(ctx, "someone-else", key.ID), ErrInvalidAPIKey)
}

// TestExpiredAPIKeyRejected tests the expires_at cutoff
func TestExpiredAPIKeyRejected(t *testing.T) {
	svc, store := testService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserRequest{Email: "a@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Minute)
	_, _, err = svc.CreateAPIKey(ctx, user.ID, CreateAPIKeyRequest{Name: "ci", ExpiresAt: &past})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindValidation))

	future := time.Now().UTC().Add(time.Hour)
	raw, key, err := svc.CreateAPIKey(ctx, user.ID, CreateAPIKeyRequest{Name: "ci", ExpiresAt: &future})
	require.NoError(t, err)
	_, _, err = svc.AuthenticateAPIKey(ctx, raw)
	require.NoError(t, err)

	// age the stored key past its deadline
	expired := time.Now().UTC().Add(-time.Second)
	key.ExpiresAt = &expired
	require.NoError(t, store.UpdateAPIKey(ctx, key))

	_, _, err = svc.AuthenticateAPIKey(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

// TestExpiredToken tests expiry detection
func TestExpiredToken(t *testing.T) {
	tokens := NewTokenService("test-secret", -time.Minute, time.Hour)
	user := &User{ID: "u1", Email: "a@example.com", Role: RoleViewer}

	token, err := tokens.GenerateToken(user)
	require.NoError(t, err)

	_, err = tokens.ValidateToken(token)
	require.Error(t, err)
}

// TestPasswordStrength tests the strong-password rule set
func TestPasswordStrength(t *testing.T) {
	assert.ErrorIs(t, CheckPasswordStrength("", true), ErrEmptyPassword)
	assert.ErrorIs(t, CheckPasswordStrength("short", true), ErrPasswordTooShort)
	assert.ErrorIs(t, CheckPasswordStrength("alllowercase1!", true), ErrWeakPassword)
	assert.NoError(t, CheckPasswordStrength("G00d!Pass", true))
	assert.NoError(t, CheckPasswordStrength("justlongenough", false))
}

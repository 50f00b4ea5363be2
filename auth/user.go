// Package auth provides user accounts, password hashing, JWT tokens, and API
// keys for the Strata backend.
package auth

import "time"

// Standard roles
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// User represents a user account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	Permissions  []string  `json:"permissions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserResponse is a user with sensitive fields removed.
type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToResponse converts User to UserResponse, removing sensitive fields.
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: u.Permissions,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// HasPermission reports whether the user carries a permission. Admins hold
// every permission implicitly.
func (u *User) HasPermission(perm string) bool {
	if u.Role == RoleAdmin {
		return true
	}
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// CreateUserRequest is a request to create a new user.
type CreateUserRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// AuthResult is the result of a successful authentication.
type AuthResult struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// TokenPair is an access token and refresh token pair.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// APIKey is a stored API key record. The raw key is shown once at creation;
// only its hash and display prefix persist. A key authenticates only while
// IsActive and, when ExpiresAt is set, before that instant.
type APIKey struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	KeyHash     string     `json:"-"`
	Prefix      string     `json:"prefix"`
	Permissions []string   `json:"permissions,omitempty"`
	RateLimit   int        `json:"rate_limit"` // requests per minute
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateAPIKeyRequest is a request to mint a new API key.
type CreateAPIKeyRequest struct {
	Name        string     `json:"name"`
	RateLimit   int        `json:"rate_limit,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

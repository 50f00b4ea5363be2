package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"strata.evalgo.org/auth"
)

func (s *Store) InsertUser(ctx context.Context, user *auth.User) error {
	row := userToRow(user)
	return translate(s.db.WithContext(ctx).Create(row).Error, "insert user")
}

func (s *Store) GetUser(ctx context.Context, id string) (*auth.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("user %s", id))
	}
	return rowToUser(&row), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&row).Error; err != nil {
		return nil, translate(err, "user by email")
	}
	return rowToUser(&row), nil
}

func (s *Store) UpdateUser(ctx context.Context, user *auth.User) error {
	row := userToRow(user)
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", user.ID).Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("update user %s", user.ID))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("update user %s", user.ID))
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&userRow{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("delete user %s", id))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("delete user %s", id))
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*auth.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("email ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, "list users")
	}
	out := make([]*auth.User, 0, len(rows))
	for i := range rows {
		out = append(out, rowToUser(&rows[i]))
	}
	return out, nil
}

func (s *Store) InsertAPIKey(ctx context.Context, key *auth.APIKey) error {
	return translate(s.db.WithContext(ctx).Create(apiKeyToRow(key)).Error, "insert api key")
}

func (s *Store) UpdateAPIKey(ctx context.Context, key *auth.APIKey) error {
	row := apiKeyToRow(key)
	res := s.db.WithContext(ctx).Model(&apiKeyRow{}).Where("id = ?", key.ID).Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("update api key %s", key.ID))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("update api key %s", key.ID))
	}
	return nil
}

func (s *Store) APIKeyByHash(ctx context.Context, hash string) (*auth.APIKey, error) {
	var row apiKeyRow
	if err := s.db.WithContext(ctx).Where("key_hash = ?", hash).First(&row).Error; err != nil {
		return nil, translate(err, "api key by hash")
	}
	return rowToAPIKey(&row), nil
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, when time.Time) error {
	return translate(s.db.WithContext(ctx).Model(&apiKeyRow{}).Where("id = ?", id).
		Update("last_used_at", when).Error, fmt.Sprintf("touch api key %s", id))
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&apiKeyRow{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("delete api key %s", id))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("delete api key %s", id))
	}
	return nil
}

func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*auth.APIKey, error) {
	var rows []apiKeyRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, "list api keys")
	}
	out := make([]*auth.APIKey, 0, len(rows))
	for i := range rows {
		out = append(out, rowToAPIKey(&rows[i]))
	}
	return out, nil
}

func userToRow(u *auth.User) *userRow {
	return &userRow{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Permissions:  marshalJSON(u.Permissions),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func rowToUser(row *userRow) *auth.User {
	u := &auth.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         row.Role,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if len(row.Permissions) > 0 {
		_ = json.Unmarshal(row.Permissions, &u.Permissions)
	}
	return u
}

func apiKeyToRow(key *auth.APIKey) *apiKeyRow {
	return &apiKeyRow{
		ID:                 key.ID,
		UserID:             key.UserID,
		Name:               key.Name,
		KeyHash:            key.KeyHash,
		KeyPrefix:          key.Prefix,
		Permissions:        marshalJSON(key.Permissions),
		RateLimitPerMinute: key.RateLimit,
		IsActive:           key.IsActive,
		ExpiresAt:          key.ExpiresAt,
		LastUsedAt:         key.LastUsedAt,
		CreatedAt:          key.CreatedAt,
	}
}

func rowToAPIKey(row *apiKeyRow) *auth.APIKey {
	key := &auth.APIKey{
		ID:         row.ID,
		UserID:     row.UserID,
		Name:       row.Name,
		KeyHash:    row.KeyHash,
		Prefix:     row.KeyPrefix,
		RateLimit:  row.RateLimitPerMinute,
		IsActive:   row.IsActive,
		ExpiresAt:  row.ExpiresAt,
		LastUsedAt: row.LastUsedAt,
		CreatedAt:  row.CreatedAt,
	}
	if len(row.Permissions) > 0 {
		_ = json.Unmarshal(row.Permissions, &key.Permissions)
	}
	return key
}

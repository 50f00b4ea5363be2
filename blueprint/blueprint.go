// Package blueprint implements user-defined content types for the Strata
// backend. A blueprint is an ordered list of field definitions plus settings;
// the engine validates untyped data maps against a blueprint by dispatching to
// the field type registry.
package blueprint

import (
	"time"

	"strata.evalgo.org/fields"
)

// Status values a content item can take. The blueprint's DefaultStatus
// decides which one newly created items start in.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// API access levels for a blueprint.
const (
	AccessPublic        = "public"
	AccessAuthenticated = "authenticated"
	AccessPrivate       = "private"
)

// Field is one field definition inside a blueprint. Key is the machine
// identifier content data is stored under; it is unique within the blueprint.
// Group and Width are UI hints the core preserves round-trip but ignores.
type Field struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Key        string         `json:"key"`
	Type       string         `json:"type"`
	Required   bool           `json:"required"`
	Options    fields.Options `json:"options,omitempty"`
	Validation []fields.Rule  `json:"validation,omitempty"`
	Group      string         `json:"group,omitempty"`
	Width      string         `json:"width,omitempty"`
}

// Settings are per-blueprint behavior switches.
type Settings struct {
	DraftMode     bool   `json:"draftMode"`
	Versioning    bool   `json:"versioning"`
	DefaultStatus string `json:"defaultStatus"`
	APIAccess     string `json:"apiAccess"`
	// TitleField names the field a content slug is derived from when the
	// payload carries none.
	TitleField string `json:"titleField,omitempty"`
}

// Blueprint is a user-defined content type.
type Blueprint struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Fields    []Field   `json:"fields"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FieldByKey returns the field definition for a key.
func (b *Blueprint) FieldByKey(key string) (Field, bool) {
	for _, f := range b.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// DefaultStatus returns the configured default status, falling back to draft.
func (b *Blueprint) DefaultStatus() string {
	switch b.Settings.DefaultStatus {
	case StatusPublished, StatusArchived:
		return b.Settings.DefaultStatus
	default:
		return StatusDraft
	}
}

// Package content implements the content storage service: typed CRUD,
// publication, versioning, relations and queries over blueprint-validated
// data maps. Persistence goes through the Store interface; the db package
// provides the gorm-backed implementation.
package content

import (
	"context"
	"time"

	"strata.evalgo.org/query"
)

// Content event names emitted by the service. before* events are filter
// hooks that run inside the write transaction; after* events are action
// hooks fired after commit.
const (
	EventBeforeCreate    = "content:beforeCreate"
	EventAfterCreate     = "content:afterCreate"
	EventBeforeUpdate    = "content:beforeUpdate"
	EventAfterUpdate     = "content:afterUpdate"
	EventBeforeDelete    = "content:beforeDelete"
	EventAfterDelete     = "content:afterDelete"
	EventBeforePublish   = "content:beforePublish"
	EventAfterPublish    = "content:afterPublish"
	EventBeforeUnpublish = "content:beforeUnpublish"
	EventAfterUnpublish  = "content:afterUnpublish"
	EventAfterGet        = "content:afterGet"
)

// Relation types.
const (
	RelationOneToOne   = "one-to-one"
	RelationOneToMany  = "one-to-many"
	RelationManyToMany = "many-to-many"
)

// Relation deletion policies, enforced by the service rather than by storage
// cascades.
const (
	PolicyRestrict = "restrict"
	PolicyCascade  = "cascade"
	PolicySetNull  = "set-null"
)

// Content is one item of user data conforming to a blueprint. Data holds the
// serialized field values keyed by field key; (BlueprintID, Slug) is the
// natural key.
type Content struct {
	ID          string                 `json:"id"`
	BlueprintID string                 `json:"blueprintId"`
	Slug        string                 `json:"slug"`
	Data        map[string]interface{} `json:"data"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
	Status      string                 `json:"status"`
	CreatedBy   string                 `json:"createdBy,omitempty"`
	PublishedBy string                 `json:"publishedBy,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	PublishedAt *time.Time             `json:"publishedAt,omitempty"`
}

// FieldChange records one field-level difference in a change summary.
type FieldChange struct {
	Field string      `json:"field"`
	Old   interface{} `json:"old"`
	New   interface{} `json:"new"`
}

// ChangeSummary describes what a version captured: a note for lifecycle
// events and the ordered per-field diffs for updates.
type ChangeSummary struct {
	Note    string        `json:"note,omitempty"`
	Changes []FieldChange `json:"changes,omitempty"`
}

// Version is an immutable snapshot of a content item's data. VersionNumber
// is strictly increasing per content item, starting at 1.
type Version struct {
	ID            string                 `json:"id"`
	ContentID     string                 `json:"contentId"`
	BlueprintID   string                 `json:"blueprintId"`
	Data          map[string]interface{} `json:"data"`
	VersionNumber int                    `json:"versionNumber"`
	CreatedBy     string                 `json:"createdBy,omitempty"`
	ChangeSummary ChangeSummary          `json:"changeSummary"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// Relation is a directed edge between two content items. The triple
// (SourceContentID, TargetContentID, Type) is unique.
type Relation struct {
	ID              string                 `json:"id"`
	SourceContentID string                 `json:"sourceContentId"`
	TargetContentID string                 `json:"targetContentId"`
	Type            string                 `json:"type"`
	Policy          string                 `json:"policy"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// Page is one page of query results.
type Page struct {
	Items      []*Content `json:"items"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}

// GetOptions control loading of a single content item.
type GetOptions struct {
	// Populate lists relation field keys to resolve into embedded content.
	Populate []string

	// IncludeMedia resolves media ids into object metadata when a media
	// store is configured.
	IncludeMedia bool
}

// Store is the persistence contract for content, versions and relations.
// Implementations map unique violations to conflict errors and missing rows
// to not-found errors.
type Store interface {
	// Transaction runs fn against a transactional view of the store. A
	// returned error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	InsertContent(ctx context.Context, c *Content) error
	UpdateContent(ctx context.Context, c *Content) error
	DeleteContent(ctx context.Context, id string) error
	// GetContent resolves idOrSlug as id first, then as slug within the
	// blueprint.
	GetContent(ctx context.Context, blueprintID, idOrSlug string) (*Content, error)
	// ContentByID loads an item by primary id regardless of blueprint.
	// Relation endpoints may live in different blueprints.
	ContentByID(ctx context.Context, id string) (*Content, error)
	ContentByIDs(ctx context.Context, ids []string) ([]*Content, error)
	ListContent(ctx context.Context, blueprintID string, q query.Planned, sortable map[string]bool) ([]*Content, int64, error)

	MaxVersionNumber(ctx context.Context, contentID string) (int, error)
	InsertVersion(ctx context.Context, v *Version) error
	GetVersionByNumber(ctx context.Context, contentID string, number int) (*Version, error)
	ListVersions(ctx context.Context, contentID string) ([]*Version, error)
	DeleteVersions(ctx context.Context, contentID string) error

	InsertRelation(ctx context.Context, r *Relation) error
	DeleteRelation(ctx context.Context, id string) error
	// RelationsFor returns every relation where the content item is source
	// or target.
	RelationsFor(ctx context.Context, contentID string) ([]*Relation, error)
}

// Cache is an optional read-through cache in front of single-item loads. The
// db package provides the redis-backed implementation.
type Cache interface {
	Get(ctx context.Context, blueprintID, slug string) (*Content, bool)
	Set(ctx context.Context, c *Content)
	Invalidate(ctx context.Context, blueprintID, slug string)
}

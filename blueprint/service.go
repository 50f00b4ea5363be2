package blueprint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"strata.evalgo.org/common"
	"strata.evalgo.org/hooks"
)

// Store is the persistence contract the blueprint service needs. The db
// package provides the gorm-backed implementation.
type Store interface {
	InsertBlueprint(ctx context.Context, b *Blueprint) error
	UpdateBlueprint(ctx context.Context, b *Blueprint) error
	DeleteBlueprint(ctx context.Context, id string) error
	GetBlueprint(ctx context.Context, idOrSlug string) (*Blueprint, error)
	ListBlueprints(ctx context.Context) ([]*Blueprint, error)
	// ContentCount reports how many content items reference a blueprint.
	// Deletion is refused while it is non-zero.
	ContentCount(ctx context.Context, blueprintID string) (int64, error)
}

// Service manages blueprint definitions.
type Service struct {
	store  Store
	engine *Engine
	hooks  *hooks.Registry
}

// NewService creates a blueprint service.
func NewService(store Store, engine *Engine, registry *hooks.Registry) *Service {
	return &Service{store: store, engine: engine, hooks: registry}
}

// Create validates and persists a new blueprint. A missing slug is derived
// from the name.
func (s *Service) Create(ctx context.Context, b *Blueprint) (*Blueprint, []common.FieldError, error) {
	if b.Slug == "" {
		b.Slug = Slugify(b.Name)
	}
	if errs := s.engine.ValidateDefinition(b); len(errs) > 0 {
		return nil, errs, nil
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	for i := range b.Fields {
		if b.Fields[i].ID == "" {
			b.Fields[i].ID = uuid.NewString()
		}
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	if err := s.store.InsertBlueprint(ctx, b); err != nil {
		return nil, nil, err
	}

	s.emit(ctx, "blueprint:afterCreate", b)
	return b, nil, nil
}

// Update replaces a blueprint definition. Removing a field or renaming a
// field key is destructive for existing data; the core surfaces warnings and
// never rewrites stored rows.
func (s *Service) Update(ctx context.Context, idOrSlug string, next *Blueprint) (*Blueprint, []common.FieldError, []string, error) {
	current, err := s.store.GetBlueprint(ctx, idOrSlug)
	if err != nil {
		return nil, nil, nil, err
	}

	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	if next.Slug == "" {
		next.Slug = current.Slug
	}
	if errs := s.engine.ValidateDefinition(next); len(errs) > 0 {
		return nil, errs, nil, nil
	}
	for i := range next.Fields {
		if next.Fields[i].ID == "" {
			next.Fields[i].ID = uuid.NewString()
		}
	}

	warnings := destructiveChanges(current, next)
	next.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateBlueprint(ctx, next); err != nil {
		return nil, nil, nil, err
	}

	s.emit(ctx, "blueprint:afterUpdate", next)
	return next, nil, warnings, nil
}

// Delete removes a blueprint. Refused while content items still reference it.
func (s *Service) Delete(ctx context.Context, idOrSlug string) error {
	b, err := s.store.GetBlueprint(ctx, idOrSlug)
	if err != nil {
		return err
	}

	count, err := s.store.ContentCount(ctx, b.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return common.NewError(common.KindRestrict,
			fmt.Sprintf("blueprint %s still has %d content items", b.Slug, count))
	}

	if err := s.store.DeleteBlueprint(ctx, b.ID); err != nil {
		return err
	}

	s.emit(ctx, "blueprint:afterDelete", b)
	return nil
}

// Get loads a blueprint by id or slug.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*Blueprint, error) {
	return s.store.GetBlueprint(ctx, idOrSlug)
}

// List returns all blueprints.
func (s *Service) List(ctx context.Context) ([]*Blueprint, error) {
	return s.store.ListBlueprints(ctx)
}

// Validate checks a data map against a blueprint definition.
func (s *Service) Validate(b *Blueprint, data map[string]interface{}) Result {
	return s.engine.Validate(b, data)
}

func (s *Service) emit(ctx context.Context, event string, b *Blueprint) {
	if s.hooks == nil {
		return
	}
	result := s.hooks.Emit(ctx, event, hooks.Payload{
		"blueprint": b.Slug,
		"id":        b.ID,
	}, hooks.EmitOptions{})
	for _, err := range result.Errors {
		common.Logger.WithField("event", event).Warn("action hook failed: ", err)
	}
}

// destructiveChanges compares field sets and reports removals and key renames
// as warnings. A rename is detected by a surviving field id under a new key.
func destructiveChanges(current, next *Blueprint) []string {
	var warnings []string

	nextByID := make(map[string]Field, len(next.Fields))
	nextByKey := make(map[string]bool, len(next.Fields))
	for _, f := range next.Fields {
		nextByID[f.ID] = f
		nextByKey[f.Key] = true
	}

	for _, f := range current.Fields {
		if renamed, ok := nextByID[f.ID]; ok && renamed.Key != f.Key {
			warnings = append(warnings, fmt.Sprintf(
				"field key %q renamed to %q: existing data under %q is not rewritten", f.Key, renamed.Key, f.Key))
			continue
		}
		if !nextByKey[f.Key] {
			warnings = append(warnings, fmt.Sprintf(
				"field %q removed: existing data under it becomes unreachable", f.Key))
		}
	}

	return warnings
}

package content

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"strata.evalgo.org/blueprint"
	"strata.evalgo.org/common"
	"strata.evalgo.org/hooks"
	"strata.evalgo.org/query"
)

// coreColumns are sortable and filterable independent of the blueprint's
// declared fields.
var coreColumns = map[string]bool{
	"id":           true,
	"slug":         true,
	"status":       true,
	"created_at":   true,
	"updated_at":   true,
	"published_at": true,
	"created_by":   true,
}

// Service is the content storage service. All mutations run inside storage
// transactions; pre-write filter hooks run inside the transaction and can
// veto it, post-commit action hooks can never fail a committed write.
type Service struct {
	store  Store
	engine *blueprint.Engine
	hooks  *hooks.Registry
	cache  Cache
	logger *logrus.Logger
}

// NewService creates a content service. cache may be nil.
func NewService(store Store, engine *blueprint.Engine, registry *hooks.Registry, cache Cache) *Service {
	return &Service{
		store:  store,
		engine: engine,
		hooks:  registry,
		cache:  cache,
		logger: common.Logger,
	}
}

// Create validates input against the blueprint, derives a slug when the
// payload carries none, and persists the item plus its initial version.
// Validation failures are returned as data, never as an error.
func (s *Service) Create(ctx context.Context, b *blueprint.Blueprint, input map[string]interface{}, actor string) (*Content, []common.FieldError, error) {
	result := s.engine.Validate(b, input)
	if !result.OK {
		return nil, result.Errors, nil
	}

	slug := deriveSlug(b, input)
	if slug == "" {
		return nil, []common.FieldError{{Field: "slug", Message: "unable to derive a slug"}}, nil
	}

	var created *Content
	err := s.store.Transaction(ctx, func(tx Store) error {
		data, err := s.runFilter(ctx, EventBeforeCreate, b, "", input, actor)
		if err != nil {
			return err
		}

		serialized, err := s.engine.Serialize(b, data)
		if err != nil {
			return common.WrapError(common.KindStorage, "serialize content data", err)
		}

		now := time.Now().UTC()
		created = &Content{
			ID:          uuid.NewString(),
			BlueprintID: b.ID,
			Slug:        slug,
			Data:        serialized,
			Status:      b.DefaultStatus(),
			CreatedBy:   actor,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertContent(ctx, created); err != nil {
			return err
		}

		if b.Settings.Versioning {
			return tx.InsertVersion(ctx, &Version{
				ID:            uuid.NewString(),
				ContentID:     created.ID,
				BlueprintID:   b.ID,
				Data:          serialized,
				VersionNumber: 1,
				CreatedBy:     actor,
				ChangeSummary: ChangeSummary{Note: "initial create"},
				CreatedAt:     now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.emit(ctx, EventAfterCreate, b, created)
	return created, nil, nil
}

// Update applies a shallow patch to the item's data, validates the merged
// result, and appends a version when anything actually changed.
func (s *Service) Update(ctx context.Context, b *blueprint.Blueprint, idOrSlug string, patch map[string]interface{}, actor string) (*Content, []common.FieldError, error) {
	var (
		updated *Content
		verrs   []common.FieldError
		oldSlug string
	)
	err := s.store.Transaction(ctx, func(tx Store) error {
		current, err := tx.GetContent(ctx, b.ID, idOrSlug)
		if err != nil {
			return err
		}
		oldSlug = current.Slug

		effective := make(map[string]interface{}, len(current.Data)+len(patch))
		for k, v := range current.Data {
			effective[k] = v
		}
		for k, v := range patch {
			effective[k] = v
		}

		result := s.engine.Validate(b, effective)
		if !result.OK {
			verrs = result.Errors
			return errValidation
		}

		data, err := s.runFilter(ctx, EventBeforeUpdate, b, current.ID, effective, actor)
		if err != nil {
			return err
		}

		serialized, err := s.engine.Serialize(b, data)
		if err != nil {
			return common.WrapError(common.KindStorage, "serialize content data", err)
		}

		changes := diffFields(b, current.Data, serialized)

		current.Data = serialized
		current.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateContent(ctx, current); err != nil {
			return err
		}

		if b.Settings.Versioning && len(changes) > 0 {
			max, err := tx.MaxVersionNumber(ctx, current.ID)
			if err != nil {
				return err
			}
			if err := tx.InsertVersion(ctx, &Version{
				ID:            uuid.NewString(),
				ContentID:     current.ID,
				BlueprintID:   b.ID,
				Data:          serialized,
				VersionNumber: max + 1,
				CreatedBy:     actor,
				ChangeSummary: ChangeSummary{Changes: changes},
				CreatedAt:     current.UpdatedAt,
			}); err != nil {
				return err
			}
		}

		updated = current
		return nil
	})
	if err == errValidation {
		return nil, verrs, nil
	}
	if err != nil {
		return nil, nil, err
	}

	s.invalidate(ctx, b.ID, oldSlug)
	s.emit(ctx, EventAfterUpdate, b, updated)
	return updated, nil, nil
}

// Publish transitions draft (or archived) to published, stamping PublishedAt
// and PublishedBy. Publishing an already-published item is a no-op that
// returns the current row and emits no event.
func (s *Service) Publish(ctx context.Context, b *blueprint.Blueprint, idOrSlug, actor string) (*Content, error) {
	return s.transition(ctx, b, idOrSlug, actor, true)
}

// Unpublish returns a published item to draft, clearing PublishedAt and
// PublishedBy. Idempotent like Publish.
func (s *Service) Unpublish(ctx context.Context, b *blueprint.Blueprint, idOrSlug, actor string) (*Content, error) {
	return s.transition(ctx, b, idOrSlug, actor, false)
}

func (s *Service) transition(ctx context.Context, b *blueprint.Blueprint, idOrSlug, actor string, publish bool) (*Content, error) {
	var (
		item    *Content
		changed bool
	)
	err := s.store.Transaction(ctx, func(tx Store) error {
		current, err := tx.GetContent(ctx, b.ID, idOrSlug)
		if err != nil {
			return err
		}
		item = current

		if publish && current.Status == blueprint.StatusPublished {
			return nil
		}
		if !publish && current.Status != blueprint.StatusPublished {
			return nil
		}

		event := EventBeforePublish
		if !publish {
			event = EventBeforeUnpublish
		}
		if _, err := s.runFilter(ctx, event, b, current.ID, current.Data, actor); err != nil {
			return err
		}

		if publish {
			now := time.Now().UTC()
			current.Status = blueprint.StatusPublished
			current.PublishedAt = &now
			current.PublishedBy = actor
		} else {
			current.Status = blueprint.StatusDraft
			current.PublishedAt = nil
			current.PublishedBy = ""
		}
		current.UpdatedAt = time.Now().UTC()
		changed = true
		return tx.UpdateContent(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.invalidate(ctx, b.ID, item.Slug)
		event := EventAfterPublish
		if !publish {
			event = EventAfterUnpublish
		}
		s.emit(ctx, event, b, item)
	}
	return item, nil
}

// Archive moves an item to archived from any state.
func (s *Service) Archive(ctx context.Context, b *blueprint.Blueprint, idOrSlug, actor string) (*Content, error) {
	var item *Content
	err := s.store.Transaction(ctx, func(tx Store) error {
		current, err := tx.GetContent(ctx, b.ID, idOrSlug)
		if err != nil {
			return err
		}
		current.Status = blueprint.StatusArchived
		current.UpdatedAt = time.Now().UTC()
		item = current
		return tx.UpdateContent(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, b.ID, item.Slug)
	return item, nil
}

// Delete removes an item, enforcing each relation's deletion policy:
// restrict aborts, cascade deletes the related item depth-first (cycles are
// broken by a visited set), set-null drops only the relation. Versions are
// removed with their owner.
func (s *Service) Delete(ctx context.Context, b *blueprint.Blueprint, idOrSlug, actor string) error {
	var deleted *Content
	err := s.store.Transaction(ctx, func(tx Store) error {
		current, err := tx.GetContent(ctx, b.ID, idOrSlug)
		if err != nil {
			return err
		}
		deleted = current

		if _, err := s.runFilter(ctx, EventBeforeDelete, b, current.ID, current.Data, actor); err != nil {
			return err
		}

		visited := map[string]bool{}
		return s.deleteRecursive(ctx, tx, current, visited)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, b.ID, deleted.Slug)
	s.emit(ctx, EventAfterDelete, b, deleted)
	return nil
}

func (s *Service) deleteRecursive(ctx context.Context, tx Store, item *Content, visited map[string]bool) error {
	if visited[item.ID] {
		return nil
	}
	visited[item.ID] = true

	relations, err := tx.RelationsFor(ctx, item.ID)
	if err != nil {
		return err
	}

	for _, rel := range relations {
		switch rel.Policy {
		case PolicyCascade:
			otherID := rel.TargetContentID
			if otherID == item.ID {
				otherID = rel.SourceContentID
			}
			if err := tx.DeleteRelation(ctx, rel.ID); err != nil {
				return err
			}
			if visited[otherID] {
				continue
			}
			other, err := tx.ContentByID(ctx, otherID)
			if err != nil {
				if common.IsKind(err, common.KindNotFound) {
					continue
				}
				return err
			}
			if err := s.deleteRecursive(ctx, tx, other, visited); err != nil {
				return err
			}
		case PolicySetNull:
			if err := tx.DeleteRelation(ctx, rel.ID); err != nil {
				return err
			}
		default:
			return common.NewError(common.KindRestrict,
				fmt.Sprintf("content %s is referenced by relation %s", item.ID, rel.ID))
		}
	}

	if err := tx.DeleteVersions(ctx, item.ID); err != nil {
		return err
	}
	return tx.DeleteContent(ctx, item.ID)
}

// Get loads one item, deserializes its data and applies populate options.
// The content:afterGet filter lets plugins inject synthetic fields.
func (s *Service) Get(ctx context.Context, b *blueprint.Blueprint, idOrSlug string, opts GetOptions) (*Content, error) {
	var item *Content
	if s.cache != nil && len(opts.Populate) == 0 {
		if cached, ok := s.cache.Get(ctx, b.ID, idOrSlug); ok {
			item = cached
		}
	}

	if item == nil {
		loaded, err := s.store.GetContent(ctx, b.ID, idOrSlug)
		if err != nil {
			return nil, err
		}
		item = loaded
		if s.cache != nil && len(opts.Populate) == 0 {
			s.cache.Set(ctx, item)
		}
	}

	data, err := s.engine.Deserialize(b, item.Data)
	if err != nil {
		return nil, common.WrapError(common.KindStorage, "deserialize content data", err)
	}
	item.Data = data

	if len(opts.Populate) > 0 {
		if err := s.populate(ctx, b, []*Content{item}, opts.Populate); err != nil {
			return nil, err
		}
	}

	filtered, result := s.hooks.Filter(ctx, EventAfterGet, hooks.Payload{
		"blueprint": b.Slug,
		"id":        item.ID,
		"data":      hooks.Payload(item.Data),
	}, hooks.EmitOptions{})
	for _, ferr := range result.Errors {
		s.logger.WithField("event", EventAfterGet).Warn("filter hook failed: ", ferr)
	}
	if after, ok := filtered["data"].(hooks.Payload); ok {
		item.Data = after
	} else if after, ok := filtered["data"].(map[string]interface{}); ok {
		item.Data = after
	}

	return item, nil
}

// Query executes a planned query: filters in declared order, sorts on known
// fields only (unknown sort fields are dropped with a warning), clamped
// pagination and optional populate.
func (s *Service) Query(ctx context.Context, b *blueprint.Blueprint, planned query.Planned) (*Page, error) {
	sortable := make(map[string]bool, len(coreColumns)+len(b.Fields))
	for col := range coreColumns {
		sortable[col] = true
	}
	for _, f := range b.Fields {
		sortable[f.Key] = true
	}

	kept := make([]query.Sort, 0, len(planned.Sort))
	for _, srt := range planned.Sort {
		if !sortable[srt.Field] {
			s.logger.WithField("field", srt.Field).Warn("ignoring unknown sort field")
			continue
		}
		kept = append(kept, srt)
	}
	planned.Sort = kept

	items, total, err := s.store.ListContent(ctx, b.ID, planned, sortable)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		data, err := s.engine.Deserialize(b, item.Data)
		if err != nil {
			return nil, common.WrapError(common.KindStorage, "deserialize content data", err)
		}
		item.Data = data
	}

	if len(planned.Populate) > 0 {
		if err := s.populate(ctx, b, items, planned.Populate); err != nil {
			return nil, err
		}
	}

	totalPages := int((total + int64(planned.Limit) - 1) / int64(planned.Limit))
	return &Page{
		Items:      items,
		Total:      total,
		Page:       planned.Page,
		Limit:      planned.Limit,
		TotalPages: totalPages,
	}, nil
}

// Rollback replays version N through Update, producing version N+1. History
// is never deleted.
func (s *Service) Rollback(ctx context.Context, b *blueprint.Blueprint, idOrSlug string, versionNumber int, actor string) (*Content, []common.FieldError, error) {
	current, err := s.store.GetContent(ctx, b.ID, idOrSlug)
	if err != nil {
		return nil, nil, err
	}
	version, err := s.store.GetVersionByNumber(ctx, current.ID, versionNumber)
	if err != nil {
		return nil, nil, err
	}
	return s.Update(ctx, b, current.ID, version.Data, actor)
}

// Versions lists the stored versions of an item, newest first.
func (s *Service) Versions(ctx context.Context, b *blueprint.Blueprint, idOrSlug string) ([]*Version, error) {
	current, err := s.store.GetContent(ctx, b.ID, idOrSlug)
	if err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, current.ID)
}

// AddRelation creates a directed edge between two existing content items.
// Both endpoints must exist at commit time; the (source, target, type)
// triple must be unique.
func (s *Service) AddRelation(ctx context.Context, sourceID, targetID, relType, policy string) (*Relation, error) {
	switch relType {
	case RelationOneToOne, RelationOneToMany, RelationManyToMany:
	default:
		return nil, common.NewError(common.KindValidation, fmt.Sprintf("unknown relation type %q", relType))
	}
	switch policy {
	case "":
		policy = PolicyRestrict
	case PolicyRestrict, PolicyCascade, PolicySetNull:
	default:
		return nil, common.NewError(common.KindValidation, fmt.Sprintf("unknown relation policy %q", policy))
	}

	rel := &Relation{
		ID:              uuid.NewString(),
		SourceContentID: sourceID,
		TargetContentID: targetID,
		Type:            relType,
		Policy:          policy,
		CreatedAt:       time.Now().UTC(),
	}
	err := s.store.Transaction(ctx, func(tx Store) error {
		if _, err := tx.ContentByID(ctx, sourceID); err != nil {
			return err
		}
		if _, err := tx.ContentByID(ctx, targetID); err != nil {
			return err
		}
		return tx.InsertRelation(ctx, rel)
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// RemoveRelation deletes a relation edge by id.
func (s *Service) RemoveRelation(ctx context.Context, id string) error {
	return s.store.DeleteRelation(ctx, id)
}

// populate resolves relation references in the named fields, batching all
// referenced ids across the page into a single lookup.
func (s *Service) populate(ctx context.Context, b *blueprint.Blueprint, items []*Content, paths []string) error {
	ids := make(map[string]bool)
	for _, item := range items {
		for _, path := range paths {
			for _, id := range relationIDs(item.Data[path]) {
				ids[id] = true
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	loaded, err := s.store.ContentByIDs(ctx, idList)
	if err != nil {
		return err
	}
	byID := make(map[string]*Content, len(loaded))
	for _, c := range loaded {
		byID[c.ID] = c
	}

	for _, item := range items {
		for _, path := range paths {
			item.Data[path] = resolveRelations(item.Data[path], byID)
		}
	}
	return nil
}

// relationIDs extracts referenced content ids from a relation field value.
func relationIDs(value interface{}) []string {
	switch v := value.(type) {
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok && id != "" {
			return []string{id}
		}
	case []interface{}:
		var ids []string
		for _, entry := range v {
			ids = append(ids, relationIDs(entry)...)
		}
		return ids
	}
	return nil
}

// resolveRelations swaps relation references for the loaded content.
func resolveRelations(value interface{}, byID map[string]*Content) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			if c, found := byID[id]; found {
				return map[string]interface{}{
					"id":     c.ID,
					"slug":   c.Slug,
					"status": c.Status,
					"data":   c.Data,
				}
			}
		}
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, entry := range v {
			out[i] = resolveRelations(entry, byID)
		}
		return out
	}
	return value
}

// runFilter executes a pre-write filter chain with stop strategy. The
// returned data map replaces the input on success.
func (s *Service) runFilter(ctx context.Context, event string, b *blueprint.Blueprint, id string, data map[string]interface{}, actor string) (map[string]interface{}, error) {
	payload := hooks.Payload{
		"blueprint": b.Slug,
		"data":      hooks.Payload(data),
		"actor":     actor,
	}
	if id != "" {
		payload["id"] = id
	}

	filtered, result := s.hooks.Filter(ctx, event, payload, hooks.EmitOptions{Strategy: hooks.StrategyStop})
	if err := result.Err(); err != nil {
		return nil, common.WrapError(common.KindHook, event+" filter failed", err)
	}

	switch out := filtered["data"].(type) {
	case hooks.Payload:
		return out, nil
	case map[string]interface{}:
		return out, nil
	}
	return data, nil
}

// emit fires a post-commit action event. Handler errors are logged, never
// surfaced: a committed write stays committed.
func (s *Service) emit(ctx context.Context, event string, b *blueprint.Blueprint, item *Content) {
	result := s.hooks.Emit(ctx, event, hooks.Payload{
		"blueprint": b.Slug,
		"id":        item.ID,
		"slug":      item.Slug,
		"status":    item.Status,
		"data":      item.Data,
	}, hooks.EmitOptions{})
	for _, err := range result.Errors {
		s.logger.WithField("event", event).Warn("action hook failed: ", err)
	}
}

func (s *Service) invalidate(ctx context.Context, blueprintID, slug string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, blueprintID, slug)
	}
}

// deriveSlug prefers an explicit slug, then the configured title field, then
// the blueprint name.
func deriveSlug(b *blueprint.Blueprint, input map[string]interface{}) string {
	if raw, ok := input["slug"].(string); ok && raw != "" {
		return blueprint.Slugify(raw)
	}
	if b.Settings.TitleField != "" {
		if title, ok := input[b.Settings.TitleField].(string); ok && title != "" {
			return blueprint.Slugify(title)
		}
	}
	if title, ok := input["title"].(string); ok && title != "" {
		return blueprint.Slugify(title)
	}
	return blueprint.Slugify(b.Name)
}

// diffFields computes the ordered change summary: one entry per declared
// field whose serialized form differs.
func diffFields(b *blueprint.Blueprint, old, new map[string]interface{}) []FieldChange {
	var changes []FieldChange
	for _, f := range b.Fields {
		oldValue, oldOK := old[f.Key]
		newValue, newOK := new[f.Key]
		if !oldOK && !newOK {
			continue
		}
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		changes = append(changes, FieldChange{Field: f.Key, Old: oldValue, New: newValue})
	}
	return changes
}

// errValidation is an internal sentinel used to roll back a transaction when
// validation fails mid-update; the caller turns it back into data.
var errValidation = common.NewError(common.KindValidation, "validation failed")

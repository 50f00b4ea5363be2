package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"strata.evalgo.org/content"
	"strata.evalgo.org/query"
)

// coreColumns are content columns addressable directly; every other filter
// or sort key goes through the data JSON document.
var coreColumns = map[string]string{
	"id":           "id",
	"slug":         "slug",
	"status":       "status",
	"created_by":   "created_by",
	"published_by": "published_by",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"published_at": "published_at",
}

// Transaction runs fn against a transaction-scoped store.
func (s *Store) Transaction(ctx context.Context, fn func(tx content.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func (s *Store) InsertContent(ctx context.Context, c *content.Content) error {
	row := contentToRow(c)
	return translate(s.db.WithContext(ctx).Create(row).Error, fmt.Sprintf("insert content %s", c.Slug))
}

func (s *Store) UpdateContent(ctx context.Context, c *content.Content) error {
	row := contentToRow(c)
	res := s.db.WithContext(ctx).Model(&contentRow{}).Where("id = ?", c.ID).Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("update content %s", c.ID))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("update content %s", c.ID))
	}
	return nil
}

func (s *Store) DeleteContent(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&contentRow{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("delete content %s", id))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("delete content %s", id))
	}
	return nil
}

// GetContent resolves idOrSlug as id first, then as slug within the
// blueprint.
func (s *Store) GetContent(ctx context.Context, blueprintID, idOrSlug string) (*content.Content, error) {
	var row contentRow
	err := s.db.WithContext(ctx).Where("blueprint_id = ? AND id = ?", blueprintID, idOrSlug).First(&row).Error
	if err == nil {
		return rowToContent(&row), nil
	}
	err = s.db.WithContext(ctx).Where("blueprint_id = ? AND slug = ?", blueprintID, idOrSlug).First(&row).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("content %s", idOrSlug))
	}
	return rowToContent(&row), nil
}

// ContentByID loads an item by primary id regardless of blueprint.
func (s *Store) ContentByID(ctx context.Context, id string) (*content.Content, error) {
	var row contentRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("content %s", id))
	}
	return rowToContent(&row), nil
}

func (s *Store) ContentByIDs(ctx context.Context, ids []string) ([]*content.Content, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []contentRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, translate(err, "content by ids")
	}
	out := make([]*content.Content, 0, len(rows))
	for i := range rows {
		out = append(out, rowToContent(&rows[i]))
	}
	return out, nil
}

// ListContent executes a planned query: filters over core columns or data
// JSON paths, sorting restricted to the sortable set, then pagination.
func (s *Store) ListContent(ctx context.Context, blueprintID string, q query.Planned, sortable map[string]bool) ([]*content.Content, int64, error) {
	tx := s.db.WithContext(ctx).Model(&contentRow{}).Where("blueprint_id = ?", blueprintID)

	for _, f := range q.Filters {
		tx = applyFilter(tx, f)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "count content")
	}

	for _, srt := range q.Sort {
		if !sortable[srt.Field] {
			continue
		}
		dir := "ASC"
		if srt.Direction == query.DirDesc {
			dir = "DESC"
		}
		tx = tx.Order(fmt.Sprintf("%s %s", columnExpr(srt.Field), dir))
	}

	var rows []contentRow
	err := tx.Offset((q.Page - 1) * q.Limit).Limit(q.Limit).Find(&rows).Error
	if err != nil {
		return nil, 0, translate(err, "list content")
	}

	out := make([]*content.Content, 0, len(rows))
	for i := range rows {
		out = append(out, rowToContent(&rows[i]))
	}
	return out, total, nil
}

// columnExpr maps a field key to its SQL expression: a core column name or a
// JSON text extraction. Keys reach this point validated against the
// blueprint, quotes are stripped as a hard stop.
func columnExpr(field string) string {
	if col, ok := coreColumns[field]; ok {
		return col
	}
	return fmt.Sprintf("data->>'%s'", strings.ReplaceAll(field, "'", ""))
}

func applyFilter(tx *gorm.DB, f query.Filter) *gorm.DB {
	expr := columnExpr(f.Field)
	switch f.Op {
	case query.OpEq:
		return tx.Where(expr+" = ?", f.Value)
	case query.OpNe:
		return tx.Where(expr+" <> ?", f.Value)
	case query.OpIn:
		return tx.Where(expr+" IN ?", f.Values)
	case query.OpNin:
		return tx.Where(expr+" NOT IN ?", f.Values)
	case query.OpGt:
		return tx.Where(expr+" > ?", f.Value)
	case query.OpGte:
		return tx.Where(expr+" >= ?", f.Value)
	case query.OpLt:
		return tx.Where(expr+" < ?", f.Value)
	case query.OpLte:
		return tx.Where(expr+" <= ?", f.Value)
	case query.OpContains:
		return tx.Where(expr+" LIKE ?", "%"+f.Value+"%")
	case query.OpStartsWith:
		return tx.Where(expr+" LIKE ?", f.Value+"%")
	case query.OpEndsWith:
		return tx.Where(expr+" LIKE ?", "%"+f.Value)
	default:
		return tx
	}
}

func (s *Store) MaxVersionNumber(ctx context.Context, contentID string) (int, error) {
	var max int
	err := s.db.WithContext(ctx).Model(&versionRow{}).
		Where("content_id = ?", contentID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, translate(err, "max version number")
	}
	return max, nil
}

func (s *Store) InsertVersion(ctx context.Context, v *content.Version) error {
	row := &versionRow{
		ID:            v.ID,
		ContentID:     v.ContentID,
		BlueprintID:   v.BlueprintID,
		Data:          marshalJSON(v.Data),
		VersionNumber: v.VersionNumber,
		CreatedBy:     v.CreatedBy,
		ChangeSummary: marshalJSON(v.ChangeSummary),
		CreatedAt:     v.CreatedAt,
	}
	return translate(s.db.WithContext(ctx).Create(row).Error, fmt.Sprintf("insert version %d", v.VersionNumber))
}

func (s *Store) GetVersionByNumber(ctx context.Context, contentID string, number int) (*content.Version, error) {
	var row versionRow
	err := s.db.WithContext(ctx).Where("content_id = ? AND version_number = ?", contentID, number).First(&row).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("version %d", number))
	}
	return rowToVersion(&row), nil
}

func (s *Store) ListVersions(ctx context.Context, contentID string) ([]*content.Version, error) {
	var rows []versionRow
	err := s.db.WithContext(ctx).Where("content_id = ?", contentID).Order("version_number DESC").Find(&rows).Error
	if err != nil {
		return nil, translate(err, "list versions")
	}
	out := make([]*content.Version, 0, len(rows))
	for i := range rows {
		out = append(out, rowToVersion(&rows[i]))
	}
	return out, nil
}

func (s *Store) DeleteVersions(ctx context.Context, contentID string) error {
	return translate(s.db.WithContext(ctx).Delete(&versionRow{}, "content_id = ?", contentID).Error, "delete versions")
}

func (s *Store) InsertRelation(ctx context.Context, r *content.Relation) error {
	row := &relationRow{
		ID:              r.ID,
		SourceContentID: r.SourceContentID,
		TargetContentID: r.TargetContentID,
		Type:            r.Type,
		Policy:          r.Policy,
		Metadata:        marshalJSON(r.Metadata),
		CreatedAt:       r.CreatedAt,
	}
	return translate(s.db.WithContext(ctx).Create(row).Error, "insert relation")
}

func (s *Store) DeleteRelation(ctx context.Context, id string) error {
	return translate(s.db.WithContext(ctx).Delete(&relationRow{}, "id = ?", id).Error, fmt.Sprintf("delete relation %s", id))
}

// RelationsFor returns every relation where the content item is source or
// target.
func (s *Store) RelationsFor(ctx context.Context, contentID string) ([]*content.Relation, error) {
	var rows []relationRow
	err := s.db.WithContext(ctx).
		Where("source_content_id = ? OR target_content_id = ?", contentID, contentID).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, "relations for content")
	}
	out := make([]*content.Relation, 0, len(rows))
	for i := range rows {
		r := rows[i]
		out = append(out, &content.Relation{
			ID:              r.ID,
			SourceContentID: r.SourceContentID,
			TargetContentID: r.TargetContentID,
			Type:            r.Type,
			Policy:          r.Policy,
			Metadata:        unmarshalMap(r.Metadata),
			CreatedAt:       r.CreatedAt,
		})
	}
	return out, nil
}

func contentToRow(c *content.Content) *contentRow {
	return &contentRow{
		ID:          c.ID,
		BlueprintID: c.BlueprintID,
		Slug:        c.Slug,
		Data:        marshalJSON(c.Data),
		Meta:        marshalJSON(c.Meta),
		Status:      c.Status,
		CreatedBy:   c.CreatedBy,
		PublishedBy: c.PublishedBy,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		PublishedAt: c.PublishedAt,
	}
}

func rowToContent(row *contentRow) *content.Content {
	return &content.Content{
		ID:          row.ID,
		BlueprintID: row.BlueprintID,
		Slug:        row.Slug,
		Data:        unmarshalMap(row.Data),
		Meta:        unmarshalMap(row.Meta),
		Status:      row.Status,
		CreatedBy:   row.CreatedBy,
		PublishedBy: row.PublishedBy,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		PublishedAt: row.PublishedAt,
	}
}

func rowToVersion(row *versionRow) *content.Version {
	v := &content.Version{
		ID:            row.ID,
		ContentID:     row.ContentID,
		BlueprintID:   row.BlueprintID,
		Data:          unmarshalMap(row.Data),
		VersionNumber: row.VersionNumber,
		CreatedBy:     row.CreatedBy,
		CreatedAt:     row.CreatedAt,
	}
	if len(row.ChangeSummary) > 0 {
		_ = json.Unmarshal(row.ChangeSummary, &v.ChangeSummary)
	}
	return v
}

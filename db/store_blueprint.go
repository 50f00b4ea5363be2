package db

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"strata.evalgo.org/blueprint"
)

func (s *Store) InsertBlueprint(ctx context.Context, b *blueprint.Blueprint) error {
	row := blueprintToRow(b)
	return translate(s.db.WithContext(ctx).Create(row).Error, fmt.Sprintf("insert blueprint %s", b.Slug))
}

func (s *Store) UpdateBlueprint(ctx context.Context, b *blueprint.Blueprint) error {
	row := blueprintToRow(b)
	res := s.db.WithContext(ctx).Model(&blueprintRow{}).Where("id = ?", b.ID).Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("update blueprint %s", b.ID))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("update blueprint %s", b.ID))
	}
	return nil
}

func (s *Store) DeleteBlueprint(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&blueprintRow{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("delete blueprint %s", id))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("delete blueprint %s", id))
	}
	return nil
}

// GetBlueprint resolves idOrSlug as id first, then as slug.
func (s *Store) GetBlueprint(ctx context.Context, idOrSlug string) (*blueprint.Blueprint, error) {
	var row blueprintRow
	err := s.db.WithContext(ctx).Where("id = ?", idOrSlug).First(&row).Error
	if err != nil {
		err = s.db.WithContext(ctx).Where("slug = ?", idOrSlug).First(&row).Error
	}
	if err != nil {
		return nil, translate(err, fmt.Sprintf("blueprint %s", idOrSlug))
	}
	return rowToBlueprint(&row)
}

func (s *Store) ListBlueprints(ctx context.Context) ([]*blueprint.Blueprint, error) {
	var rows []blueprintRow
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, "list blueprints")
	}
	out := make([]*blueprint.Blueprint, 0, len(rows))
	for i := range rows {
		b, err := rowToBlueprint(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// ContentCount reports how many content items reference a blueprint.
func (s *Store) ContentCount(ctx context.Context, blueprintID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&contentRow{}).Where("blueprint_id = ?", blueprintID).Count(&count).Error
	if err != nil {
		return 0, translate(err, "count blueprint content")
	}
	return count, nil
}

func blueprintToRow(b *blueprint.Blueprint) *blueprintRow {
	return &blueprintRow{
		ID:        b.ID,
		Name:      b.Name,
		Slug:      b.Slug,
		Fields:    marshalJSON(b.Fields),
		Settings:  marshalJSON(b.Settings),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func rowToBlueprint(row *blueprintRow) (*blueprint.Blueprint, error) {
	b := &blueprint.Blueprint{
		ID:        row.ID,
		Name:      row.Name,
		Slug:      row.Slug,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.Fields) > 0 {
		if err := json.Unmarshal(row.Fields, &b.Fields); err != nil {
			return nil, translate(err, fmt.Sprintf("decode blueprint %s fields", row.ID))
		}
	}
	if len(row.Settings) > 0 {
		if err := json.Unmarshal(row.Settings, &b.Settings); err != nil {
			return nil, translate(err, fmt.Sprintf("decode blueprint %s settings", row.ID))
		}
	}
	return b, nil
}

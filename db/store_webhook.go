package db

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"strata.evalgo.org/webhook"
)

func (s *Store) InsertWebhook(ctx context.Context, w *webhook.Webhook) error {
	row := webhookToRow(w)
	return translate(s.db.WithContext(ctx).Create(row).Error, "insert webhook")
}

func (s *Store) UpdateWebhook(ctx context.Context, w *webhook.Webhook) error {
	row := webhookToRow(w)
	res := s.db.WithContext(ctx).Model(&webhookRow{}).Where("id = ?", w.ID).Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("update webhook %s", w.ID))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("update webhook %s", w.ID))
	}
	return nil
}

func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&webhookRow{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("delete webhook %s", id))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("delete webhook %s", id))
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, id string) (*webhook.Webhook, error) {
	var row webhookRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("webhook %s", id))
	}
	return rowToWebhook(&row), nil
}

func (s *Store) ListWebhooks(ctx context.Context) ([]*webhook.Webhook, error) {
	var rows []webhookRow
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, "list webhooks")
	}
	out := make([]*webhook.Webhook, 0, len(rows))
	for i := range rows {
		out = append(out, rowToWebhook(&rows[i]))
	}
	return out, nil
}

// ActiveWebhooksForEvent returns active webhooks subscribed to an event. The
// events column is a JSON array; containment runs in the database.
func (s *Store) ActiveWebhooksForEvent(ctx context.Context, event string) ([]*webhook.Webhook, error) {
	var rows []webhookRow
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND events @> ?", true, marshalJSON([]string{event})).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, "webhooks for event")
	}
	out := make([]*webhook.Webhook, 0, len(rows))
	for i := range rows {
		out = append(out, rowToWebhook(&rows[i]))
	}
	return out, nil
}

func (s *Store) InsertDelivery(ctx context.Context, d *webhook.Delivery) error {
	row := &webhookDeliveryRow{
		ID:          d.ID,
		WebhookID:   d.WebhookID,
		Event:       d.Event,
		StatusCode:  d.StatusCode,
		Success:     d.Success,
		Attempt:     d.Attempt,
		Response:    d.Response,
		Duration:    d.Duration,
		Error:       d.Error,
		CreatedAt:   d.CreatedAt,
		CompletedAt: d.CompletedAt,
	}
	return translate(s.db.WithContext(ctx).Create(row).Error, "insert delivery")
}

// CompleteDelivery fills the outcome columns of the row created at attempt
// start. It is the only permitted update to a delivery row.
func (s *Store) CompleteDelivery(ctx context.Context, d *webhook.Delivery) error {
	res := s.db.WithContext(ctx).Model(&webhookDeliveryRow{}).Where("id = ?", d.ID).Updates(map[string]interface{}{
		"status_code":  d.StatusCode,
		"success":      d.Success,
		"response":     d.Response,
		"duration":     d.Duration,
		"error":        d.Error,
		"completed_at": d.CompletedAt,
	})
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("complete delivery %s", d.ID))
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, fmt.Sprintf("complete delivery %s", d.ID))
	}
	return nil
}

// ListDeliveries returns a webhook's delivery history, newest first.
func (s *Store) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]*webhook.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []webhookDeliveryRow
	err := s.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, "list deliveries")
	}
	out := make([]*webhook.Delivery, 0, len(rows))
	for i := range rows {
		r := rows[i]
		out = append(out, &webhook.Delivery{
			ID:          r.ID,
			WebhookID:   r.WebhookID,
			Event:       r.Event,
			StatusCode:  r.StatusCode,
			Success:     r.Success,
			Attempt:     r.Attempt,
			Response:    r.Response,
			Duration:    r.Duration,
			Error:       r.Error,
			CreatedAt:   r.CreatedAt,
			CompletedAt: r.CompletedAt,
		})
	}
	return out, nil
}

func webhookToRow(w *webhook.Webhook) *webhookRow {
	return &webhookRow{
		ID:        w.ID,
		Name:      w.Name,
		URL:       w.URL,
		Events:    marshalJSON(w.Events),
		Headers:   marshalJSON(w.Headers),
		Secret:    w.Secret,
		IsActive:  w.IsActive,
		CreatedAt: w.CreatedAt,
	}
}

func rowToWebhook(row *webhookRow) *webhook.Webhook {
	w := &webhook.Webhook{
		ID:        row.ID,
		Name:      row.Name,
		URL:       row.URL,
		Secret:    row.Secret,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
	}
	if len(row.Events) > 0 {
		_ = json.Unmarshal(row.Events, &w.Events)
	}
	if len(row.Headers) > 0 {
		_ = json.Unmarshal(row.Headers, &w.Headers)
	}
	return w
}

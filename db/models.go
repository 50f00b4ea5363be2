package db

import (
	"encoding/json"
	"time"
)

// Row models mirror the storage schema one to one. JSON-typed columns are
// held as raw bytes here; the mapping functions in the store files marshal
// them at the boundary.

type userRow struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string
	Role         string
	Permissions  []byte `gorm:"type:jsonb"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type apiKeyRow struct {
	ID                 string `gorm:"primaryKey"`
	UserID             string `gorm:"index;not null"`
	Name               string
	KeyHash            string `gorm:"uniqueIndex;not null"`
	KeyPrefix          string
	Permissions        []byte `gorm:"type:jsonb"`
	RateLimitPerMinute int
	IsActive           bool `gorm:"not null;default:true"`
	ExpiresAt          *time.Time
	LastUsedAt         *time.Time
	CreatedAt          time.Time
}

func (apiKeyRow) TableName() string { return "api_keys" }

type blueprintRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Slug      string `gorm:"uniqueIndex;not null"`
	Fields    []byte `gorm:"type:jsonb"`
	Settings  []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (blueprintRow) TableName() string { return "blueprints" }

type contentRow struct {
	ID          string `gorm:"primaryKey"`
	BlueprintID string `gorm:"not null;uniqueIndex:idx_contents_blueprint_slug,priority:1;index"`
	Slug        string `gorm:"not null;uniqueIndex:idx_contents_blueprint_slug,priority:2"`
	Data        []byte `gorm:"type:jsonb"`
	Meta        []byte `gorm:"type:jsonb"`
	Status      string `gorm:"index"`
	CreatedBy   string
	PublishedBy string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time `gorm:"index"`
}

func (contentRow) TableName() string { return "contents" }

type relationRow struct {
	ID              string `gorm:"primaryKey"`
	SourceContentID string `gorm:"not null;uniqueIndex:idx_relations_edge,priority:1;index;index:idx_relations_source_type,priority:1"`
	TargetContentID string `gorm:"not null;uniqueIndex:idx_relations_edge,priority:2;index"`
	Type            string `gorm:"not null;uniqueIndex:idx_relations_edge,priority:3;index:idx_relations_source_type,priority:2"`
	Policy          string
	Metadata        []byte `gorm:"type:jsonb"`
	CreatedAt       time.Time
}

func (relationRow) TableName() string { return "relations" }

type versionRow struct {
	ID            string `gorm:"primaryKey"`
	ContentID     string `gorm:"not null;uniqueIndex:idx_versions_content_number,priority:1;index"`
	BlueprintID   string
	Data          []byte `gorm:"type:jsonb"`
	VersionNumber int    `gorm:"not null;uniqueIndex:idx_versions_content_number,priority:2"`
	CreatedBy     string
	ChangeSummary []byte `gorm:"type:jsonb"`
	CreatedAt     time.Time
}

func (versionRow) TableName() string { return "versions" }

type webhookRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	URL       string `gorm:"not null"`
	Events    []byte `gorm:"type:jsonb"`
	Headers   []byte `gorm:"type:jsonb"`
	Secret    string
	IsActive  bool `gorm:"index"`
	CreatedAt time.Time
}

func (webhookRow) TableName() string { return "webhooks" }

type webhookDeliveryRow struct {
	ID          string `gorm:"primaryKey"`
	WebhookID   string `gorm:"index;not null;index:idx_deliveries_webhook_success,priority:1"`
	Event       string `gorm:"index"`
	StatusCode  int
	Success     bool `gorm:"index:idx_deliveries_webhook_success,priority:2"`
	Attempt     int
	Response    string
	Duration    int64
	Error       string
	CreatedAt   time.Time `gorm:"index"`
	CompletedAt *time.Time
}

func (webhookDeliveryRow) TableName() string { return "webhook_deliveries" }

type auditLogRow struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Action    string `gorm:"index"`
	Resource  string
	Details   []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (auditLogRow) TableName() string { return "audit_logs" }

type settingRow struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (settingRow) TableName() string { return "settings" }

type pluginConfigRow struct {
	PluginID  string `gorm:"primaryKey"`
	Config    []byte `gorm:"type:jsonb"`
	State     string
	UpdatedAt time.Time
}

func (pluginConfigRow) TableName() string { return "plugin_configs" }

type migrationRow struct {
	ID              string `gorm:"primaryKey"`
	Name            string
	ExecutedAt      time.Time
	ExecutionTimeMs int64
}

func (migrationRow) TableName() string { return "migrations" }

func marshalJSON(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func unmarshalMap(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

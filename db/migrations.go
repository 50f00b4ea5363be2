package db

import (
	"gorm.io/gorm"

	"strata.evalgo.org/migrate"
)

// MigrationDB adapts the gorm handle to the migration runner's storage
// contract. A separate type because its Transaction signature differs from
// the content store's.
type MigrationDB struct {
	db *gorm.DB
}

// Migrations returns the runner-facing view of this store.
func (s *Store) Migrations() *MigrationDB {
	return &MigrationDB{db: s.db}
}

// EnsureMigrationTable creates the migrations table itself; the runner needs
// it before the first migration runs.
func (m *MigrationDB) EnsureMigrationTable() error {
	return translate(m.db.AutoMigrate(&migrationRow{}), "create migrations table")
}

func (m *MigrationDB) AppliedMigrations() ([]migrate.Record, error) {
	var rows []migrationRow
	if err := m.db.Order("executed_at ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, "load applied migrations")
	}
	records := make([]migrate.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, migrate.Record{
			ID:              row.ID,
			Name:            row.Name,
			ExecutedAt:      row.ExecutedAt,
			ExecutionTimeMs: row.ExecutionTimeMs,
		})
	}
	return records, nil
}

func (m *MigrationDB) RecordMigration(rec migrate.Record) error {
	row := &migrationRow{
		ID:              rec.ID,
		Name:            rec.Name,
		ExecutedAt:      rec.ExecutedAt,
		ExecutionTimeMs: rec.ExecutionTimeMs,
	}
	return translate(m.db.Create(row).Error, "record migration")
}

func (m *MigrationDB) DeleteMigrationRecord(id string) error {
	return translate(m.db.Delete(&migrationRow{}, "id = ?", id).Error, "delete migration record")
}

func (m *MigrationDB) Transaction(fn func(tx migrate.DB) error) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		return fn(&MigrationDB{db: tx})
	})
}

func (m *MigrationDB) Exec(sql string, values ...interface{}) error {
	return translate(m.db.Exec(sql, values...).Error, "exec migration statement")
}

// automigrate is the shared up-callback body: schema DDL goes through gorm's
// migrator so the row models stay the single source of truth for the table
// shapes.
func automigrate(db migrate.DB, models ...interface{}) error {
	gdb, ok := db.(*MigrationDB)
	if !ok {
		return nil
	}
	return gdb.db.AutoMigrate(models...)
}

func dropTables(db migrate.DB, models ...interface{}) error {
	gdb, ok := db.(*MigrationDB)
	if !ok {
		return nil
	}
	return gdb.db.Migrator().DropTable(models...)
}

// CoreMigrations is the ordered schema history of the backend. The runner
// applies them at startup; each is recorded in the migrations table.
func CoreMigrations() []migrate.Migration {
	return []migrate.Migration{
		{
			ID:        "20250101000000_users",
			Name:      "create users and api keys",
			Timestamp: 20250101000000,
			Up: func(db migrate.DB) error {
				return automigrate(db, &userRow{}, &apiKeyRow{})
			},
			Down: func(db migrate.DB) error {
				return dropTables(db, &apiKeyRow{}, &userRow{})
			},
		},
		{
			ID:        "20250101000001_blueprints",
			Name:      "create blueprints",
			Timestamp: 20250101000001,
			Up: func(db migrate.DB) error {
				return automigrate(db, &blueprintRow{})
			},
			Down: func(db migrate.DB) error {
				return dropTables(db, &blueprintRow{})
			},
		},
		{
			ID:        "20250101000002_contents",
			Name:      "create contents, relations and versions",
			Timestamp: 20250101000002,
			Up: func(db migrate.DB) error {
				return automigrate(db, &contentRow{}, &relationRow{}, &versionRow{})
			},
			Down: func(db migrate.DB) error {
				return dropTables(db, &versionRow{}, &relationRow{}, &contentRow{})
			},
		},
		{
			ID:        "20250101000003_webhooks",
			Name:      "create webhooks and deliveries",
			Timestamp: 20250101000003,
			Up: func(db migrate.DB) error {
				return automigrate(db, &webhookRow{}, &webhookDeliveryRow{})
			},
			Down: func(db migrate.DB) error {
				return dropTables(db, &webhookDeliveryRow{}, &webhookRow{})
			},
		},
		{
			ID:        "20250101000004_system",
			Name:      "create settings, audit logs and plugin configs",
			Timestamp: 20250101000004,
			Up: func(db migrate.DB) error {
				return automigrate(db, &settingRow{}, &auditLogRow{}, &pluginConfigRow{})
			},
			Down: func(db migrate.DB) error {
				return dropTables(db, &pluginConfigRow{}, &auditLogRow{}, &settingRow{})
			},
		},
		{
			ID:        "20250815000000_api_key_policy",
			Name:      "add api key activation columns and secondary indexes",
			Timestamp: 20250815000000,
			Up: func(db migrate.DB) error {
				if gdb, ok := db.(*MigrationDB); ok {
					mig := gdb.db.Migrator()
					if mig.HasColumn(&apiKeyRow{}, "prefix") {
						if err := mig.RenameColumn(&apiKeyRow{}, "prefix", "key_prefix"); err != nil {
							return err
						}
					}
					if mig.HasColumn(&apiKeyRow{}, "rate_limit") {
						if err := mig.RenameColumn(&apiKeyRow{}, "rate_limit", "rate_limit_per_minute"); err != nil {
							return err
						}
					}
				}
				return automigrate(db, &apiKeyRow{}, &contentRow{}, &relationRow{}, &webhookDeliveryRow{})
			},
			Down: func(db migrate.DB) error {
				gdb, ok := db.(*MigrationDB)
				if !ok {
					return nil
				}
				mig := gdb.db.Migrator()
				for _, col := range []string{"permissions", "is_active", "expires_at"} {
					if err := mig.DropColumn(&apiKeyRow{}, col); err != nil {
						return err
					}
				}
				if err := mig.RenameColumn(&apiKeyRow{}, "key_prefix", "prefix"); err != nil {
					return err
				}
				return mig.RenameColumn(&apiKeyRow{}, "rate_limit_per_minute", "rate_limit")
			},
		},
	}
}

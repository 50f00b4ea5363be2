// Package migrate implements the ordered schema migration runner. Migrations
// are Go up/down callbacks against a storage handle; applied ids are recorded
// in the migrations table so each migration runs exactly once.
package migrate

import (
	"fmt"
	"sort"
	"time"

	"strata.evalgo.org/common"
)

// DB is the storage handle migrations and the runner operate on. The db
// package implements it over gorm; Transaction yields a handle bound to the
// transaction.
type DB interface {
	AppliedMigrations() ([]Record, error)
	RecordMigration(rec Record) error
	DeleteMigrationRecord(id string) error
	Transaction(fn func(tx DB) error) error
	// Exec runs a raw SQL statement. Migration callbacks use it for schema
	// changes.
	Exec(sql string, values ...interface{}) error
}

// Migration is one schema change. ID is a timestamp-prefixed globally unique
// string; Timestamp orders execution.
type Migration struct {
	ID        string
	Name      string
	Timestamp int64
	Up        func(db DB) error
	Down      func(db DB) error
}

// Record is one row of the migrations table.
type Record struct {
	ID              string
	Name            string
	ExecutedAt      time.Time
	ExecutionTimeMs int64
}

// Options control a migrate run.
type Options struct {
	// Transactional wraps all pending migrations in one transaction. Only
	// effective together with StopOnError.
	Transactional bool

	// StopOnError aborts at the first failing migration. When false the
	// runner continues and reports every failure.
	StopOnError bool
}

// Result reports one migrate or rollback run.
type Result struct {
	Applied []string
	Skipped []string
	Failed  map[string]error
}

// Runner applies and rolls back migrations against a DB.
type Runner struct {
	db DB
}

// NewRunner creates a migration runner.
func NewRunner(db DB) *Runner {
	return &Runner{db: db}
}

// Migrate applies every pending migration in timestamp order. Running the
// same list twice is a no-op for the already-applied ids.
func (r *Runner) Migrate(migrations []Migration, opts Options) (*Result, error) {
	pending, err := r.pending(migrations)
	if err != nil {
		return nil, err
	}

	result := &Result{Failed: make(map[string]error)}
	if len(pending) == 0 {
		return result, nil
	}

	if opts.Transactional && opts.StopOnError {
		err := r.db.Transaction(func(tx DB) error {
			for _, m := range pending {
				if err := applyOne(tx, m); err != nil {
					return common.WrapError(common.KindMigration, fmt.Sprintf("migration %s failed", m.ID), err)
				}
				result.Applied = append(result.Applied, m.ID)
			}
			return nil
		})
		if err != nil {
			// rolled back: nothing was applied
			result.Applied = nil
			return result, err
		}
		return result, nil
	}

	for _, m := range pending {
		if err := applyOne(r.db, m); err != nil {
			werr := common.WrapError(common.KindMigration, fmt.Sprintf("migration %s failed", m.ID), err)
			result.Failed[m.ID] = werr
			if opts.StopOnError {
				return result, werr
			}
			result.Skipped = append(result.Skipped, m.ID)
			continue
		}
		result.Applied = append(result.Applied, m.ID)
	}
	return result, nil
}

// Rollback undoes the last n applied migrations in reverse apply order. A
// recorded id missing from the given list aborts under StopOnError.
func (r *Runner) Rollback(migrations []Migration, n int, opts Options) (*Result, error) {
	applied, err := r.db.AppliedMigrations()
	if err != nil {
		return nil, common.WrapError(common.KindMigration, "load applied migrations", err)
	}
	sort.Slice(applied, func(i, j int) bool {
		return applied[i].ExecutedAt.After(applied[j].ExecutedAt)
	})
	if n > len(applied) {
		n = len(applied)
	}

	byID := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		byID[m.ID] = m
	}

	result := &Result{Failed: make(map[string]error)}
	for _, rec := range applied[:n] {
		m, ok := byID[rec.ID]
		if !ok {
			werr := common.NewError(common.KindMigration, fmt.Sprintf("migration %s not found", rec.ID))
			result.Failed[rec.ID] = werr
			if opts.StopOnError {
				return result, werr
			}
			result.Skipped = append(result.Skipped, rec.ID)
			continue
		}
		if err := rollbackOne(r.db, m); err != nil {
			werr := common.WrapError(common.KindMigration, fmt.Sprintf("rollback of %s failed", m.ID), err)
			result.Failed[m.ID] = werr
			if opts.StopOnError {
				return result, werr
			}
			result.Skipped = append(result.Skipped, m.ID)
			continue
		}
		result.Applied = append(result.Applied, m.ID)
	}
	return result, nil
}

// pending sorts by timestamp and drops already-applied ids.
func (r *Runner) pending(migrations []Migration) ([]Migration, error) {
	applied, err := r.db.AppliedMigrations()
	if err != nil {
		return nil, common.WrapError(common.KindMigration, "load applied migrations", err)
	}
	appliedIDs := make(map[string]bool, len(applied))
	for _, rec := range applied {
		appliedIDs[rec.ID] = true
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	var pending []Migration
	for _, m := range sorted {
		if !appliedIDs[m.ID] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

func applyOne(db DB, m Migration) error {
	start := time.Now()
	if err := m.Up(db); err != nil {
		return err
	}
	return db.RecordMigration(Record{
		ID:              m.ID,
		Name:            m.Name,
		ExecutedAt:      time.Now().UTC(),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	})
}

func rollbackOne(db DB, m Migration) error {
	if m.Down == nil {
		return fmt.Errorf("migration %s has no down callback", m.ID)
	}
	if err := m.Down(db); err != nil {
		return err
	}
	return db.DeleteMigrationRecord(m.ID)
}

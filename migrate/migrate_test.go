package migrate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB is an in-memory DB with snapshot/restore transaction semantics
type fakeDB struct {
	records []Record
	log     *[]string
}

func newFakeDB() *fakeDB {
	log := []string{}
	return &fakeDB{log: &log}
}

func (f *fakeDB) AppliedMigrations() ([]Record, error) {
	out := make([]Record, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeDB) RecordMigration(rec Record) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeDB) DeleteMigrationRecord(id string) error {
	for i, rec := range f.records {
		if rec.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return errors.New("record not found")
}

func (f *fakeDB) Transaction(fn func(tx DB) error) error {
	snapshot := make([]Record, len(f.records))
	copy(snapshot, f.records)
	if err := fn(f); err != nil {
		f.records = snapshot
		return err
	}
	return nil
}

func (f *fakeDB) Exec(sql string, values ...interface{}) error {
	*f.log = append(*f.log, sql)
	return nil
}

func mig(id string, ts int64, upErr error) Migration {
	return Migration{
		ID:        id,
		Name:      id,
		Timestamp: ts,
		Up: func(db DB) error {
			if upErr != nil {
				return upErr
			}
			return db.Exec("up " + id)
		},
		Down: func(db DB) error {
			return db.Exec("down " + id)
		},
	}
}

// TestMigrateAppliesInTimestampOrder tests ordering regardless of slice order
func TestMigrateAppliesInTimestampOrder(t *testing.T) {
	db := newFakeDB()
	runner := NewRunner(db)

	migrations := []Migration{
		mig("20240103_c", 3, nil),
		mig("20240101_a", 1, nil),
		mig("20240102_b", 2, nil),
	}

	result, err := runner.Migrate(migrations, Options{StopOnError: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101_a", "20240102_b", "20240103_c"}, result.Applied)
	assert.Equal(t, []string{"up 20240101_a", "up 20240102_b", "up 20240103_c"}, *db.log)
	assert.Len(t, db.records, 3)
}

// TestMigrateIsIdempotent tests that a second run applies nothing new
func TestMigrateIsIdempotent(t *testing.T) {
	db := newFakeDB()
	runner := NewRunner(db)
	migrations := []Migration{mig("m1", 1, nil), mig("m2", 2, nil)}

	_, err := runner.Migrate(migrations, Options{StopOnError: true})
	require.NoError(t, err)

	result, err := runner.Migrate(migrations, Options{StopOnError: true})
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	assert.Len(t, db.records, 2)
}

// TestMigrateTransactionalRollsBackAll tests all-or-nothing mode
func TestMigrateTransactionalRollsBackAll(t *testing.T) {
	db := newFakeDB()
	runner := NewRunner(db)

	boom := errors.New("syntax error")
	migrations := []Migration{
		mig("m1", 1, nil),
		mig("m2", 2, boom),
		mig("m3", 3, nil),
	}

	result, err := runner.Migrate(migrations, Options{Transactional: true, StopOnError: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, result.Applied)
	// no migration rows survive the rollback
	assert.Empty(t, db.records)
}

// TestMigrateStopOnError tests non-transactional stop-at-first-failure
func TestMigrateStopOnError(t *testing.T) {
	db := newFakeDB()
	runner := NewRunner(db)

	boom := errors.New("boom")
	migrations := []Migration{
		mig("m1", 1, nil),
		mig("m2", 2, boom),
		mig("m3", 3, nil),
	}

	result, err := runner.Migrate(migrations, Options{StopOnError: true})
	require.Error(t, err)
	assert.Equal(t, []string{"m1"}, result.Applied)
	assert.Contains(t, result.Failed, "m2")
	// m1 stays applied in non-transactional mode
	assert.Len(t, db.records, 1)
}

// TestMigrateContinueOnError tests the report-and-continue mode
func TestMigrateContinueOnError(t *testing.T) {
	db := newFakeDB()
	runner := NewRunner(db)

	migrations := []Migration{
		mig("m1", 1, nil),
		mig("m2", 2, errors.New("boom")),
		mig("m3", 3, nil),
	}

	result, err := runner.Migrate(migrations, Options{StopOnError: false})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m3"}, result.Applied)
	assert.Equal(t, []string{"m2"}, result.Skipped)
	assert.Contains(t, result.Failed, "m2")
}

// TestRollback tests undoing the last n in reverse order
func TestRollback(t *testing.T) {
	db := newFakeDB()
	runner := NewRunner(db)
	migrations := []Migration{mig("m1", 1, nil), mig("m2", 2, nil), mig("m3", 3, nil)}

	_, err := runner.Migrate(migrations, Options{StopOnError: true})
	require.NoError(t, err)
	// ensure distinct ExecutedAt ordering for the reverse sort
	for i := range db.records {
		db.records[i].ExecutedAt = time.Unix(int64(i), 0)
	}
	*db.log = nil

	result, err := runner.Rollback(migrations, 2, Options{StopOnError: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m2"}, result.Applied)
	assert.Equal(t, []string{"down m3", "down m2"}, *db.log)

	// only m1 remains recorded
	require.Len(t, db.records, 1)
	assert.Equal(t, "m1", db.records[0].ID)
}

// TestRollbackMissingMigrationAborts tests the not-found rule
func TestRollbackMissingMigrationAborts(t *testing.T) {
	db := newFakeDB()
	runner := NewRunner(db)
	migrations := []Migration{mig("m1", 1, nil)}

	_, err := runner.Migrate(migrations, Options{StopOnError: true})
	require.NoError(t, err)

	// roll back against a list missing the applied id
	_, err = runner.Rollback(nil, 1, Options{StopOnError: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

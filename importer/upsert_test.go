package importer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/stretchr/testify/require"
)

func productRows(n, start int) []entity.RawRow {
	rows := make([]entity.RawRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, entity.RawRow{
			"SKU":  fmt.Sprintf("SKU-%03d", start+i),
			"Name": fmt.Sprintf("Product %d", start+i),
		})
	}
	return rows
}

func TestUpsert_PartitionsInsertsAndUpdates(t *testing.T) {
	store := newFakeEntityStore()
	seeded := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.seed("SKU-000", seeded)
	store.seed("SKU-001", seeded)

	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{})
	result := engine.Upsert(context.Background(), uuid.New(), entity.DataTypeProducts, productRows(5, 0), productMapping, 0)

	require.Equal(t, 3, result.Inserted)
	require.Equal(t, 2, result.Updated)
	require.Equal(t, 0, result.Skipped)
	require.Equal(t, 0, result.Errors)

	count, err := store.Count(context.Background(), uuid.Nil)
	require.NoError(t, err)
	require.EqualValues(t, 5, count)
}

func TestUpsert_Idempotent(t *testing.T) {
	store := newFakeEntityStore()
	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{})
	org := uuid.New()
	rows := productRows(10, 0)

	first := engine.Upsert(context.Background(), org, entity.DataTypeProducts, rows, productMapping, 0)
	require.Equal(t, 10, first.Inserted)
	require.Equal(t, 0, first.Updated)

	// Re-running the same batch converges to pure updates; no duplicate rows.
	second := engine.Upsert(context.Background(), org, entity.DataTypeProducts, rows, productMapping, 0)
	require.Equal(t, 0, second.Inserted)
	require.Equal(t, 10, second.Updated)

	count, err := store.Count(context.Background(), org)
	require.NoError(t, err)
	require.EqualValues(t, 10, count)
}

func TestUpsert_InvalidRowsSkippedNotFatal(t *testing.T) {
	store := newFakeEntityStore()
	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{})

	rows := []entity.RawRow{
		{"SKU": "SKU-000", "Name": "Valid"},
		{"SKU": "SKU-001"}, // no name
		{"SKU": "SKU-002", "Name": "Also valid"},
	}
	result := engine.Upsert(context.Background(), uuid.New(), entity.DataTypeProducts, rows, productMapping, 0)

	require.Equal(t, 2, result.Inserted)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorMessages, 1)
	require.Contains(t, result.ErrorMessages[0], "row 2")
	require.Contains(t, result.ErrorMessages[0], "name")
}

func TestUpsert_StartIndexLabelsErrors(t *testing.T) {
	store := newFakeEntityStore()
	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{})

	rows := []entity.RawRow{{"SKU": "SKU-000"}} // invalid
	result := engine.Upsert(context.Background(), uuid.New(), entity.DataTypeProducts, rows, productMapping, 200)

	require.Len(t, result.ErrorMessages, 1)
	require.Contains(t, result.ErrorMessages[0], "row 201")
}

func TestUpsert_LookupChunking(t *testing.T) {
	store := newFakeEntityStore()
	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{LookupChunkSize: 3})

	engine.Upsert(context.Background(), uuid.New(), entity.DataTypeProducts, productRows(8, 0), productMapping, 0)

	require.Len(t, store.lookupCalls, 3)
	require.Len(t, store.lookupCalls[0], 3)
	require.Len(t, store.lookupCalls[1], 3)
	require.Len(t, store.lookupCalls[2], 2)
}

func TestUpsert_LookupFailureDegradesToInsert(t *testing.T) {
	store := newFakeEntityStore()
	seeded := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.seed("SKU-000", seeded)
	store.failLookup = true

	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{})
	result := engine.Upsert(context.Background(), uuid.New(), entity.DataTypeProducts, productRows(3, 0), productMapping, 0)

	// All three rows were treated as new. The existing one conflicts on
	// insert and is reported as a row error; the real inserts survive.
	require.Equal(t, 2, result.Inserted)
	require.Equal(t, 0, result.Updated)
	require.Equal(t, 1, result.Errors)
	require.Contains(t, result.ErrorMessages[0], "insert failed")
}

func TestUpsert_BulkInsertFailureRetriesPerRow(t *testing.T) {
	store := newFakeEntityStore()
	store.insertErrKeys["SKU-002"] = true

	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{})
	result := engine.Upsert(context.Background(), uuid.New(), entity.DataTypeProducts, productRows(5, 0), productMapping, 0)

	// The poisoned row fails the whole bulk statement, then fails alone on
	// retry; the other four make it in individually.
	require.Equal(t, 4, result.Inserted)
	require.Equal(t, 1, result.Errors)
	require.Contains(t, result.ErrorMessages[0], "row 3")

	count, err := store.Count(context.Background(), uuid.Nil)
	require.NoError(t, err)
	require.EqualValues(t, 4, count)
}

func TestUpsert_InsertBatchSizeRespected(t *testing.T) {
	store := newFakeEntityStore()
	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{InsertBatchSize: 4})

	engine.Upsert(context.Background(), uuid.New(), entity.DataTypeProducts, productRows(10, 0), productMapping, 0)

	require.Equal(t, []int{4, 4, 2}, store.bulkSizes)
}

func TestUpsert_UpdateFailureRecorded(t *testing.T) {
	store := newFakeEntityStore()
	seeded := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.seed("SKU-000", seeded)
	store.seed("SKU-001", seeded)
	store.updateErrKeys["SKU-001"] = true

	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{})
	result := engine.Upsert(context.Background(), uuid.New(), entity.DataTypeProducts, productRows(2, 0), productMapping, 0)

	require.Equal(t, 1, result.Updated)
	require.Equal(t, 1, result.Errors)
	require.Contains(t, result.ErrorMessages[0], "update failed")
}

func TestUpsert_ErrorSampleCapped(t *testing.T) {
	store := newFakeEntityStore()
	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{})

	// 30 rows, every one invalid.
	rows := make([]entity.RawRow, 30)
	for i := range rows {
		rows[i] = entity.RawRow{"SKU": fmt.Sprintf("SKU-%03d", i)}
	}
	result := engine.Upsert(context.Background(), uuid.New(), entity.DataTypeProducts, rows, productMapping, 0)

	require.Equal(t, 30, result.Skipped)
	require.Equal(t, 30, result.Errors)
	require.Len(t, result.ErrorMessages, 20)
}

func TestUpsert_EmptyBatch(t *testing.T) {
	store := newFakeEntityStore()
	engine := NewUpsertEngine(store, testLogger(), UpsertConfig{})

	result := engine.Upsert(context.Background(), uuid.New(), entity.DataTypeProducts, nil, productMapping, 0)
	require.Equal(t, BatchResult{}, result)
	require.Empty(t, store.lookupCalls)
}

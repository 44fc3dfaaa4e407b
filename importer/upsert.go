package importer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/harborcrm/crm-import-orchestrator/infra"
)

// UpsertConfig bounds the engine's query and fan-out sizes.
type UpsertConfig struct {
	LookupChunkSize int // keys per IN-clause lookup
	InsertBatchSize int // rows per bulk insert
	UpdateWidth     int // concurrent single-row writes
}

func (c UpsertConfig) withDefaults() UpsertConfig {
	if c.LookupChunkSize <= 0 {
		c.LookupChunkSize = 300
	}
	if c.InsertBatchSize <= 0 {
		c.InsertBatchSize = 200
	}
	if c.UpdateWidth <= 0 {
		c.UpdateWidth = 20
	}
	return c
}

// UpsertEngine reconciles a normalized batch against the keyed table: one
// batched pre-check splits the rows into inserts and updates, then each half
// is applied in bounded sub-batches so a single bad row never sinks the rest.
type UpsertEngine struct {
	store  EntityStore
	logger *infra.LoggerClient
	cfg    UpsertConfig
}

func NewUpsertEngine(store EntityStore, logger *infra.LoggerClient, cfg UpsertConfig) *UpsertEngine {
	return &UpsertEngine{
		store:  store,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

type indexedRecord struct {
	record Record
	row    int // absolute row number, for error labels
}

type pendingUpdate struct {
	indexedRecord
	id uuid.UUID
}

// Upsert normalizes and applies one slice of raw rows. startIndex is the
// absolute offset of rows[0] within the job, used to label per-row errors.
// Row-level failures are folded into the result; only a systemic failure
// would surface through the store calls, and those degrade per sub-batch
// rather than aborting the whole invocation.
func (e *UpsertEngine) Upsert(ctx context.Context, organizationID uuid.UUID, dataType entity.DataType, rows []entity.RawRow, mapping map[string]string, startIndex int) BatchResult {
	var result BatchResult

	// 1. Normalize everything first, collecting validation errors.
	records := make([]indexedRecord, 0, len(rows))
	for i, row := range rows {
		record, err := Normalize(dataType, row, mapping)
		if err != nil {
			result.Skipped++
			result.addError("row %d: %v", startIndex+i+1, err)
			continue
		}
		records = append(records, indexedRecord{record: record, row: startIndex + i + 1})
	}
	if len(records) == 0 {
		return result
	}

	// 2. One batched existence check instead of N per-row lookups.
	existing := e.lookupExisting(ctx, organizationID, records)

	// 3. Partition into inserts and updates.
	var toInsert []indexedRecord
	var toUpdate []pendingUpdate
	for _, rec := range records {
		if id, ok := existing[rec.record.LogicalKey()]; ok {
			toUpdate = append(toUpdate, pendingUpdate{indexedRecord: rec, id: id})
		} else {
			toInsert = append(toInsert, rec)
		}
	}

	e.applyInserts(ctx, organizationID, toInsert, &result)
	e.applyUpdates(ctx, organizationID, toUpdate, &result)

	return result
}

// lookupExisting unions the pre-check queries into a key-to-id map. A failed
// lookup chunk is degraded, not fatal: its keys are treated as new and the
// insert attempt surfaces any real conflict.
func (e *UpsertEngine) lookupExisting(ctx context.Context, organizationID uuid.UUID, records []indexedRecord) map[string]uuid.UUID {
	keys := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		key := rec.record.LogicalKey()
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	existing := make(map[string]uuid.UUID, len(keys))
	for start := 0; start < len(keys); start += e.cfg.LookupChunkSize {
		end := start + e.cfg.LookupChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		found, err := e.store.FindExistingIDs(ctx, organizationID, keys[start:end])
		if err != nil {
			e.logger.WarningWithContextf(ctx, "[Upsert] Existence lookup failed for %d keys, treating them as new: %v", end-start, err)
			continue
		}
		for key, id := range found {
			existing[key] = id
		}
	}
	return existing
}

// applyInserts runs bulk inserts in bounded sub-batches. A failed sub-batch
// is retried row by row so one conflicting row does not sink the rest.
func (e *UpsertEngine) applyInserts(ctx context.Context, organizationID uuid.UUID, toInsert []indexedRecord, result *BatchResult) {
	for start := 0; start < len(toInsert); start += e.cfg.InsertBatchSize {
		end := start + e.cfg.InsertBatchSize
		if end > len(toInsert) {
			end = len(toInsert)
		}
		batch := toInsert[start:end]

		records := make([]Record, len(batch))
		for i, rec := range batch {
			records[i] = rec.record
		}

		if err := e.store.InsertBatch(ctx, organizationID, records); err == nil {
			result.Inserted += len(batch)
			continue
		}

		e.logger.WarningWithContextf(ctx, "[Upsert] Bulk insert of %d rows failed, retrying individually", len(batch))
		e.retryInsertsIndividually(ctx, organizationID, batch, result)
	}
}

func (e *UpsertEngine) retryInsertsIndividually(ctx context.Context, organizationID uuid.UUID, batch []indexedRecord, result *BatchResult) {
	var mu sync.Mutex
	e.forEachBounded(ctx, len(batch), func(i int) {
		rec := batch[i]
		err := e.store.Insert(ctx, organizationID, rec.record)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.addError("row %d: insert failed: %v", rec.row, err)
			return
		}
		result.Inserted++
	})
}

// applyUpdates runs the independent single-row updates with bounded
// parallelism. Updates are keyed by unique id, so their order does not
// matter.
func (e *UpsertEngine) applyUpdates(ctx context.Context, organizationID uuid.UUID, toUpdate []pendingUpdate, result *BatchResult) {
	var mu sync.Mutex
	e.forEachBounded(ctx, len(toUpdate), func(i int) {
		upd := toUpdate[i]
		err := e.store.Update(ctx, organizationID, upd.id, upd.record)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.addError("row %d: update failed: %v", upd.row, err)
			return
		}
		result.Updated++
	})
}

// forEachBounded fans fn out over n items with at most cfg.UpdateWidth in
// flight, stopping new launches once ctx is cancelled.
func (e *UpsertEngine) forEachBounded(ctx context.Context, n int, fn func(i int)) {
	sem := make(chan struct{}, e.cfg.UpdateWidth)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

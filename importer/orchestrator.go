package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/harborcrm/crm-import-orchestrator/infra"
)

// JobStore is the durable job row the orchestrator reads and mutates.
// *repository.JobRepository implements it.
type JobStore interface {
	FindByIDAndOrganization(ctx context.Context, id, organizationID uuid.UUID) (*entity.Job, error)
	ClaimPending(ctx context.Context, id uuid.UUID) (bool, error)
	SaveProgress(ctx context.Context, id uuid.UUID, recordCount int64, current, total int, percent float64, errorMessage string) error
	Finish(ctx context.Context, id uuid.UUID, status entity.JobStatus, recordCount int64, errorMessage string) error
}

// Cache is the optional summary cache. *infra.RedisClient implements it.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

// Config gathers the engine bounds one orchestrator runs with.
type Config struct {
	DefaultChunkSize int
	Upsert           UpsertConfig
	Scan             ScanConfig
}

func (c Config) withDefaults() Config {
	if c.DefaultChunkSize <= 0 {
		c.DefaultChunkSize = 100
	}
	return c
}

// Orchestrator is the resumable control loop: each invocation processes one
// bounded slice of a job and persists the counters, leaving the job row as
// the only durable state between invocations.
type Orchestrator struct {
	jobs   JobStore
	stores map[entity.DataType]EntityStore
	cache  Cache
	logger *infra.LoggerClient
	cfg    Config
}

func NewOrchestrator(jobs JobStore, stores map[entity.DataType]EntityStore, cache Cache, logger *infra.LoggerClient, cfg Config) *Orchestrator {
	return &Orchestrator{
		jobs:   jobs,
		stores: stores,
		cache:  cache,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

// JobProgress is the last-known-good snapshot surfaced to callers.
type JobProgress struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// ChunkOutcome reports one chunk invocation.
type ChunkOutcome struct {
	Done            bool             `json:"done"`
	NextOffset      int              `json:"next_offset"`
	Batch           BatchResult      `json:"batch"`
	CumulativeCount int64            `json:"cumulative_count"`
	Progress        JobProgress      `json:"progress"`
	Status          entity.JobStatus `json:"status"`
}

// ProcessChunk processes records[offset : offset+limit] of an import job.
// On offset 0 the job is claimed with an atomic pending-to-processing
// update; on the final chunk the job is finished. The caller loops until
// Done; the orchestrator never sleeps or loops internally because each
// invocation has to fit a bounded execution window.
func (o *Orchestrator) ProcessChunk(ctx context.Context, organizationID, jobID uuid.UUID, offset, limit int) (*ChunkOutcome, error) {
	if limit <= 0 {
		limit = o.cfg.DefaultChunkSize
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}

	job, err := o.jobs.FindByIDAndOrganization(ctx, jobID, organizationID)
	if err != nil {
		return nil, err
	}
	if job.JobType != entity.JobTypeImport {
		return nil, ErrWrongJobType
	}
	if !job.Processable() {
		return nil, fmt.Errorf("%w: status is %s", ErrJobNotProcessable, job.Status)
	}

	store, ok := o.stores[job.DataType]
	if !ok {
		return nil, fmt.Errorf("unsupported data type %q", job.DataType)
	}

	if offset == 0 {
		claimed, err := o.jobs.ClaimPending(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		// A lost claim is fine when the job is already processing: that is
		// the retry of a first chunk that failed after claiming.
		if !claimed && job.Status != entity.JobStatusProcessing {
			return nil, fmt.Errorf("%w: claim lost", ErrJobNotProcessable)
		}
	} else if job.Status != entity.JobStatusProcessing {
		return nil, fmt.Errorf("%w: non-zero offset on a %s job", ErrJobNotProcessable, job.Status)
	}

	fileData, err := job.ParseFileData()
	if err != nil {
		return nil, err
	}

	total := len(fileData.Records)
	end := offset + limit
	if end > total {
		end = total
	}
	start := offset
	if start > total {
		start = total
	}

	engine := NewUpsertEngine(store, o.logger, o.upsertConfigFor(job.DataType))
	batch := engine.Upsert(ctx, organizationID, job.DataType, fileData.Records[start:end], fileData.Mapping, start)

	cumulative := job.RecordCount + int64(batch.Inserted+batch.Updated)
	errorMessage := mergeErrorSample(job.ErrorMessage, batch.ErrorMessages)

	nextOffset := end
	done := nextOffset >= total
	percent := 100.0
	if total > 0 {
		percent = float64(nextOffset) / float64(total) * 100
	}

	outcome := &ChunkOutcome{
		Done:            done,
		NextOffset:      nextOffset,
		Batch:           batch,
		CumulativeCount: cumulative,
		Progress:        JobProgress{Current: nextOffset, Total: total, Percent: percent},
	}

	if done {
		status := entity.JobStatusCompleted
		if cumulative == 0 && errorMessage != "" {
			status = entity.JobStatusFailed
		}
		if err := o.jobs.Finish(ctx, job.ID, status, cumulative, errorMessage); err != nil {
			return nil, fmt.Errorf("finish job: %w", err)
		}
		outcome.Status = status
		o.logger.InfoWithContextf(ctx, "[Import] Job %s finished as %s: %d records, %d errors", job.ID, status, cumulative, batch.Errors)
	} else {
		if err := o.jobs.SaveProgress(ctx, job.ID, cumulative, nextOffset, total, percent, errorMessage); err != nil {
			return nil, fmt.Errorf("save progress: %w", err)
		}
		outcome.Status = entity.JobStatusProcessing
	}

	o.cacheProgress(ctx, job.ID, outcome.Progress)

	return outcome, nil
}

// upsertConfigFor picks the per-entity fan-out strategy: wide parallel
// updates for flat high-volume entities, narrower for contacts which sit
// behind per-row uniqueness checks downstream.
func (o *Orchestrator) upsertConfigFor(dataType entity.DataType) UpsertConfig {
	cfg := o.cfg.Upsert.withDefaults()
	if dataType == entity.DataTypeContacts {
		cfg.UpdateWidth = (cfg.UpdateWidth + 1) / 2
	}
	return cfg
}

// DedupSummary is the read-only dedup scan result: counts only, no id list,
// to keep the response small.
type DedupSummary struct {
	TotalScanned  int `json:"total_scanned"`
	UniqueKeys    int `json:"unique_keys"`
	DuplicateKeys int `json:"duplicate_keys"`
	ToDeleteCount int `json:"to_delete_count"`
}

const dedupSummaryTTL = 30 * time.Second

// DedupScan runs the full scan and duplicate resolution and reports counts.
// Summaries are briefly cached; deletion never reads this cache.
func (o *Orchestrator) DedupScan(ctx context.Context, organizationID uuid.UUID, dataType entity.DataType) (*DedupSummary, error) {
	cacheKey := dedupCacheKey(organizationID, dataType)
	if o.cache != nil {
		var cached DedupSummary
		if err := o.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	resolution, err := o.resolveDuplicates(ctx, organizationID, dataType)
	if err != nil {
		return nil, err
	}

	summary := &DedupSummary{
		TotalScanned:  resolution.TotalScanned,
		UniqueKeys:    resolution.UniqueKeys,
		DuplicateKeys: resolution.DuplicateKeys,
		ToDeleteCount: len(resolution.IDsToDelete),
	}

	if o.cache != nil {
		if err := o.cache.Set(ctx, cacheKey, summary, dedupSummaryTTL); err != nil {
			o.logger.WarningWithContextf(ctx, "[Dedup] Failed to cache scan summary: %v", err)
		}
	}

	return summary, nil
}

// DedupDeleteOutcome reports one deletion chunk.
type DedupDeleteOutcome struct {
	Deleted   int64 `json:"deleted"`
	Errors    int   `json:"errors"`
	Remaining int   `json:"remaining"`
	Done      bool  `json:"done"`
}

// dedupDeleteSubChunk bounds a single DELETE ... IN statement within one
// deletion chunk.
const dedupDeleteSubChunk = 100

// DedupDeleteChunk deletes the next batch of duplicate rows. Every
// invocation re-derives the deletion set from a fresh scan instead of
// trusting a previously computed id list: the set shrinks as prior chunks
// are deleted, so re-scanning is self-correcting under concurrent writes, at
// the cost of re-paying the scan on each chunk.
func (o *Orchestrator) DedupDeleteChunk(ctx context.Context, organizationID uuid.UUID, dataType entity.DataType, batchSize int) (*DedupDeleteOutcome, error) {
	if batchSize <= 0 {
		batchSize = o.cfg.DefaultChunkSize
	}

	store, ok := o.stores[dataType]
	if !ok {
		return nil, fmt.Errorf("unsupported data type %q", dataType)
	}

	resolution, err := o.resolveDuplicates(ctx, organizationID, dataType)
	if err != nil {
		return nil, err
	}

	ids := resolution.IDsToDelete
	take := batchSize
	if take > len(ids) {
		take = len(ids)
	}

	var deleted int64
	errCount := 0
	for start := 0; start < take; start += dedupDeleteSubChunk {
		end := start + dedupDeleteSubChunk
		if end > take {
			end = take
		}
		n, err := store.DeleteByIDs(ctx, organizationID, ids[start:end])
		deleted += n
		if err != nil {
			errCount += end - start - int(n)
			o.logger.ErrorWithContextf(ctx, err, "[Dedup] Failed to delete %d duplicate rows", end-start)
		}
	}

	remaining := len(ids) - int(deleted)
	outcome := &DedupDeleteOutcome{
		Deleted:   deleted,
		Errors:    errCount,
		Remaining: remaining,
		Done:      remaining <= 0,
	}

	if deleted > 0 {
		o.logger.InfoWithContextf(ctx, "[Dedup] Deleted %d duplicate %s rows for organization %s, %d remaining", deleted, dataType, organizationID, remaining)
		if o.cache != nil {
			if err := o.cache.Delete(ctx, dedupCacheKey(organizationID, dataType)); err != nil {
				o.logger.WarningWithContextf(ctx, "[Dedup] Failed to invalidate scan summary cache: %v", err)
			}
		}
	}

	return outcome, nil
}

func (o *Orchestrator) resolveDuplicates(ctx context.Context, organizationID uuid.UUID, dataType entity.DataType) (Resolution, error) {
	store, ok := o.stores[dataType]
	if !ok {
		return Resolution{}, fmt.Errorf("unsupported data type %q", dataType)
	}

	scanner := NewScanner(store, o.logger, o.cfg.Scan)
	rows, err := scanner.ScanAll(ctx, organizationID)
	if err != nil {
		return Resolution{}, fmt.Errorf("scan %s: %w", dataType, err)
	}

	return FindDuplicates(rows), nil
}

func (o *Orchestrator) cacheProgress(ctx context.Context, jobID uuid.UUID, progress JobProgress) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(ctx, "import:progress:"+jobID.String(), progress, time.Minute); err != nil {
		o.logger.WarningWithContextf(ctx, "[Import] Failed to cache progress for job %s: %v", jobID, err)
	}
}

func dedupCacheKey(organizationID uuid.UUID, dataType entity.DataType) string {
	return fmt.Sprintf("dedup:scan:%s:%s", organizationID, dataType)
}

// mergeErrorSample appends new error lines to the stored sample, keeping the
// total capped.
func mergeErrorSample(existing string, additions []string) string {
	var lines []string
	if existing != "" {
		lines = strings.Split(existing, "\n")
	}
	for _, line := range additions {
		if len(lines) >= maxErrorSamples {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

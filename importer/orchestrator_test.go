package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestOrchestrator(jobs *fakeJobStore, store *fakeEntityStore, cache Cache) *Orchestrator {
	return NewOrchestrator(jobs, map[entity.DataType]EntityStore{
		entity.DataTypeProducts: store,
	}, cache, testLogger(), Config{DefaultChunkSize: 100})
}

// makeImportJob builds a pending products import job with n rows; rows whose
// zero-based index is in invalid get no name and fail normalization.
func makeImportJob(t *testing.T, organizationID uuid.UUID, n int, invalid map[int]bool) *entity.Job {
	t.Helper()
	records := make([]entity.RawRow, 0, n)
	for i := 0; i < n; i++ {
		row := entity.RawRow{"SKU": fmt.Sprintf("SKU-%04d", i)}
		if !invalid[i] {
			row["Name"] = fmt.Sprintf("Product %d", i)
		}
		records = append(records, row)
	}
	payload, err := json.Marshal(entity.FileData{Records: records, Mapping: productMapping})
	require.NoError(t, err)

	return &entity.Job{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		CreatedBy:      uuid.New(),
		JobType:        entity.JobTypeImport,
		DataType:       entity.DataTypeProducts,
		ScheduledTime:  time.Now(),
		Status:         entity.JobStatusPending,
		FileData:       datatypes.JSON(payload),
		ProgressTotal:  n,
	}
}

func TestProcessChunk_DrivesJobToCompletion(t *testing.T) {
	org := uuid.New()
	jobs := newFakeJobStore()
	store := newFakeEntityStore()
	job := makeImportJob(t, org, 250, map[int]bool{5: true, 150: true})
	jobs.put(job)

	orch := newTestOrchestrator(jobs, store, newFakeCache())
	ctx := context.Background()

	first, err := orch.ProcessChunk(ctx, org, job.ID, 0, 100)
	require.NoError(t, err)
	require.False(t, first.Done)
	require.Equal(t, 100, first.NextOffset)
	require.Equal(t, 99, first.Batch.Inserted)
	require.Equal(t, 1, first.Batch.Skipped)
	require.Equal(t, entity.JobStatusProcessing, first.Status)
	require.InDelta(t, 40.0, first.Progress.Percent, 0.01)
	require.Equal(t, entity.JobStatusProcessing, jobs.get(job.ID).Status)

	second, err := orch.ProcessChunk(ctx, org, job.ID, first.NextOffset, 100)
	require.NoError(t, err)
	require.False(t, second.Done)
	require.Equal(t, 200, second.NextOffset)
	require.Equal(t, 99, second.Batch.Inserted)
	require.EqualValues(t, 198, second.CumulativeCount)

	third, err := orch.ProcessChunk(ctx, org, job.ID, second.NextOffset, 100)
	require.NoError(t, err)
	require.True(t, third.Done)
	require.Equal(t, 250, third.NextOffset)
	require.Equal(t, 50, third.Batch.Inserted)
	require.EqualValues(t, 248, third.CumulativeCount)
	require.Equal(t, entity.JobStatusCompleted, third.Status)

	final := jobs.get(job.ID)
	require.Equal(t, entity.JobStatusCompleted, final.Status)
	require.EqualValues(t, 248, final.RecordCount)
	require.NotNil(t, final.CompletedAt)
	require.Len(t, strings.Split(final.ErrorMessage, "\n"), 2)
	require.Contains(t, final.ErrorMessage, "row 6")
	require.Contains(t, final.ErrorMessage, "row 151")

	// Exactly one claim, for the first chunk.
	require.Equal(t, 1, jobs.claimCalls)

	count, err := store.Count(ctx, org)
	require.NoError(t, err)
	require.EqualValues(t, 248, count)
}

func TestProcessChunk_RepeatedChunkIsIdempotent(t *testing.T) {
	org := uuid.New()
	jobs := newFakeJobStore()
	store := newFakeEntityStore()
	job := makeImportJob(t, org, 50, nil)
	jobs.put(job)

	orch := newTestOrchestrator(jobs, store, nil)
	ctx := context.Background()

	first, err := orch.ProcessChunk(ctx, org, job.ID, 0, 25)
	require.NoError(t, err)
	require.Equal(t, 25, first.Batch.Inserted)

	// The same chunk delivered again converges to updates: no duplicates.
	repeat, err := orch.ProcessChunk(ctx, org, job.ID, 0, 25)
	require.NoError(t, err)
	require.Equal(t, 0, repeat.Batch.Inserted)
	require.Equal(t, 25, repeat.Batch.Updated)

	count, err := store.Count(ctx, org)
	require.NoError(t, err)
	require.EqualValues(t, 25, count)
}

func TestProcessChunk_RejectsTerminalStatuses(t *testing.T) {
	org := uuid.New()
	for _, status := range []entity.JobStatus{
		entity.JobStatusCancelled,
		entity.JobStatusCompleted,
		entity.JobStatusFailed,
	} {
		jobs := newFakeJobStore()
		job := makeImportJob(t, org, 10, nil)
		job.Status = status
		jobs.put(job)

		orch := newTestOrchestrator(jobs, newFakeEntityStore(), nil)
		_, err := orch.ProcessChunk(context.Background(), org, job.ID, 0, 10)
		require.ErrorIs(t, err, ErrJobNotProcessable, "status %s", status)
	}
}

func TestProcessChunk_RejectsWrongJobType(t *testing.T) {
	org := uuid.New()
	jobs := newFakeJobStore()
	job := makeImportJob(t, org, 10, nil)
	job.JobType = entity.JobTypeExport
	jobs.put(job)

	orch := newTestOrchestrator(jobs, newFakeEntityStore(), nil)
	_, err := orch.ProcessChunk(context.Background(), org, job.ID, 0, 10)
	require.ErrorIs(t, err, ErrWrongJobType)
}

func TestProcessChunk_RejectsNonZeroOffsetOnPending(t *testing.T) {
	org := uuid.New()
	jobs := newFakeJobStore()
	job := makeImportJob(t, org, 50, nil)
	jobs.put(job)

	orch := newTestOrchestrator(jobs, newFakeEntityStore(), nil)
	_, err := orch.ProcessChunk(context.Background(), org, job.ID, 25, 25)
	require.ErrorIs(t, err, ErrJobNotProcessable)
}

func TestProcessChunk_RejectsUnknownJobAndForeignOrganization(t *testing.T) {
	org := uuid.New()
	jobs := newFakeJobStore()
	job := makeImportJob(t, org, 10, nil)
	jobs.put(job)

	orch := newTestOrchestrator(jobs, newFakeEntityStore(), nil)

	_, err := orch.ProcessChunk(context.Background(), org, uuid.New(), 0, 10)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// A job from another organization is invisible, not forbidden.
	_, err = orch.ProcessChunk(context.Background(), uuid.New(), job.ID, 0, 10)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestProcessChunk_AllRowsFailedMarksJobFailed(t *testing.T) {
	org := uuid.New()
	jobs := newFakeJobStore()
	invalid := make(map[int]bool)
	for i := 0; i < 10; i++ {
		invalid[i] = true
	}
	job := makeImportJob(t, org, 10, invalid)
	jobs.put(job)

	orch := newTestOrchestrator(jobs, newFakeEntityStore(), nil)
	outcome, err := orch.ProcessChunk(context.Background(), org, job.ID, 0, 10)
	require.NoError(t, err)
	require.True(t, outcome.Done)
	require.Equal(t, entity.JobStatusFailed, outcome.Status)
	require.Zero(t, outcome.CumulativeCount)
	require.Equal(t, entity.JobStatusFailed, jobs.get(job.ID).Status)
}

func TestProcessChunk_OffsetBeyondEndFinishes(t *testing.T) {
	org := uuid.New()
	jobs := newFakeJobStore()
	job := makeImportJob(t, org, 10, nil)
	job.Status = entity.JobStatusProcessing
	job.RecordCount = 10
	jobs.put(job)

	orch := newTestOrchestrator(jobs, newFakeEntityStore(), nil)
	outcome, err := orch.ProcessChunk(context.Background(), org, job.ID, 10, 10)
	require.NoError(t, err)
	require.True(t, outcome.Done)
	require.Equal(t, entity.JobStatusCompleted, outcome.Status)
	require.EqualValues(t, 10, outcome.CumulativeCount)
}

func TestProcessChunk_CachesProgress(t *testing.T) {
	org := uuid.New()
	jobs := newFakeJobStore()
	cache := newFakeCache()
	job := makeImportJob(t, org, 50, nil)
	jobs.put(job)

	orch := newTestOrchestrator(jobs, newFakeEntityStore(), cache)
	_, err := orch.ProcessChunk(context.Background(), org, job.ID, 0, 25)
	require.NoError(t, err)

	var progress JobProgress
	require.NoError(t, cache.Get(context.Background(), "import:progress:"+job.ID.String(), &progress))
	require.Equal(t, 25, progress.Current)
	require.Equal(t, 50, progress.Total)
}

func seedDuplicates(store *fakeEntityStore) (keepers, losers int) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("dup-%d", i)
		store.seed(key, base)
		store.seed(key, base.Add(time.Hour))
		store.seed(key, base.Add(2*time.Hour))
	}
	for i := 0; i < 3; i++ {
		store.seed(fmt.Sprintf("solo-%d", i), base)
	}
	return 8, 10
}

func TestDedupScan_CountsAndCaches(t *testing.T) {
	org := uuid.New()
	store := newFakeEntityStore()
	seedDuplicates(store)
	cache := newFakeCache()

	orch := newTestOrchestrator(newFakeJobStore(), store, cache)
	summary, err := orch.DedupScan(context.Background(), org, entity.DataTypeProducts)
	require.NoError(t, err)
	require.Equal(t, 18, summary.TotalScanned)
	require.Equal(t, 8, summary.UniqueKeys)
	require.Equal(t, 5, summary.DuplicateKeys)
	require.Equal(t, 10, summary.ToDeleteCount)

	// Second scan hits the cache: no extra Set.
	sets := cache.sets
	again, err := orch.DedupScan(context.Background(), org, entity.DataTypeProducts)
	require.NoError(t, err)
	require.Equal(t, summary, again)
	require.Equal(t, sets, cache.sets)
}

func TestDedupDeleteChunk_ConvergesAndKeepsOldest(t *testing.T) {
	org := uuid.New()
	store := newFakeEntityStore()
	seedDuplicates(store)

	orch := newTestOrchestrator(newFakeJobStore(), store, newFakeCache())
	ctx := context.Background()

	first, err := orch.DedupDeleteChunk(ctx, org, entity.DataTypeProducts, 4)
	require.NoError(t, err)
	require.EqualValues(t, 4, first.Deleted)
	require.Equal(t, 6, first.Remaining)
	require.False(t, first.Done)

	// Loop until done; each chunk re-derives the deletion set.
	for i := 0; i < 10 && !first.Done; i++ {
		first, err = orch.DedupDeleteChunk(ctx, org, entity.DataTypeProducts, 4)
		require.NoError(t, err)
	}
	require.True(t, first.Done)

	count, err := store.Count(ctx, org)
	require.NoError(t, err)
	require.EqualValues(t, 8, count)

	// Re-running against converged data is a no-op.
	outcome, err := orch.DedupDeleteChunk(ctx, org, entity.DataTypeProducts, 4)
	require.NoError(t, err)
	require.True(t, outcome.Done)
	require.Zero(t, outcome.Deleted)
}

func TestDedupDeleteChunk_InvalidatesScanCache(t *testing.T) {
	org := uuid.New()
	store := newFakeEntityStore()
	seedDuplicates(store)
	cache := newFakeCache()

	orch := newTestOrchestrator(newFakeJobStore(), store, cache)
	ctx := context.Background()

	stale, err := orch.DedupScan(ctx, org, entity.DataTypeProducts)
	require.NoError(t, err)
	require.Equal(t, 10, stale.ToDeleteCount)

	_, err = orch.DedupDeleteChunk(ctx, org, entity.DataTypeProducts, 4)
	require.NoError(t, err)

	fresh, err := orch.DedupScan(ctx, org, entity.DataTypeProducts)
	require.NoError(t, err)
	require.Equal(t, 6, fresh.ToDeleteCount)
}

func TestDedupScan_UnsupportedDataType(t *testing.T) {
	orch := newTestOrchestrator(newFakeJobStore(), newFakeEntityStore(), nil)
	_, err := orch.DedupScan(context.Background(), uuid.New(), entity.DataTypeContacts)
	require.Error(t, err)
}

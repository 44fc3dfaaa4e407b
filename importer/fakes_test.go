package importer

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/config"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/harborcrm/crm-import-orchestrator/infra"
	"gorm.io/gorm"
)

func testLogger() *infra.LoggerClient {
	return infra.InitLoggerClient(&config.EnvConfig{})
}

type storedRow struct {
	id        uuid.UUID
	key       string
	createdAt time.Time
	record    Record
}

// fakeEntityStore is an in-memory keyed table. A bulk insert fails atomically
// when any row conflicts, mirroring a unique-violation on a multi-row INSERT.
type fakeEntityStore struct {
	mu    sync.Mutex
	rows  []storedRow
	clock time.Time

	failLookup     bool
	failBulkInsert bool
	insertErrKeys  map[string]bool
	updateErrKeys  map[string]bool
	pageErrAt      int // offset whose page fetch fails, -1 for none

	lookupCalls [][]string
	bulkSizes   []int
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{
		clock:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		insertErrKeys: make(map[string]bool),
		updateErrKeys: make(map[string]bool),
		pageErrAt:     -1,
	}
}

func (s *fakeEntityStore) seed(key string, createdAt time.Time) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.rows = append(s.rows, storedRow{id: id, key: key, createdAt: createdAt})
	return id
}

func (s *fakeEntityStore) keyOf(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.id == id {
			return row.key
		}
	}
	return ""
}

func (s *fakeEntityStore) FindExistingIDs(ctx context.Context, organizationID uuid.UUID, keys []string) (map[string]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupCalls = append(s.lookupCalls, append([]string(nil), keys...))
	if s.failLookup {
		return nil, errors.New("lookup unavailable")
	}
	found := make(map[string]uuid.UUID)
	for _, key := range keys {
		for _, row := range s.rows {
			if row.key == key {
				found[key] = row.id
				break
			}
		}
	}
	return found, nil
}

func (s *fakeEntityStore) InsertBatch(ctx context.Context, organizationID uuid.UUID, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkSizes = append(s.bulkSizes, len(records))
	if s.failBulkInsert {
		return errors.New("bulk insert rejected")
	}
	for _, record := range records {
		if err := s.conflict(record.LogicalKey()); err != nil {
			return err
		}
	}
	for _, record := range records {
		s.insertLocked(record)
	}
	return nil
}

func (s *fakeEntityStore) Insert(ctx context.Context, organizationID uuid.UUID, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conflict(record.LogicalKey()); err != nil {
		return err
	}
	s.insertLocked(record)
	return nil
}

func (s *fakeEntityStore) conflict(key string) error {
	if s.insertErrKeys[key] {
		return errors.New("insert rejected for " + key)
	}
	for _, row := range s.rows {
		if row.key == key {
			return errors.New("duplicate key " + key)
		}
	}
	return nil
}

func (s *fakeEntityStore) insertLocked(record Record) {
	s.clock = s.clock.Add(time.Second)
	s.rows = append(s.rows, storedRow{
		id:        uuid.New(),
		key:       record.LogicalKey(),
		createdAt: s.clock,
		record:    record,
	})
}

func (s *fakeEntityStore) Update(ctx context.Context, organizationID, id uuid.UUID, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErrKeys[record.LogicalKey()] {
		return errors.New("update rejected for " + record.LogicalKey())
	}
	for i := range s.rows {
		if s.rows[i].id == id {
			s.rows[i].record = record
			return nil
		}
	}
	return errors.New("row not found")
}

func (s *fakeEntityStore) Count(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

func (s *fakeEntityStore) Page(ctx context.Context, organizationID uuid.UUID, offset, limit int) ([]ScannedRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageErrAt >= 0 && offset == s.pageErrAt {
		return nil, errors.New("page fetch failed")
	}

	sorted := append([]storedRow(nil), s.rows...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].createdAt.Equal(sorted[j].createdAt) {
			return sorted[i].createdAt.Before(sorted[j].createdAt)
		}
		return sorted[i].id.String() < sorted[j].id.String()
	})

	if offset >= len(sorted) {
		return nil, nil
	}
	end := offset + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	page := make([]ScannedRow, 0, end-offset)
	for _, row := range sorted[offset:end] {
		page = append(page, ScannedRow{ID: row.id, Key: row.key, CreatedAt: row.createdAt})
	}
	return page, nil
}

func (s *fakeEntityStore) DeleteByIDs(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.rows[:0]
	var deleted int64
	for _, row := range s.rows {
		if drop[row.id] {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return deleted, nil
}

// fakeJobStore is an in-memory job table with the same claim semantics as the
// conditional pending-to-processing update.
type fakeJobStore struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*entity.Job
	claimCalls int
	saveCalls  int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*entity.Job)}
}

func (s *fakeJobStore) put(job *entity.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *fakeJobStore) get(id uuid.UUID) entity.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *fakeJobStore) FindByIDAndOrganization(ctx context.Context, id, organizationID uuid.UUID) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.OrganizationID != organizationID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) ClaimPending(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls++
	job, ok := s.jobs[id]
	if !ok || job.Status != entity.JobStatusPending {
		return false, nil
	}
	job.Status = entity.JobStatusProcessing
	return true, nil
}

func (s *fakeJobStore) SaveProgress(ctx context.Context, id uuid.UUID, recordCount int64, current, total int, percent float64, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	job, ok := s.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	job.RecordCount = recordCount
	job.ProgressCurrent = current
	job.ProgressTotal = total
	job.ProgressPercent = percent
	job.ErrorMessage = errorMessage
	return nil
}

func (s *fakeJobStore) Finish(ctx context.Context, id uuid.UUID, status entity.JobStatus, recordCount int64, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	job.Status = status
	job.RecordCount = recordCount
	job.ErrorMessage = errorMessage
	job.CompletedAt = &now
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	c.sets++
	return nil
}

func (c *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(data, dest)
}

func (c *fakeCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	c.deletes++
	return nil
}

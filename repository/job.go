package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"gorm.io/gorm"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	var job entity.Job
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) FindByIDAndOrganization(ctx context.Context, id, organizationID uuid.UUID) (*entity.Job, error) {
	var job entity.Job
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, organizationID).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) FindByOrganization(ctx context.Context, organizationID uuid.UUID, limit int) ([]entity.Job, error) {
	var jobs []entity.Job
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// FindDuePending returns pending jobs whose scheduled time has passed.
func (r *JobRepository) FindDuePending(ctx context.Context, now time.Time, limit int) ([]entity.Job, error) {
	var jobs []entity.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_time <= ?", entity.JobStatusPending, now).
		Order("scheduled_time ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// ClaimPending atomically moves a pending job to processing. The WHERE on
// status makes the claim a compare-and-swap: of two concurrent invocations
// exactly one sees RowsAffected == 1.
func (r *JobRepository) ClaimPending(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.Job{}).
		Where("id = ? AND status = ?", id, entity.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     entity.JobStatusProcessing,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Cancel moves a pending job to cancelled. Jobs in any other state are left
// untouched and false is returned.
func (r *JobRepository) Cancel(ctx context.Context, id, organizationID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.Job{}).
		Where("id = ? AND organization_id = ? AND status = ?", id, organizationID, entity.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     entity.JobStatusCancelled,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SaveProgress persists the cumulative counters after one chunk.
func (r *JobRepository) SaveProgress(ctx context.Context, id uuid.UUID, recordCount int64, current, total int, percent float64, errorMessage string) error {
	return r.db.WithContext(ctx).Model(&entity.Job{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"record_count":     recordCount,
			"progress_current": current,
			"progress_total":   total,
			"progress_percent": percent,
			"error_message":    errorMessage,
			"updated_at":       time.Now(),
		}).Error
}

// Finish stamps the terminal status and completion time.
func (r *JobRepository) Finish(ctx context.Context, id uuid.UUID, status entity.JobStatus, recordCount int64, errorMessage string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&entity.Job{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"record_count":  recordCount,
			"error_message": errorMessage,
			"completed_at":  &now,
			"updated_at":    now,
		}).Error
}

func (r *JobRepository) SetExportObject(ctx context.Context, id uuid.UUID, objectKey string) error {
	return r.db.WithContext(ctx).Model(&entity.Job{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"export_object": objectKey,
			"updated_at":    time.Now(),
		}).Error
}

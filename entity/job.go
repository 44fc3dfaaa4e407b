package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type JobType string

const (
	JobTypeImport JobType = "import"
	JobTypeExport JobType = "export"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

type DataType string

const (
	DataTypeProducts DataType = "products"
	DataTypeContacts DataType = "contacts"
)

// RawRow is one spreadsheet-derived row before normalization. Keys are the
// source column names, values whatever the upload produced (strings from
// spreadsheet cells, numbers from JSON payloads).
type RawRow map[string]interface{}

// FileData is the import payload embedded in the job row: the ordered raw
// rows plus the source-column to canonical-field mapping.
type FileData struct {
	Records []RawRow          `json:"records"`
	Mapping map[string]string `json:"mapping"`
}

// Job is one bulk import/export task and its durable progress. The row is
// the only persistent state of the chunk orchestrator: every invocation
// reads it, processes one slice and writes the counters back.
type Job struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID  uuid.UUID      `json:"organization_id" gorm:"type:uuid;not null;index"`
	CreatedBy       uuid.UUID      `json:"created_by" gorm:"type:uuid;not null"`
	JobType         JobType        `json:"job_type" gorm:"type:varchar(16);not null;index"`
	DataType        DataType       `json:"data_type" gorm:"type:varchar(32);not null"`
	ScheduledTime   time.Time      `json:"scheduled_time" gorm:"not null;index"`
	Status          JobStatus      `json:"status" gorm:"type:varchar(16);not null;index;default:'pending'"`
	FileData        datatypes.JSON `json:"file_data,omitempty" gorm:"type:jsonb"`
	RecordCount     int64          `json:"record_count" gorm:"not null;default:0"`
	ProgressCurrent int            `json:"progress_current" gorm:"not null;default:0"`
	ProgressTotal   int            `json:"progress_total" gorm:"not null;default:0"`
	ProgressPercent float64        `json:"progress_percent" gorm:"not null;default:0"`
	ErrorMessage    string         `json:"error_message,omitempty" gorm:"type:text"`
	ExportObject    string         `json:"export_object,omitempty" gorm:"type:varchar(512)"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// NormalizeSchedule returns a scheduled time that is guaranteed to be
// strictly after a creation timestamp taken at or after now. "Run
// immediately" requests arrive with scheduledTime == now; persisting that
// as-is would violate scheduled_time > created_at, so near-now times are
// bumped forward by the margin.
func NormalizeSchedule(scheduled, now time.Time, margin time.Duration) time.Time {
	floor := now.Add(margin)
	if scheduled.Before(floor) {
		return floor
	}
	return scheduled
}

// Cancellable reports whether the job may still be cancelled. Only pending
// jobs can be: a job mid-processing has chunks in flight.
func (j *Job) Cancellable() bool {
	return j.Status == JobStatusPending
}

// Processable reports whether a chunk invocation may run against this job.
func (j *Job) Processable() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}

// Due reports whether the job's scheduled time has been reached.
func (j *Job) Due(now time.Time) bool {
	return !j.ScheduledTime.After(now)
}

// ParseFileData decodes the embedded import payload.
func (j *Job) ParseFileData() (*FileData, error) {
	if len(j.FileData) == 0 {
		return nil, fmt.Errorf("job %s has no file data", j.ID)
	}
	var fd FileData
	if err := json.Unmarshal(j.FileData, &fd); err != nil {
		return nil, fmt.Errorf("decode file data for job %s: %w", j.ID, err)
	}
	return &fd, nil
}

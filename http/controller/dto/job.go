package dto

// CreateJobRequest creates an import or export job. For imports the records
// are embedded in the request; the mapping is auto-detected from the column
// names when omitted.
type CreateJobRequest struct {
	JobType       string                   `json:"job_type" binding:"required,oneof=import export"`
	DataType      string                   `json:"data_type" binding:"required,oneof=products contacts"`
	ScheduledTime string                   `json:"scheduled_time"` // RFC3339; empty means "as soon as possible"
	Records       []map[string]interface{} `json:"records"`
	Mapping       map[string]string        `json:"mapping"`
}

type CreateJobResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	ScheduledTime string `json:"scheduled_time"`
	TotalRecords  int    `json:"total_records"`
}

// ProcessChunkRequest is one chunk invocation against an import job.
type ProcessChunkRequest struct {
	Offset int `json:"offset" binding:"min=0"`
	Limit  int `json:"limit"`
}

type ProgressResponse struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

type ProcessChunkResponse struct {
	Done            bool             `json:"done"`
	NextOffset      int              `json:"next_offset"`
	BatchInserted   int              `json:"batch_inserted"`
	BatchUpdated    int              `json:"batch_updated"`
	BatchSkipped    int              `json:"batch_skipped"`
	BatchErrors     int              `json:"batch_errors"`
	ErrorMessages   []string         `json:"error_messages,omitempty"`
	CumulativeCount int64            `json:"cumulative_count"`
	Status          string           `json:"status"`
	Progress        ProgressResponse `json:"progress"`
}

type JobResponse struct {
	JobID         string           `json:"job_id"`
	JobType       string           `json:"job_type"`
	DataType      string           `json:"data_type"`
	Status        string           `json:"status"`
	ScheduledTime string           `json:"scheduled_time"`
	RecordCount   int64            `json:"record_count"`
	Progress      ProgressResponse `json:"progress"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	ExportObject  string           `json:"export_object,omitempty"`
	CompletedAt   string           `json:"completed_at,omitempty"`
	CreatedAt     string           `json:"created_at"`
}

package dto

// DedupScanRequest asks for a read-only duplicate scan: counts only, no id
// list, to keep the response small.
type DedupScanRequest struct {
	DataType string `json:"data_type" binding:"required,oneof=products contacts"`
}

type DedupScanResponse struct {
	TotalScanned  int `json:"total_scanned"`
	UniqueKeys    int `json:"unique_keys"`
	DuplicateKeys int `json:"duplicate_keys"`
	ToDeleteCount int `json:"to_delete_count"`
}

// DedupDeleteChunkRequest deletes the next batch of duplicate rows. The
// deletion set is re-derived from a fresh scan on every call.
type DedupDeleteChunkRequest struct {
	DataType  string `json:"data_type" binding:"required,oneof=products contacts"`
	BatchSize int    `json:"batch_size" binding:"min=0"`
}

type DedupDeleteChunkResponse struct {
	Deleted   int64 `json:"deleted"`
	Errors    int   `json:"errors"`
	Remaining int   `json:"remaining"`
	Done      bool  `json:"done"`
}

package controller

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/http/controller/dto"
	"github.com/harborcrm/crm-import-orchestrator/importer"
	"github.com/harborcrm/crm-import-orchestrator/utils"
	"gorm.io/gorm"
)

// ProcessChunk runs one bounded chunk of an import job. Callers poll this
// endpoint with the returned next_offset until done is true; each invocation
// stays inside a bounded execution window.
func (ctrl *Controller) ProcessChunk(c *gin.Context) {
	ctx := c.Request.Context()
	organizationID, _, ok := ctrl.identity(c)
	if !ok {
		return
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.JSON400(c, "Invalid job id format")
		return
	}

	var req dto.ProcessChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSON400(c, "Invalid request: "+err.Error())
		return
	}

	outcome, err := ctrl.Orchestrator.ProcessChunk(ctx, organizationID, jobID, req.Offset, req.Limit)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			utils.JSON404(c, "Job not found")
		case errors.Is(err, importer.ErrJobNotProcessable):
			utils.JSON409(c, err.Error())
		case errors.Is(err, importer.ErrWrongJobType):
			utils.JSON400(c, "Job is not an import job")
		default:
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Import] Chunk failed for job %s at offset %d", jobID, req.Offset)
			utils.JSON500(c, "Chunk processing failed")
		}
		return
	}

	utils.JSON200(c, dto.ProcessChunkResponse{
		Done:            outcome.Done,
		NextOffset:      outcome.NextOffset,
		BatchInserted:   outcome.Batch.Inserted,
		BatchUpdated:    outcome.Batch.Updated,
		BatchSkipped:    outcome.Batch.Skipped,
		BatchErrors:     outcome.Batch.Errors,
		ErrorMessages:   outcome.Batch.ErrorMessages,
		CumulativeCount: outcome.CumulativeCount,
		Status:          string(outcome.Status),
		Progress: dto.ProgressResponse{
			Current: outcome.Progress.Current,
			Total:   outcome.Progress.Total,
			Percent: outcome.Progress.Percent,
		},
	})
}

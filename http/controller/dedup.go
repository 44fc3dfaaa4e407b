package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/harborcrm/crm-import-orchestrator/http/controller/dto"
	"github.com/harborcrm/crm-import-orchestrator/utils"
)

// DedupScan reports duplicate statistics for the organization's keyed table.
// Read-only and cheap to repeat; the deletion endpoint never trusts these
// numbers.
func (ctrl *Controller) DedupScan(c *gin.Context) {
	ctx := c.Request.Context()
	organizationID, _, ok := ctrl.identity(c)
	if !ok {
		return
	}

	var req dto.DedupScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSON400(c, "Invalid request: "+err.Error())
		return
	}

	summary, err := ctrl.Orchestrator.DedupScan(ctx, organizationID, entity.DataType(req.DataType))
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Dedup] Scan failed for organization %s", organizationID)
		utils.JSON500(c, "Dedup scan failed")
		return
	}

	utils.JSON200(c, dto.DedupScanResponse{
		TotalScanned:  summary.TotalScanned,
		UniqueKeys:    summary.UniqueKeys,
		DuplicateKeys: summary.DuplicateKeys,
		ToDeleteCount: summary.ToDeleteCount,
	})
}

// DedupDeleteChunk deletes the next batch of duplicates. Each call re-scans
// and re-resolves, so the loop converges even under concurrent writes;
// callers repeat until done is true.
func (ctrl *Controller) DedupDeleteChunk(c *gin.Context) {
	ctx := c.Request.Context()
	organizationID, _, ok := ctrl.identity(c)
	if !ok {
		return
	}

	var req dto.DedupDeleteChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSON400(c, "Invalid request: "+err.Error())
		return
	}

	outcome, err := ctrl.Orchestrator.DedupDeleteChunk(ctx, organizationID, entity.DataType(req.DataType), req.BatchSize)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Dedup] Delete chunk failed for organization %s", organizationID)
		utils.JSON500(c, "Dedup delete failed")
		return
	}

	utils.JSON200(c, dto.DedupDeleteChunkResponse{
		Deleted:   outcome.Deleted,
		Errors:    outcome.Errors,
		Remaining: outcome.Remaining,
		Done:      outcome.Done,
	})
}

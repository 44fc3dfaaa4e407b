package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/config"
	"github.com/harborcrm/crm-import-orchestrator/importer"
	"github.com/harborcrm/crm-import-orchestrator/infra"
	"github.com/harborcrm/crm-import-orchestrator/repository"
	"github.com/harborcrm/crm-import-orchestrator/utils"
)

type Controller struct {
	Config       *config.Config
	Infra        *infra.Infra
	Repository   *repository.Repository
	Orchestrator *importer.Orchestrator
}

func NewController(config *config.Config, infra *infra.Infra, repo *repository.Repository) *Controller {
	if repo == nil {
		panic("Failed to initialize Repository")
	}

	importCfg := config.EnvConfig.Import
	orchestrator := importer.NewOrchestrator(
		repo.JobRepo,
		importer.Stores(repo),
		infra.Redis,
		infra.Logger,
		importer.Config{
			DefaultChunkSize: importCfg.DefaultChunkSize,
			Upsert: importer.UpsertConfig{
				LookupChunkSize: importCfg.LookupChunkSize,
				InsertBatchSize: importCfg.InsertBatchSize,
				UpdateWidth:     importCfg.UpdateWidth,
			},
			Scan: importer.ScanConfig{
				PageSize:    importCfg.ScanPageSize,
				Concurrency: importCfg.ScanConcurrency,
			},
		},
	)

	return &Controller{
		Config:       config,
		Infra:        infra,
		Repository:   repo,
		Orchestrator: orchestrator,
	}
}

// identity pulls the authenticated organization and user ids injected by the
// auth middleware. The bool result is false after a response has been
// written.
func (ctrl *Controller) identity(c *gin.Context) (organizationID, userID uuid.UUID, ok bool) {
	ctx := c.Request.Context()

	orgIDStr := c.GetString("organization_id")
	if orgIDStr == "" {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, nil, "[Auth] organization_id not found in context")
		utils.JSON401(c, "Unauthorized: organization_id not found")
		return uuid.Nil, uuid.Nil, false
	}
	organizationID, err := uuid.Parse(orgIDStr)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Auth] Invalid organization_id format: %v", err)
		utils.JSON400(c, "Invalid organization_id format")
		return uuid.Nil, uuid.Nil, false
	}

	userIDStr := c.GetString("user_id")
	if userIDStr == "" {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, nil, "[Auth] user_id not found in context")
		utils.JSON401(c, "Unauthorized: user_id not found")
		return uuid.Nil, uuid.Nil, false
	}
	userID, err = uuid.Parse(userIDStr)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Auth] Invalid user_id format: %v", err)
		utils.JSON400(c, "Invalid user_id format")
		return uuid.Nil, uuid.Nil, false
	}

	return organizationID, userID, true
}

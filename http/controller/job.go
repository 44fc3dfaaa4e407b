package controller

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/harborcrm/crm-import-orchestrator/http/controller/dto"
	"github.com/harborcrm/crm-import-orchestrator/importer"
	"github.com/harborcrm/crm-import-orchestrator/infra/produce"
	"github.com/harborcrm/crm-import-orchestrator/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (ctrl *Controller) CreateJob(c *gin.Context) {
	ctx := c.Request.Context()
	organizationID, userID, ok := ctrl.identity(c)
	if !ok {
		return
	}

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Job] Invalid create request: %v", err)
		utils.JSON400(c, "Invalid request: "+err.Error())
		return
	}

	jobType := entity.JobType(req.JobType)
	dataType := entity.DataType(req.DataType)

	records := make([]entity.RawRow, len(req.Records))
	for i, row := range req.Records {
		records[i] = entity.RawRow(row)
	}

	if jobType == entity.JobTypeImport && len(records) == 0 {
		utils.JSON400(c, "Import jobs require at least one record")
		return
	}

	mapping := req.Mapping
	if jobType == entity.JobTypeImport && len(mapping) == 0 {
		mapping = importer.DetectMapping(columnsOf(records[0]), dataType)
		if len(mapping) == 0 {
			utils.JSON400(c, "Could not detect a column mapping; provide one explicitly")
			return
		}
	}

	scheduled := time.Now()
	if req.ScheduledTime != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			utils.JSON400(c, "Invalid scheduled_time, expected RFC3339")
			return
		}
		scheduled = parsed
	}

	job, err := ctrl.buildJob(organizationID, userID, jobType, dataType, scheduled, records, mapping)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Job] Failed to build job")
		utils.JSON500(c, "Failed to create job")
		return
	}

	if err := ctrl.Repository.JobRepo.Create(ctx, job); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Job] Failed to persist job")
		utils.JSON500(c, "Failed to create job")
		return
	}

	ctrl.publishScheduled(c, job)

	utils.JSON201(c, dto.CreateJobResponse{
		JobID:         job.ID.String(),
		Status:        string(job.Status),
		ScheduledTime: job.ScheduledTime.Format(time.RFC3339),
		TotalRecords:  len(records),
	})
}

// ImportFile creates an import job from an uploaded spreadsheet. The
// workbook's first sheet is parsed into rows and the column mapping is
// auto-detected from the header row.
func (ctrl *Controller) ImportFile(c *gin.Context) {
	ctx := c.Request.Context()
	organizationID, userID, ok := ctrl.identity(c)
	if !ok {
		return
	}

	dataType := entity.DataType(c.PostForm("data_type"))
	if dataType != entity.DataTypeProducts && dataType != entity.DataTypeContacts {
		utils.JSON400(c, "data_type must be products or contacts")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Job] Failed to get file from form data: %v", err)
		utils.JSON400(c, "Failed to get file: "+err.Error())
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Job] Failed to open uploaded file")
		utils.JSON400(c, "Failed to open file")
		return
	}
	defer file.Close()

	workbook, err := excelize.OpenReader(file)
	if err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Job] Failed to parse workbook %s: %v", fileHeader.Filename, err)
		utils.JSON400(c, "Failed to parse spreadsheet: "+err.Error())
		return
	}
	defer workbook.Close()

	headers, records, err := sheetRows(workbook)
	if err != nil {
		utils.JSON400(c, err.Error())
		return
	}
	if len(records) == 0 {
		utils.JSON400(c, "Spreadsheet contains no data rows")
		return
	}

	mapping := importer.DetectMapping(headers, dataType)
	if len(mapping) == 0 {
		utils.JSON400(c, "Could not detect a column mapping from the header row")
		return
	}

	job, err := ctrl.buildJob(organizationID, userID, entity.JobTypeImport, dataType, time.Now(), records, mapping)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Job] Failed to build job")
		utils.JSON500(c, "Failed to create job")
		return
	}

	if err := ctrl.Repository.JobRepo.Create(ctx, job); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Job] Failed to persist job")
		utils.JSON500(c, "Failed to create job")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Job] Created import job %s from %s (%d rows)", job.ID, fileHeader.Filename, len(records))
	ctrl.publishScheduled(c, job)

	utils.JSON201(c, dto.CreateJobResponse{
		JobID:         job.ID.String(),
		Status:        string(job.Status),
		ScheduledTime: job.ScheduledTime.Format(time.RFC3339),
		TotalRecords:  len(records),
	})
}

func (ctrl *Controller) GetJob(c *gin.Context) {
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

	job, err := ctrl.Repository.JobRepo.FindByIDAndOrganization(ctx, jobID, organizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Job not found")
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Job] Failed to load job %s", jobID)
		utils.JSON500(c, "Failed to load job")
		return
	}

	utils.JSON200(c, jobResponse(job))
}

func (ctrl *Controller) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()
	organizationID, _, ok := ctrl.identity(c)
	if !ok {
		return
	}

	jobs, err := ctrl.Repository.JobRepo.FindByOrganization(ctx, organizationID, 50)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Job] Failed to list jobs")
		utils.JSON500(c, "Failed to list jobs")
		return
	}

	responses := make([]dto.JobResponse, len(jobs))
	for i := range jobs {
		responses[i] = jobResponse(&jobs[i])
	}
	utils.JSON200(c, responses)
}

func (ctrl *Controller) CancelJob(c *gin.Context) {
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

	cancelled, err := ctrl.Repository.JobRepo.Cancel(ctx, jobID, organizationID)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Job] Failed to cancel job %s", jobID)
		utils.JSON500(c, "Failed to cancel job")
		return
	}
	if !cancelled {
		utils.JSON409(c, "Only pending jobs can be cancelled")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Job] Cancelled job %s", jobID)
	utils.JSON200(c, gin.H{"job_id": jobID.String(), "status": string(entity.JobStatusCancelled)})
}

func (ctrl *Controller) buildJob(organizationID, userID uuid.UUID, jobType entity.JobType, dataType entity.DataType, scheduled time.Time, records []entity.RawRow, mapping map[string]string) (*entity.Job, error) {
	now := time.Now()
	job := &entity.Job{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		CreatedBy:      userID,
		JobType:        jobType,
		DataType:       dataType,
		ScheduledTime:  entity.NormalizeSchedule(scheduled, now, ctrl.Config.EnvConfig.Import.ScheduleMargin),
		Status:         entity.JobStatusPending,
	}

	if jobType == entity.JobTypeImport {
		payload, err := json.Marshal(entity.FileData{Records: records, Mapping: mapping})
		if err != nil {
			return nil, err
		}
		job.FileData = datatypes.JSON(payload)
		job.ProgressTotal = len(records)
	}

	return job, nil
}

// publishScheduled announces the new job to the consumer. Publish failures
// are logged, not fatal: the job stays reachable through HTTP chunk polling.
func (ctrl *Controller) publishScheduled(c *gin.Context, job *entity.Job) {
	ctx := c.Request.Context()
	msg := produce.JobScheduledMessage{
		JobID:          job.ID.String(),
		OrganizationID: job.OrganizationID.String(),
		DataType:       string(job.DataType),
		ScheduledTime:  job.ScheduledTime.Unix(),
	}

	var err error
	if job.JobType == entity.JobTypeExport {
		err = ctrl.Infra.Produce.JobService.PublishExportScheduled(ctx, msg)
	} else {
		err = ctrl.Infra.Produce.JobService.PublishImportScheduled(ctx, msg)
	}
	if err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Job] Failed to publish scheduled message for job %s: %v", job.ID, err)
	}
}

func jobResponse(job *entity.Job) dto.JobResponse {
	resp := dto.JobResponse{
		JobID:         job.ID.String(),
		JobType:       string(job.JobType),
		DataType:      string(job.DataType),
		Status:        string(job.Status),
		ScheduledTime: job.ScheduledTime.Format(time.RFC3339),
		RecordCount:   job.RecordCount,
		Progress: dto.ProgressResponse{
			Current: job.ProgressCurrent,
			Total:   job.ProgressTotal,
			Percent: job.ProgressPercent,
		},
		ErrorMessage: job.ErrorMessage,
		ExportObject: job.ExportObject,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// columnsOf returns the row's column names in a stable order for mapping
// detection.
func columnsOf(row entity.RawRow) []string {
	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

// sheetRows flattens the workbook's first sheet into raw rows keyed by the
// header row.
func sheetRows(workbook *excelize.File) ([]string, []entity.RawRow, error) {
	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook has no sheets")
	}

	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, nil, errors.New("failed to read sheet: " + err.Error())
	}
	if len(rows) < 1 {
		return nil, nil, errors.New("sheet has no header row")
	}

	headers := rows[0]
	records := make([]entity.RawRow, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		record := make(entity.RawRow, len(headers))
		empty := true
		for i, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if i < len(cells) {
				value = cells[i]
			}
			if value != "" {
				empty = false
			}
			record[header] = value
		}
		if !empty {
			records = append(records, record)
		}
	}

	return headers, records, nil
}

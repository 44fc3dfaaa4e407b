package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/harborcrm/crm-import-orchestrator/importer"
	"github.com/harborcrm/crm-import-orchestrator/infra"
	"github.com/harborcrm/crm-import-orchestrator/repository"
	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Exporter runs export jobs: it pages the organization's keyed table in the
// same deterministic order the scanner uses, writes an XLSX workbook and
// uploads it to object storage, recording the object key on the job.
type Exporter struct {
	repo     *repository.Repository
	minio    *infra.MinioClient
	logger   *infra.LoggerClient
	pageSize int
}

func NewExporter(repo *repository.Repository, minio *infra.MinioClient, logger *infra.LoggerClient, pageSize int) *Exporter {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Exporter{
		repo:     repo,
		minio:    minio,
		logger:   logger,
		pageSize: pageSize,
	}
}

// Run drives one export job to a terminal status.
func (e *Exporter) Run(ctx context.Context, job *entity.Job) error {
	if job.JobType != entity.JobTypeExport {
		return importer.ErrWrongJobType
	}
	if !job.Processable() {
		return fmt.Errorf("%w: status is %s", importer.ErrJobNotProcessable, job.Status)
	}

	claimed, err := e.repo.JobRepo.ClaimPending(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if !claimed && job.Status != entity.JobStatusProcessing {
		return fmt.Errorf("%w: claim lost", importer.ErrJobNotProcessable)
	}

	data, rowCount, err := e.buildWorkbook(ctx, job)
	if err != nil {
		e.logger.ErrorWithContextf(ctx, err, "[Export] Failed to build workbook for job %s", job.ID)
		if finishErr := e.repo.JobRepo.Finish(ctx, job.ID, entity.JobStatusFailed, 0, err.Error()); finishErr != nil {
			return fmt.Errorf("finish failed job: %w", finishErr)
		}
		return err
	}

	objectKey := fmt.Sprintf("%s/%s-%s.xlsx", job.OrganizationID, job.DataType, job.ID)
	if err := e.minio.PutExportObject(ctx, objectKey, data, xlsxContentType); err != nil {
		e.logger.ErrorWithContextf(ctx, err, "[Export] Failed to upload artifact for job %s", job.ID)
		if finishErr := e.repo.JobRepo.Finish(ctx, job.ID, entity.JobStatusFailed, 0, err.Error()); finishErr != nil {
			return fmt.Errorf("finish failed job: %w", finishErr)
		}
		return err
	}

	if err := e.repo.JobRepo.SetExportObject(ctx, job.ID, objectKey); err != nil {
		return fmt.Errorf("record export object: %w", err)
	}
	if err := e.repo.JobRepo.Finish(ctx, job.ID, entity.JobStatusCompleted, int64(rowCount), ""); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}

	e.logger.InfoWithContextf(ctx, "[Export] Job %s exported %d %s rows to %s", job.ID, rowCount, job.DataType, objectKey)
	return nil
}

func (e *Exporter) buildWorkbook(ctx context.Context, job *entity.Job) ([]byte, int, error) {
	workbook := excelize.NewFile()
	defer workbook.Close()
	sheet := workbook.GetSheetList()[0]

	var rowCount int
	var err error
	switch job.DataType {
	case entity.DataTypeProducts:
		rowCount, err = e.writeProducts(ctx, workbook, sheet, job)
	case entity.DataTypeContacts:
		rowCount, err = e.writeContacts(ctx, workbook, sheet, job)
	default:
		return nil, 0, fmt.Errorf("unsupported data type %q", job.DataType)
	}
	if err != nil {
		return nil, 0, err
	}

	buf, err := workbook.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), rowCount, nil
}

func (e *Exporter) writeProducts(ctx context.Context, workbook *excelize.File, sheet string, job *entity.Job) (int, error) {
	header := []interface{}{"SKU", "Name", "Category", "Description", "Price", "Quantity", "Created At"}
	if err := workbook.SetSheetRow(sheet, "A1", &header); err != nil {
		return 0, err
	}

	rowNum := 2
	for offset := 0; ; offset += e.pageSize {
		page, err := e.repo.ProductRepo.FindAllByCreation(ctx, job.OrganizationID, offset, e.pageSize)
		if err != nil {
			return 0, fmt.Errorf("fetch products at offset %d: %w", offset, err)
		}
		for _, product := range page {
			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return 0, err
			}
			row := []interface{}{
				product.SKU,
				product.Name,
				product.Category,
				product.Description,
				product.Price.String(),
				product.Quantity,
				product.CreatedAt.Format(time.RFC3339),
			}
			if err := workbook.SetSheetRow(sheet, cell, &row); err != nil {
				return 0, err
			}
			rowNum++
		}
		if len(page) < e.pageSize {
			break
		}
	}
	return rowNum - 2, nil
}

func (e *Exporter) writeContacts(ctx context.Context, workbook *excelize.File, sheet string, job *entity.Job) (int, error) {
	header := []interface{}{"Email", "First Name", "Last Name", "Phone", "Company", "Created At"}
	if err := workbook.SetSheetRow(sheet, "A1", &header); err != nil {
		return 0, err
	}

	rowNum := 2
	for offset := 0; ; offset += e.pageSize {
		page, err := e.repo.ContactRepo.FindAllByCreation(ctx, job.OrganizationID, offset, e.pageSize)
		if err != nil {
			return 0, fmt.Errorf("fetch contacts at offset %d: %w", offset, err)
		}
		for _, contact := range page {
			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return 0, err
			}
			row := []interface{}{
				contact.Email,
				contact.FirstName,
				contact.LastName,
				contact.Phone,
				contact.Company,
				contact.CreatedAt.Format(time.RFC3339),
			}
			if err := workbook.SetSheetRow(sheet, cell, &row); err != nil {
				return 0, err
			}
			rowNum++
		}
		if len(page) < e.pageSize {
			break
		}
	}
	return rowNum - 2, nil
}

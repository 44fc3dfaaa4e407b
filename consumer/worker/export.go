package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/config"
	"github.com/harborcrm/crm-import-orchestrator/exporter"
	"github.com/harborcrm/crm-import-orchestrator/importer"
	"github.com/harborcrm/crm-import-orchestrator/infra"
	"github.com/harborcrm/crm-import-orchestrator/infra/produce"
	"github.com/harborcrm/crm-import-orchestrator/repository"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"
)

// ExportConsumer runs scheduled export jobs: it re-reads the job row, waits
// for the scheduled time and hands the job to the exporter.
type ExportConsumer struct {
	channel    *amqp.Channel
	infra      *infra.Infra
	repository *repository.Repository
	exporter   *exporter.Exporter
}

func NewExportConsumer(channel *amqp.Channel, cfg *config.Config, infra *infra.Infra, repo *repository.Repository) *ExportConsumer {
	return &ExportConsumer{
		channel:    channel,
		infra:      infra,
		repository: repo,
		exporter:   exporter.NewExporter(repo, infra.Minio, infra.Logger, cfg.EnvConfig.Import.ScanPageSize),
	}
}

func (c *ExportConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		produce.ExportJobQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register export job consumer: %w", err)
	}

	c.infra.Logger.InfoWithContextf(ctx, "[Export Consumer] Started listening on queue: %s", produce.ExportJobQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.infra.Logger.InfoWithContextf(ctx, "[Export Consumer] Shutting down...")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.infra.Logger.WarningWithContextf(ctx, "[Export Consumer] Channel closed")
					return
				}
				c.handleScheduledJob(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *ExportConsumer) handleScheduledJob(ctx context.Context, msg amqp.Delivery) {
	var payload produce.JobScheduledMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Export Consumer] Failed to unmarshal scheduled job message")
		_ = msg.Nack(false, false)
		return
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Export Consumer] Invalid job ID")
		_ = msg.Nack(false, false)
		return
	}
	organizationID, err := uuid.Parse(payload.OrganizationID)
	if err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Export Consumer] Invalid organization ID")
		_ = msg.Nack(false, false)
		return
	}

	job, err := c.repository.JobRepo.FindByIDAndOrganization(ctx, jobID, organizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.infra.Logger.WarningWithContextf(ctx, "[Export Consumer] Job %s not found, dropping message", jobID)
			_ = msg.Ack(false)
			return
		}
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Export Consumer] Failed to load job %s", jobID)
		_ = msg.Nack(false, true)
		return
	}

	if !job.Processable() {
		c.infra.Logger.InfoWithContextf(ctx, "[Export Consumer] Job %s is %s, nothing to do", jobID, job.Status)
		_ = msg.Ack(false)
		return
	}

	if !waitUntilDue(ctx, job.ScheduledTime) {
		_ = msg.Nack(false, true)
		return
	}

	if err := c.exporter.Run(ctx, job); err != nil {
		if errors.Is(err, importer.ErrJobNotProcessable) || errors.Is(err, importer.ErrWrongJobType) {
			c.infra.Logger.WarningWithContextf(ctx, "[Export Consumer] Job %s not runnable: %v", jobID, err)
			_ = msg.Ack(false)
			return
		}
		// Run marks the job failed for domain errors; only infrastructure
		// errors reach here unrecorded, so requeue.
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Export Consumer] Export job %s failed", jobID)
		_ = msg.Nack(false, true)
		return
	}

	_ = msg.Ack(false)
}

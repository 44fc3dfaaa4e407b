package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/config"
	"github.com/harborcrm/crm-import-orchestrator/importer"
	"github.com/harborcrm/crm-import-orchestrator/infra"
	"github.com/harborcrm/crm-import-orchestrator/infra/produce"
	"github.com/harborcrm/crm-import-orchestrator/repository"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"
)

const chunkRetryLimit = 3

// ImportConsumer drives scheduled import jobs to completion. Each message
// names a job; the consumer re-reads the row, waits for the scheduled time
// and then loops the orchestrator one bounded chunk at a time until done.
type ImportConsumer struct {
	channel      *amqp.Channel
	infra        *infra.Infra
	repository   *repository.Repository
	orchestrator *importer.Orchestrator
	chunkSize    int
	chunkDelay   time.Duration
}

func NewImportConsumer(channel *amqp.Channel, cfg *config.Config, infra *infra.Infra, repo *repository.Repository) *ImportConsumer {
	importCfg := cfg.EnvConfig.Import
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
	return &ImportConsumer{
		channel:      channel,
		infra:        infra,
		repository:   repo,
		orchestrator: orchestrator,
		chunkSize:    importCfg.DefaultChunkSize,
		chunkDelay:   importCfg.InterChunkDelay,
	}
}

func (c *ImportConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		produce.ImportJobQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register import job consumer: %w", err)
	}

	c.infra.Logger.InfoWithContextf(ctx, "[Import Consumer] Started listening on queue: %s", produce.ImportJobQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.infra.Logger.InfoWithContextf(ctx, "[Import Consumer] Shutting down...")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.infra.Logger.WarningWithContextf(ctx, "[Import Consumer] Channel closed")
					return
				}
				c.handleScheduledJob(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *ImportConsumer) handleScheduledJob(ctx context.Context, msg amqp.Delivery) {
	var payload produce.JobScheduledMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Import Consumer] Failed to unmarshal scheduled job message")
		_ = msg.Nack(false, false)
		return
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Import Consumer] Invalid job ID")
		_ = msg.Nack(false, false)
		return
	}
	organizationID, err := uuid.Parse(payload.OrganizationID)
	if err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Import Consumer] Invalid organization ID")
		_ = msg.Nack(false, false)
		return
	}

	// The message only announces the job; the row is the source of truth.
	job, err := c.repository.JobRepo.FindByIDAndOrganization(ctx, jobID, organizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.infra.Logger.WarningWithContextf(ctx, "[Import Consumer] Job %s not found, dropping message", jobID)
			_ = msg.Ack(false)
			return
		}
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Import Consumer] Failed to load job %s", jobID)
		_ = msg.Nack(false, true)
		return
	}

	if !job.Processable() {
		c.infra.Logger.InfoWithContextf(ctx, "[Import Consumer] Job %s is %s, nothing to do", jobID, job.Status)
		_ = msg.Ack(false)
		return
	}

	if !waitUntilDue(ctx, job.ScheduledTime) {
		// Shutting down before the job came due; requeue so the next
		// consumer instance picks it up.
		_ = msg.Nack(false, true)
		return
	}

	// Resume from the persisted offset so a crashed or restarted consumer
	// never reprocesses completed chunks.
	offset := job.ProgressCurrent
	retries := 0
	for {
		outcome, err := c.orchestrator.ProcessChunk(ctx, organizationID, jobID, offset, c.chunkSize)
		if err != nil {
			if errors.Is(err, importer.ErrJobNotProcessable) || errors.Is(err, importer.ErrWrongJobType) || errors.Is(err, gorm.ErrRecordNotFound) {
				c.infra.Logger.WarningWithContextf(ctx, "[Import Consumer] Job %s no longer processable: %v", jobID, err)
				_ = msg.Ack(false)
				return
			}
			retries++
			if retries > chunkRetryLimit {
				c.infra.Logger.ErrorWithContextf(ctx, err, "[Import Consumer] Job %s failed at offset %d after %d retries, requeueing", jobID, offset, chunkRetryLimit)
				_ = msg.Nack(false, true)
				return
			}
			c.infra.Logger.WarningWithContextf(ctx, "[Import Consumer] Chunk at offset %d for job %s failed (attempt %d): %v", offset, jobID, retries, err)
			if !sleepCtx(ctx, c.chunkDelay) {
				_ = msg.Nack(false, true)
				return
			}
			continue
		}
		retries = 0

		if outcome.Done {
			c.infra.Logger.InfoWithContextf(ctx, "[Import Consumer] Job %s finished with status %s: %d inserted, %d updated, %d skipped",
				jobID, outcome.Status, outcome.Batch.Inserted, outcome.Batch.Updated, outcome.Batch.Skipped)
			_ = msg.Ack(false)
			return
		}
		offset = outcome.NextOffset

		if !sleepCtx(ctx, c.chunkDelay) {
			_ = msg.Nack(false, true)
			return
		}
	}
}

// waitUntilDue blocks until the scheduled time passes. It returns false if
// the context was cancelled first.
func waitUntilDue(ctx context.Context, scheduled time.Time) bool {
	delay := time.Until(scheduled)
	if delay <= 0 {
		return true
	}
	return sleepCtx(ctx, delay)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

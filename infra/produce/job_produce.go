package produce

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	JobExchange = "crm.jobs"

	ImportJobQueue      = "crm.jobs.import"
	ImportJobRoutingKey = "crm.jobs.import"

	ExportJobQueue      = "crm.jobs.export"
	ExportJobRoutingKey = "crm.jobs.export"
)

// JobScheduledMessage announces that a job row was created and is (or will
// become) due for processing. The consumer re-reads the job row before doing
// anything; the message carries identifiers only.
type JobScheduledMessage struct {
	JobID          string `json:"job_id"`
	OrganizationID string `json:"organization_id"`
	DataType       string `json:"data_type"`
	ScheduledTime  int64  `json:"scheduled_time"` // Unix seconds
	Timestamp      int64  `json:"timestamp"`
}

// JobProduceService publishes job lifecycle messages.
type JobProduceService struct {
	channel *amqp.Channel
}

func InitJobProduceService(channel *amqp.Channel) *JobProduceService {
	service := &JobProduceService{
		channel: channel,
	}

	// Declare exchange
	err := channel.ExchangeDeclare(
		JobExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to declare Job exchange: " + err.Error())
	}

	// Declare queues and bind them
	for _, q := range []struct{ queue, key string }{
		{ImportJobQueue, ImportJobRoutingKey},
		{ExportJobQueue, ExportJobRoutingKey},
	} {
		_, err = channel.QueueDeclare(
			q.queue,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			panic("Failed to declare queue " + q.queue + ": " + err.Error())
		}

		err = channel.QueueBind(q.queue, q.key, JobExchange, false, nil)
		if err != nil {
			panic("Failed to bind queue " + q.queue + ": " + err.Error())
		}
	}

	return service
}

func (s *JobProduceService) PublishImportScheduled(ctx context.Context, msg JobScheduledMessage) error {
	return s.publish(ctx, ImportJobRoutingKey, msg)
}

func (s *JobProduceService) PublishExportScheduled(ctx context.Context, msg JobScheduledMessage) error {
	return s.publish(ctx, ExportJobRoutingKey, msg)
}

func (s *JobProduceService) publish(ctx context.Context, routingKey string, msg JobScheduledMessage) error {
	msg.Timestamp = time.Now().Unix()

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.channel.PublishWithContext(publishCtx,
		JobExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

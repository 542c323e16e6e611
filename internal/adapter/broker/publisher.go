package broker

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sheetflow/sheetflow/internal/adapter/observability"
	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/domain"
)

// publisherOwner keys the publisher's connection in the factory.
const publisherOwner = "publisher"

// Publisher enqueues work envelopes. The generated message id doubles as
// the task id handed back to the caller.
type Publisher struct {
	factory *Factory
	cfg     config.Config

	now   func() time.Time
	newID func() string
}

// NewPublisher builds a Publisher over the shared factory.
func NewPublisher(factory *Factory, cfg config.Config) *Publisher {
	return &Publisher{
		factory: factory,
		cfg:     cfg,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// PublishSchemaUpdate enqueues a schema upload. With raw set the schema
// payload is a compile request, not a JSON schema.
func (p *Publisher) PublishSchemaUpdate(ctx context.Context, importName string, schema map[string]any, raw bool) (string, error) {
	msg := domain.Message{
		Task:       domain.OpSchemaUpdate,
		ImportName: importName,
		Schema:     schema,
		Raw:        raw,
	}
	return p.publish(ctx, p.cfg.RoutingKeySchemaUpdate, msg)
}

// PublishSchemaRemove enqueues a schema removal.
func (p *Publisher) PublishSchemaRemove(ctx context.Context, importName string) (string, error) {
	msg := domain.Message{
		Task:       domain.OpSchemaRemove,
		ImportName: importName,
	}
	return p.publish(ctx, p.cfg.RoutingKeySchemaUpdate, msg)
}

// PublishValidation enqueues a spreadsheet validation. The file travels
// hex-encoded inside the JSON envelope.
func (p *Publisher) PublishValidation(ctx context.Context, importName string, fileData []byte, meta domain.FileMetadata, extra map[string]any) (string, error) {
	msg := domain.Message{
		Task:       domain.OpValidation,
		ImportName: importName,
		FileData:   hex.EncodeToString(fileData),
		Metadata:   &meta,
		Extra:      extra,
	}
	return p.publish(ctx, p.cfg.RoutingKeyValidationRequest, msg)
}

// PublishResult enqueues a result envelope after a terminal status.
func (p *Publisher) PublishResult(ctx context.Context, routingKey string, taskID, importName string, extra map[string]any) error {
	msg := domain.Message{
		ID:         taskID,
		Task:       domain.OpValidation,
		ImportName: importName,
		Date:       p.now().UTC().Format(time.RFC3339),
		Extra:      extra,
	}
	if routingKey == p.cfg.RoutingKeySchemaResult {
		msg.Task = domain.OpSchemaUpdate
	}
	return p.send(ctx, routingKey, msg)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, msg domain.Message) (string, error) {
	msg.ID = p.newID()
	msg.Date = p.now().UTC().Format(time.RFC3339)
	if err := p.send(ctx, routingKey, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (p *Publisher) send(ctx context.Context, routingKey string, msg domain.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("op=broker.publish key=%s: %w", routingKey, err)
	}
	ch, err := p.factory.Channel(publisherOwner)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.cfg.BrokerExchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    p.now(),
		Body:         body,
	})
	if err != nil {
		// One re-dial covers a connection that died since last use.
		p.factory.CloseOwner(publisherOwner)
		ch, chErr := p.factory.Channel(publisherOwner)
		if chErr != nil {
			return fmt.Errorf("op=broker.publish key=%s: %w", routingKey, err)
		}
		if err := ch.PublishWithContext(ctx, p.cfg.BrokerExchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    p.now(),
			Body:         body,
		}); err != nil {
			return fmt.Errorf("op=broker.publish key=%s: %w", routingKey, err)
		}
	}
	observability.MessagesPublishedTotal.WithLabelValues(routingKey).Inc()
	return nil
}

// Package publisher ships journaled checkout events to Kafka.
package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	d "github.com/fjod/go_checkout/internal/domain"
	r "github.com/fjod/go_checkout/internal/repository"
)

const DefaultTopic = "checkout-attempts"

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	staleAfter   time.Duration
	batchSize    int
	repo         r.Outbox
	writer       MessageWriter
	log          *zap.Logger
	now          func() time.Time
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo r.Outbox, writer MessageWriter, log *zap.Logger) *OutboxPoller {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxPoller{
		timeout:      5 * time.Second,
		eventTick:    time.Second,
		recoveryTick: 30 * time.Second,
		staleAfter:   15 * time.Minute,
		batchSize:    100,
		repo:         repo,
		writer:       writer,
		log:          log,
		now:          time.Now,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStaleAttempts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents publishes one batch and returns how many events
// were published and marked.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.Warn("failed to publish event", zap.String("event_id", event.ID), zap.Error(err))
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Warn("failed to mark event as processed", zap.String("event_id", event.ID), zap.Error(err))
			continue
		}
		published++
	}
	return published
}

// recoverStaleAttempts fails attempts whose outcome was never recorded, e.g.
// because the process died mid-request.
func (p *OutboxPoller) recoverStaleAttempts(ctx context.Context) {
	attempts, err := p.repo.GetStaleAttempts(ctx, p.now().Add(-p.staleAfter), p.batchSize)
	if err != nil {
		p.log.Error("failed to get stale attempts", zap.Error(err))
		return
	}
	for _, a := range attempts {
		_, err := p.repo.UpdateStatus(ctx, a.OrderNumber, r.StatusUpdate{
			Status: d.AttemptStatusTransportFailed,
			Detail: "no outcome recorded",
		})
		if err != nil {
			p.log.Warn("failed to recover stale attempt", zap.String("order_number", a.OrderNumber), zap.Error(err))
			continue
		}
		p.log.Info("stale attempt recovered", zap.String("order_number", a.OrderNumber))
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *r.OutboxEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // order number keeps an attempt's events ordered
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	return p.writer.WriteMessages(writeCtx, msg)
}

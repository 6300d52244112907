package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wigshare/wigshare-api/internal/models"
	"github.com/wigshare/wigshare-api/pkg/config"
	"github.com/wigshare/wigshare-api/pkg/jobs"
)

// Notifier receives workflow events. The workflow guarantees emission
// only; delivery belongs to the notification collaborator behind the
// sink.
type Notifier interface {
	RequestCancelled(ctx context.Context, event models.RequestCancelledEvent)
	AnalysisStatusChanged(ctx context.Context, event models.AnalysisStatusChangedEvent)
	DonationCreated(ctx context.Context, event models.DonationCreatedEvent)
}

// NotificationSink delivers a single event to the outside world.
type NotificationSink interface {
	Deliver(ctx context.Context, eventType string, payload interface{}) error
}

// NotificationSinkFunc allows using plain functions as sinks.
type NotificationSinkFunc func(ctx context.Context, eventType string, payload interface{}) error

// Deliver implements NotificationSink.
func (f NotificationSinkFunc) Deliver(ctx context.Context, eventType string, payload interface{}) error {
	return f(ctx, eventType, payload)
}

// LogSink writes events to the structured log. It is the default sink in
// deployments without a real notification backend.
func LogSink(logger *zap.Logger) NotificationSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NotificationSinkFunc(func(_ context.Context, eventType string, payload interface{}) error {
		logger.Info("notification", zap.String("event", eventType), zap.Any("payload", payload))
		return nil
	})
}

// QueueNotifier fans events out asynchronously through the in-process
// job queue so workflow transactions never wait on delivery.
type QueueNotifier struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

type notificationJob struct {
	EventType string
	Payload   interface{}
}

// NewQueueNotifier builds the notifier and its backing queue. Call Start
// before use and Stop on shutdown.
func NewQueueNotifier(sink NotificationSink, cfg config.NotificationsConfig, logger *zap.Logger) *QueueNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(notificationJob)
		if !ok {
			return fmt.Errorf("unexpected payload type for job %s", job.ID)
		}
		return sink.Deliver(ctx, payload.EventType, payload.Payload)
	}
	queue := jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return &QueueNotifier{queue: queue, logger: logger}
}

// Start launches the dispatcher workers.
func (n *QueueNotifier) Start() { n.queue.Start() }

// Stop drains and shuts down the dispatcher.
func (n *QueueNotifier) Stop() { n.queue.Stop() }

// RequestCancelled implements Notifier.
func (n *QueueNotifier) RequestCancelled(_ context.Context, event models.RequestCancelledEvent) {
	n.enqueue(models.EventRequestCancelled, event)
}

// AnalysisStatusChanged implements Notifier.
func (n *QueueNotifier) AnalysisStatusChanged(_ context.Context, event models.AnalysisStatusChangedEvent) {
	n.enqueue(models.EventAnalysisStatusChanged, event)
}

// DonationCreated implements Notifier.
func (n *QueueNotifier) DonationCreated(_ context.Context, event models.DonationCreatedEvent) {
	n.enqueue(models.EventDonationCreated, event)
}

func (n *QueueNotifier) enqueue(eventType string, payload interface{}) {
	err := n.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: notificationJob{EventType: eventType, Payload: payload},
	})
	if err != nil {
		// Notifications are best effort; a dropped event must never fail
		// the workflow call that produced it.
		n.logger.Warn("notification dropped", zap.String("event", eventType), zap.Error(err))
	}
}

// NopNotifier discards all events.
type NopNotifier struct{}

// RequestCancelled implements Notifier.
func (NopNotifier) RequestCancelled(context.Context, models.RequestCancelledEvent) {}

// AnalysisStatusChanged implements Notifier.
func (NopNotifier) AnalysisStatusChanged(context.Context, models.AnalysisStatusChangedEvent) {}

// DonationCreated implements Notifier.
func (NopNotifier) DonationCreated(context.Context, models.DonationCreatedEvent) {}

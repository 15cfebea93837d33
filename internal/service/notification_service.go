package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/doc-history/internal/config"
	"github.com/spec-kit/doc-history/internal/events"
)

// NotificationService relays document events to operators.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventDocumentCreated, n.handleDocumentCreated)
	n.dispatcher.Subscribe(events.EventHistoryRecorded, n.handleHistoryRecorded)
	n.dispatcher.Subscribe(events.EventHistoryForgotten, n.handleHistoryForgotten)
	n.dispatcher.Subscribe(events.EventDocumentRevised, n.handleDocumentRevised)
	n.dispatcher.Subscribe(events.EventDocumentDeleted, n.handleDocumentDeleted)
}

func (n *NotificationService) handleDocumentCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("DocumentCreated", eventFields(event)...)
	return nil
}

func (n *NotificationService) handleHistoryRecorded(ctx context.Context, event events.Event) error {
	n.logger.Info("HistoryRecorded", eventFields(event)...)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// Pruning discards audit data, so it is always pushed to the webhook.
func (n *NotificationService) handleHistoryForgotten(ctx context.Context, event events.Event) error {
	n.logger.Warn("HistoryForgotten", eventFields(event)...)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleDocumentRevised(ctx context.Context, event events.Event) error {
	n.logger.Info("DocumentRevised", eventFields(event)...)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleDocumentDeleted(ctx context.Context, event events.Event) error {
	n.logger.Warn("DocumentDeleted", eventFields(event)...)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("document_id", event.DocumentID),
		zap.String("event_type", string(event.Type)))
}

func eventFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("collection", event.Collection),
		zap.String("document_id", event.DocumentID),
		zap.String("author", event.Author),
		zap.Any("payload", event.Payload),
	}
}

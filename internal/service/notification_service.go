package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/stagecall/audition-service/internal/config"
	"github.com/stagecall/audition-service/internal/events"
)

// NotificationService delivers auth notifications for published events.
// Delivery is stubbed: the magic-link mailer and the audit webhook log their
// payloads until real transports are wired.
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
	n.dispatcher.Subscribe(events.EventMagicLinkRequested, n.handleMagicLinkRequested)
	n.dispatcher.Subscribe(events.EventUserLoggedIn, n.handleUserLoggedIn)
	n.dispatcher.Subscribe(events.EventSessionsRevoked, n.handleSessionsRevoked)
}

func (n *NotificationService) handleMagicLinkRequested(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MagicLinkRequestedPayload)
	if !ok {
		return nil
	}
	n.sendMagicLinkEmailStub(ctx, payload)
	return nil
}

func (n *NotificationService) handleUserLoggedIn(ctx context.Context, event events.Event) error {
	n.logger.Info("UserLoggedIn", zap.String("user_id", event.UserID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleSessionsRevoked(ctx context.Context, event events.Event) error {
	n.logger.Info("SessionsRevoked", zap.String("user_id", event.UserID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendMagicLinkEmailStub(_ context.Context, payload events.MagicLinkRequestedPayload) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendMagicLinkEmailStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", payload.Email),
		zap.Time("expires_at", payload.ExpiresAt))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("user_id", event.UserID),
		zap.String("event_type", string(event.Type)))
}

package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"

	"gate-access-backend/internal/metrics"
	"gate-access-backend/internal/model"
	"gate-access-backend/internal/store"
)

// Alert is a structured operator notification.
type Alert struct {
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool persists alerts and fans them out to operator push subscriptions.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     *slog.Logger
	now     func() time.Time
}

// NewWorkerPool creates a new worker pool. A nil webpushOptions disables push delivery.
func NewWorkerPool(size, queueSize int, s store.Store, webpushOptions *webpush.Options, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, queueSize),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     logger.With("component", "notification"),
		now:     time.Now,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("worker started", "worker", id)
	for {
		select {
		case alert := <-wp.jobs:
			wp.deliver(ctx, alert)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", "worker", id)
			return
		}
	}
}

// Notify queues an alert without blocking. A full queue drops the alert.
func (wp *WorkerPool) Notify(alert Alert) {
	select {
	case wp.jobs <- alert:
		metrics.AlertsTotal.WithLabelValues(alert.Severity, "queued").Inc()
	default:
		metrics.AlertsTotal.WithLabelValues(alert.Severity, "dropped").Inc()
		wp.log.Warn("alert queue full, dropping alert", "severity", alert.Severity, "title", alert.Title)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

// deliver persists the alert and pushes it to every matching subscription.
func (wp *WorkerPool) deliver(ctx context.Context, alert Alert) {
	n := model.AdminNotification{
		ID:        uuid.NewString(),
		Severity:  alert.Severity,
		Title:     alert.Title,
		Body:      alert.Body,
		CreatedAt: wp.now(),
	}
	if err := wp.store.SaveNotification(ctx, &n); err != nil {
		metrics.AlertsTotal.WithLabelValues(alert.Severity, "failed").Inc()
		wp.log.Error("failed to persist alert", "title", alert.Title, "error", err)
	}

	if wp.webpush == nil || wp.webpush.VAPIDPrivateKey == "" {
		return
	}

	subscriptions, err := wp.store.ListSubscriptions(ctx, severitiesUpTo(alert.Severity))
	if err != nil {
		wp.log.Error("failed to fetch subscriptions", "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(struct {
		ID string `json:"id"`
		Alert
	}{ID: n.ID, Alert: alert})
	if err != nil {
		wp.log.Error("failed to encode alert", "error", err)
		return
	}

	wp.log.Info("pushing alert", "severity", alert.Severity, "subscriptions", len(subscriptions))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload, alert.Severity)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte, severity string) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.AlertsTotal.WithLabelValues(severity, "failed").Inc()
		wp.log.Error("failed to send push", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.Info("subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error("failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
		return
	}
	metrics.AlertsTotal.WithLabelValues(severity, "delivered").Inc()
}

// severitiesUpTo lists the subscription thresholds an alert of severity satisfies.
func severitiesUpTo(severity string) []string {
	switch severity {
	case model.SeverityDanger:
		return []string{model.SeverityInfo, model.SeverityWarning, model.SeverityDanger}
	case model.SeverityWarning:
		return []string{model.SeverityInfo, model.SeverityWarning}
	default:
		return []string{model.SeverityInfo}
	}
}

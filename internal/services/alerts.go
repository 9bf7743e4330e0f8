package services

import (
	"context"
	"time"
)

// AlertKind names the operator-facing condition.
type AlertKind string

const (
	AlertAmountMismatch   AlertKind = "amount_mismatch"
	AlertMissingMetadata  AlertKind = "missing_metadata"
	AlertCommitIncomplete AlertKind = "commit_incomplete"
	AlertCommitFailed     AlertKind = "commit_failed"
	AlertCartUnavailable  AlertKind = "cart_unavailable"
	AlertGatewayError     AlertKind = "gateway_error"
)

// AlertSeverity separates retryable noise from conditions that need a human.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is published to the operator channel.
type Alert struct {
	Kind        AlertKind      `json:"kind"`
	Severity    AlertSeverity  `json:"severity"`
	OrderNumber string         `json:"orderNumber,omitempty"`
	PaymentID   string         `json:"paymentId,omitempty"`
	Gateway     string         `json:"gateway,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	RaisedAt    time.Time      `json:"raisedAt"`
}

// AlertPublisher delivers alerts to operators.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert Alert) error
}

type nopAlertPublisher struct{}

func (nopAlertPublisher) PublishAlert(context.Context, Alert) error { return nil }

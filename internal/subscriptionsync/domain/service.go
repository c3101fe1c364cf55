package domain

import (
	"context"
	"errors"
)

type IngestResult struct {
	EventID   string
	Duplicate bool
}

type ProcessResult struct {
	Processed int
	Ignored   int
	Failed    int
	Retrying  int
}

type Service interface {
	// Ingest verifies the hex HMAC-SHA256 signature of payload and queues it.
	Ingest(ctx context.Context, payload []byte, signature string) (*IngestResult, error)
	// IngestTrusted queues payload from an authenticated system caller.
	IngestTrusted(ctx context.Context, payload []byte) (*IngestResult, error)
	// ProcessPending applies up to limit queued events in arrival order.
	ProcessPending(ctx context.Context, limit int) (ProcessResult, error)
}

var (
	ErrSecretNotConfigured = errors.New("webhook_secret_not_configured")
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrInvalidEvent        = errors.New("invalid_event")
	ErrUnknownStatus       = errors.New("unknown_subscription_status")
)

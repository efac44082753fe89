package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{"no servers", nats.ErrNoServers, true, true},
		{"timeout", fmt.Errorf("publish: %w", nats.ErrTimeout), true, true},
		{"connection closed", nats.ErrConnectionClosed, true, true},
		{"reconnect buffer exceeded", nats.ErrReconnectBufExceeded, false, true},
		{"max payload", nats.ErrMaxPayload, false, true},
		{"canceled context", context.Canceled, false, false},
		{"unknown", errors.New("boom"), false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyNATSError(tc.err)
			if class.Retryable != tc.retryable {
				t.Fatalf("Retryable = %v, want %v", class.Retryable, tc.retryable)
			}
			if class.RecordFailure != tc.recordFailure {
				t.Fatalf("RecordFailure = %v, want %v", class.RecordFailure, tc.recordFailure)
			}
		})
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	wrapped := wrapTemporaryIfNeeded(nats.ErrTimeout)
	if !domain.IsKind(wrapped, domain.ErrTemporary) {
		t.Fatalf("connection failure must wrap as temporary, got %v", wrapped)
	}

	plain := errors.New("boom")
	if got := wrapTemporaryIfNeeded(plain); !errors.Is(got, plain) || domain.IsKind(got, domain.ErrTemporary) {
		t.Fatalf("non-retryable error must pass through unwrapped, got %v", got)
	}

	already := domain.WrapError(domain.ErrTemporary, "publish retrieval event", nats.ErrTimeout)
	if got := wrapTemporaryIfNeeded(already); got != already {
		t.Fatalf("temporary errors must not be double wrapped")
	}

	if wrapTemporaryIfNeeded(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

package models

import (
	"testing"
	"time"
)

func TestWebhookEventProcessedOK(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		event WebhookEvent
		want  bool
	}{
		{"unprocessed", WebhookEvent{}, false},
		{"processed clean", WebhookEvent{ProcessedAt: &now}, true},
		{"processed with error", WebhookEvent{ProcessedAt: &now, ProcessingError: "no customer found for event"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.event.ProcessedOK(); got != tc.want {
				t.Fatalf("ProcessedOK() = %v, want %v", got, tc.want)
			}
		})
	}
}

package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"medchat-proxy/internal/logger"
	"medchat-proxy/internal/metrics"
)

func TestConsumeUpdates(t *testing.T) {
	m := metrics.NewMetrics()
	updates := make(chan string, 3)
	updates <- "c1"
	updates <- "c2"
	updates <- "c1"
	close(updates)

	consumeUpdates(updates, logger.Nop(), m)

	if got := testutil.ToFloat64(m.ConversationUpdatesTotal); got != 3 {
		t.Fatalf("conversation updates = %v, want 3", got)
	}
}

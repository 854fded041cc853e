package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcomeCounter(t *testing.T) {
	before := testutil.ToFloat64(CommandOutcomesTotal.WithLabelValues(OutcomeTimeout))
	CommandOutcomesTotal.WithLabelValues(OutcomeTimeout).Inc()
	if got := testutil.ToFloat64(CommandOutcomesTotal.WithLabelValues(OutcomeTimeout)); got != before+1 {
		t.Errorf("timeout outcomes = %v, want %v", got, before+1)
	}
}

func TestRegistryGathers(t *testing.T) {
	WebSocketConnections.Set(0)
	mfs, err := Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "sovd_websocket_connections" {
			found = true
		}
	}
	if !found {
		t.Error("sovd_websocket_connections not registered")
	}
}

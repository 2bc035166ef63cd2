package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRegisteredAndCounting(t *testing.T) {
	before := testutil.ToFloat64(OrdersSubmitted.WithLabelValues("BUY", "entry"))
	OrdersSubmitted.WithLabelValues("BUY", "entry").Inc()
	if got := testutil.ToFloat64(OrdersSubmitted.WithLabelValues("BUY", "entry")); got != before+1 {
		t.Fatalf("expected counter %v, got %v", before+1, got)
	}

	PositionOpen.WithLabelValues("BTC").Set(1)
	if got := testutil.ToFloat64(PositionOpen.WithLabelValues("BTC")); got != 1 {
		t.Fatalf("expected gauge 1, got %v", got)
	}
}

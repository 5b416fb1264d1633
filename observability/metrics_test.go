package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m.NotificationsTotal == nil {
		t.Fatal("NotificationsTotal should not be nil")
	}
	if m.DeliveriesTotal == nil {
		t.Fatal("DeliveriesTotal should not be nil")
	}
	if m.DeliveryLatency == nil {
		t.Fatal("DeliveryLatency should not be nil")
	}
	if m.RetryQueueDepth == nil {
		t.Fatal("RetryQueueDepth should not be nil")
	}
	if m.BatchFlushesTotal == nil {
		t.Fatal("BatchFlushesTotal should not be nil")
	}
	if m.RateLimitRejectionsTotal == nil {
		t.Fatal("RateLimitRejectionsTotal should not be nil")
	}
	if m.DLQSize == nil {
		t.Fatal("DLQSize should not be nil")
	}
}

func TestRecordDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDelivery("delivered", 0.5)
	m.RecordDelivery("delivered", 1.2)
	m.RecordDelivery("failed", 0.3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "signalpost_deliveries_total" {
			found = true
			metrics := f.GetMetric()
			if len(metrics) != 2 { // delivered + failed
				t.Fatalf("expected 2 label combinations, got %d", len(metrics))
			}
		}
	}
	if !found {
		t.Fatal("signalpost_deliveries_total metric not found")
	}
}

func TestRecordNotify(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordNotify("accepted")
	m.RecordNotify("accepted")
	m.RecordNotify("config_missing")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, f := range families {
		if f.GetName() == "signalpost_notifications_total" {
			for _, mf := range f.GetMetric() {
				for _, label := range mf.GetLabel() {
					if label.GetValue() == "accepted" && mf.GetCounter().GetValue() != 2 {
						t.Fatalf("accepted count = %f, want 2", mf.GetCounter().GetValue())
					}
				}
			}
			return
		}
	}
	t.Fatal("signalpost_notifications_total metric not found")
}

func TestGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RetryQueueDepth.Set(7)
	m.DLQSize.Inc()
	m.DLQSize.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	values := map[string]float64{}
	for _, f := range families {
		if len(f.GetMetric()) == 1 && f.GetMetric()[0].GetGauge() != nil {
			values[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	if values["signalpost_retry_queue_depth"] != 7 {
		t.Fatalf("retry queue depth = %f, want 7", values["signalpost_retry_queue_depth"])
	}
	if values["signalpost_dlq_size"] != 2 {
		t.Fatalf("dlq size = %f, want 2", values["signalpost_dlq_size"])
	}
}

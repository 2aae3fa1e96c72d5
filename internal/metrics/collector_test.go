package espmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	espmetrics "github.com/dantte-lp/espd/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := espmetrics.NewCollector(reg)

	if c.ActiveSAs == nil {
		t.Error("ActiveSAs is nil")
	}
	if c.PacketsEncrypted == nil {
		t.Error("PacketsEncrypted is nil")
	}
	if c.PacketsDecrypted == nil {
		t.Error("PacketsDecrypted is nil")
	}
	if c.ReplayDrops == nil {
		t.Error("ReplayDrops is nil")
	}
	if c.MACFailures == nil {
		t.Error("MACFailures is nil")
	}
	if c.ParseErrors == nil {
		t.Error("ParseErrors is nil")
	}

	// Verify all metrics are registered by gathering them.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	// No data yet, so families may be empty -- but registration must not panic.
	_ = families
}

func TestRegisterUnregisterSA(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := espmetrics.NewCollector(reg)

	c.RegisterSA("in")
	if val := gaugeValue(t, c.ActiveSAs, "in"); val != 1 {
		t.Errorf("after RegisterSA(in): gauge = %v, want 1", val)
	}

	c.RegisterSA("out")
	if val := gaugeValue(t, c.ActiveSAs, "out"); val != 1 {
		t.Errorf("after RegisterSA(out): gauge = %v, want 1", val)
	}

	c.UnregisterSA("in")
	if val := gaugeValue(t, c.ActiveSAs, "in"); val != 0 {
		t.Errorf("after UnregisterSA(in): gauge = %v, want 0", val)
	}
	if val := gaugeValue(t, c.ActiveSAs, "out"); val != 1 {
		t.Errorf("out gauge = %v, want 1 (should be unaffected)", val)
	}
}

func TestPacketCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := espmetrics.NewCollector(reg)

	const spi, cipher, mac = "deadbeef", "aes-cbc", "hmac-sha1-96"

	c.IncPacketsEncrypted(spi, cipher, mac)
	c.IncPacketsEncrypted(spi, cipher, mac)
	c.IncPacketsEncrypted(spi, cipher, mac)
	if val := counterValue(t, c.PacketsEncrypted, spi, cipher, mac); val != 3 {
		t.Errorf("PacketsEncrypted = %v, want 3", val)
	}

	c.IncPacketsDecrypted(spi, cipher, mac)
	c.IncPacketsDecrypted(spi, cipher, mac)
	if val := counterValue(t, c.PacketsDecrypted, spi, cipher, mac); val != 2 {
		t.Errorf("PacketsDecrypted = %v, want 2", val)
	}
}

func TestRejectionCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := espmetrics.NewCollector(reg)

	const spi = "deadbeef"

	c.IncReplayDrops(spi)
	if val := counterValue(t, c.ReplayDrops, spi); val != 1 {
		t.Errorf("ReplayDrops = %v, want 1", val)
	}

	c.IncMACFailures(spi)
	c.IncMACFailures(spi)
	if val := counterValue(t, c.MACFailures, spi); val != 2 {
		t.Errorf("MACFailures = %v, want 2", val)
	}

	c.IncParseErrors(spi)
	if val := counterValue(t, c.ParseErrors, spi); val != 1 {
		t.Errorf("ParseErrors = %v, want 1", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a GaugeVec with the given labels.
func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

// counterValue reads the current value of a CounterVec with the given labels.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}

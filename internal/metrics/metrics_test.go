package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はレジストリから指定名のメトリクスファミリーを取得する。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はメトリクスから指定ラベルの値を返す。
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordAccessDecision_IncrementsCounterWithLabels はアプリ別・判定別にカウントされることを検証する。
func TestRecordAccessDecision_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAccessDecision("manager", "no_club")
	c.RecordAccessDecision("manager", "no_club")
	c.RecordAccessDecision("customer", "allow")

	mf := findMetricFamily(t, reg, "clubster_access_decisions_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		app := labelValue(m, "app")
		decision := labelValue(m, "decision")
		val := m.GetCounter().GetValue()
		switch {
		case app == "manager" && decision == "no_club":
			if val != 2 {
				t.Errorf("access_decisions_total{manager,no_club} = %v, want 2", val)
			}
		case app == "customer" && decision == "allow":
			if val != 1 {
				t.Errorf("access_decisions_total{customer,allow} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected labels: app=%s decision=%s", app, decision)
		}
	}
}

// TestRecordStripeLink_IncrementsCounterWithLabel はStripe連携結果がラベル付きで増加することを検証する。
func TestRecordStripeLink_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStripeLink(LinkResultSuccess)
	c.RecordStripeLink(LinkResultPersistenceError)
	c.RecordStripeLink(LinkResultSuccess)

	mf := findMetricFamily(t, reg, "clubster_stripe_link_total")
	for _, m := range mf.GetMetric() {
		result := labelValue(m, "result")
		val := m.GetCounter().GetValue()
		switch result {
		case LinkResultSuccess:
			if val != 2 {
				t.Errorf("stripe_link_total{success} = %v, want 2", val)
			}
		case LinkResultPersistenceError:
			if val != 1 {
				t.Errorf("stripe_link_total{persistence_error} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected label value: %s", result)
		}
	}
}

// TestRecordStripeExchangeLatency_ObservesHistogram はコード交換レイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordStripeExchangeLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStripeExchangeLatency(100 * time.Millisecond)
	c.RecordStripeExchangeLatency(2 * time.Second)

	h := findMetricFamily(t, reg, "clubster_stripe_exchange_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

// TestRecordReconcile_IncrementsCounter は再調整結果カウンタが増加することを検証する。
func TestRecordReconcile_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReconcile(ReconcileResultRetried)
	c.RecordReconcile(ReconcileResultApplied)

	mf := findMetricFamily(t, reg, "clubster_reconcile_total")
	if len(mf.GetMetric()) != 2 {
		t.Errorf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAccessDecision("customer", "public")
	c.RecordStripeLink(LinkResultSuccess)
	c.RecordStripeExchangeLatency(500 * time.Millisecond)
	c.RecordReconcile(ReconcileResultApplied)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"clubster_access_decisions_total",
		"clubster_stripe_link_total",
		"clubster_stripe_exchange_latency_seconds",
		"clubster_reconcile_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorとNopがMetricsCollectorを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
	var _ MetricsCollector = Nop{}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordStripeLink(LinkResultSuccess)
	c2.RecordStripeLink(LinkResultSuccess)
	c2.RecordStripeLink(LinkResultSuccess)

	val1 := findMetricFamily(t, reg1, "clubster_stripe_link_total").GetMetric()[0].GetCounter().GetValue()
	val2 := findMetricFamily(t, reg2, "clubster_stripe_link_total").GetMetric()[0].GetCounter().GetValue()

	if val1 != 1 {
		t.Errorf("reg1 stripe_link = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 stripe_link = %v, want 2", val2)
	}
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue は指定名のカウンター系メトリクスの値を返す。見つからない場合は-1。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		if len(mf.GetMetric()) != 1 {
			t.Fatalf("expected 1 metric for %s, got %d", name, len(mf.GetMetric()))
		}
		m := mf.GetMetric()[0]
		if m.GetCounter() != nil {
			return m.GetCounter().GetValue()
		}
		return m.GetGauge().GetValue()
	}
	return -1
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestWSConnectionGauge は接続確立と終了でゲージが増減することを検証する。
func TestWSConnectionGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.WSConnectionOpened()
	c.WSConnectionOpened()
	c.WSConnectionClosed()

	if got := counterValue(t, reg, "hanasu_ws_connections"); got != 1 {
		t.Errorf("ws_connections = %v, want 1", got)
	}
}

// TestRecordWSAuth_SuccessAndFailure は認証結果ごとに別のカウンタが増加することを検証する。
func TestRecordWSAuth_SuccessAndFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWSAuth(true)
	c.RecordWSAuth(true)
	c.RecordWSAuth(false)

	if got := counterValue(t, reg, "hanasu_ws_auth_success_total"); got != 2 {
		t.Errorf("ws_auth_success_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "hanasu_ws_auth_failure_total"); got != 1 {
		t.Errorf("ws_auth_failure_total = %v, want 1", got)
	}
}

// TestRecordWSFrame_LabelsByType はメッセージ種別ごとにラベル付けされることを検証する。
func TestRecordWSFrame_LabelsByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWSFrame("chat_message")
	c.RecordWSFrame("chat_message")
	c.RecordWSFrame("speech_practice")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() != "hanasu_ws_frames_total" {
			continue
		}
		found = true
		if len(mf.GetMetric()) != 2 {
			t.Fatalf("expected 2 labeled metrics, got %d", len(mf.GetMetric()))
		}
		for _, m := range mf.GetMetric() {
			label := m.GetLabel()[0].GetValue()
			val := m.GetCounter().GetValue()
			switch label {
			case "chat_message":
				if val != 2 {
					t.Errorf("frames[chat_message] = %v, want 2", val)
				}
			case "speech_practice":
				if val != 1 {
					t.Errorf("frames[speech_practice] = %v, want 1", val)
				}
			default:
				t.Errorf("unexpected label %q", label)
			}
		}
	}
	if !found {
		t.Error("hanasu_ws_frames_total metric not found")
	}
}

// TestRecordChatMessage_IncrementsCounter はチャットメッセージカウンタが増加することを検証する。
func TestRecordChatMessage_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordChatMessage()

	if got := counterValue(t, reg, "hanasu_chat_messages_total"); got != 1 {
		t.Errorf("chat_messages_total = %v, want 1", got)
	}
}

// TestRecordAnalysisLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordAnalysisLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAnalysisLatency(250 * time.Millisecond)
	c.RecordAnalysisLatency(500 * time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() != "hanasu_emotion_analysis_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 2 {
			t.Errorf("sample count = %d, want 2", h.GetSampleCount())
		}
		if got := h.GetSampleSum(); got < 0.74 || got > 0.76 {
			t.Errorf("sample sum = %v, want 0.75", got)
		}
	}
	if !found {
		t.Error("hanasu_emotion_analysis_latency_seconds metric not found")
	}
}

// TestRecordAnalysisFailure_IncrementsCounter は分析失敗カウンタが増加することを検証する。
func TestRecordAnalysisFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAnalysisFailure()
	c.RecordAnalysisFailure()

	if got := counterValue(t, reg, "hanasu_emotion_analysis_failures_total"); got != 2 {
		t.Errorf("analysis_failures_total = %v, want 2", got)
	}
}

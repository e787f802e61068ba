package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"lockboxchain/core/ledger"
	"lockboxchain/core/types"
)

func latencySamples(t *testing.T, m *LedgerMetrics, op string) uint64 {
	t.Helper()
	var out dto.Metric
	if err := m.latency.WithLabelValues(op).(prometheus.Metric).Write(&out); err != nil {
		t.Fatalf("read latency histogram: %v", err)
	}
	return out.GetHistogram().GetSampleCount()
}

func TestLedgerMetricsObserveTx(t *testing.T) {
	m := Ledger()
	beforeSamples := latencySamples(t, m, "lockbox.openRequest")
	ok := m.txs.WithLabelValues("lockbox.openRequest", "ok")
	failed := m.txs.WithLabelValues("lockbox.openRequest", "invariant")
	beforeOK := testutil.ToFloat64(ok)
	beforeFailed := testutil.ToFloat64(failed)

	m.ObserveTx("lockbox.openRequest", "ok", time.Millisecond)
	m.ObserveTx("lockbox.openRequest", "ok", time.Millisecond)
	m.ObserveTx("lockbox.openRequest", "invariant", time.Millisecond)

	if diff := testutil.ToFloat64(ok) - beforeOK; diff != 2 {
		t.Fatalf("expected 2 committed observations, got %f", diff)
	}
	if diff := testutil.ToFloat64(failed) - beforeFailed; diff != 1 {
		t.Fatalf("expected 1 failed observation, got %f", diff)
	}
	if diff := latencySamples(t, m, "lockbox.openRequest") - beforeSamples; diff != 3 {
		t.Fatalf("expected 3 latency samples, got %d", diff)
	}

	var nilMetrics *LedgerMetrics
	nilMetrics.ObserveTx("noop", "ok", 0)
}

func TestEventMetricsTrackSlashesAndEscrow(t *testing.T) {
	m := Events()
	beforeSlashes := testutil.ToFloat64(m.slashes)
	beforeSlashed := testutil.ToFloat64(m.slashed)
	beforeEscrowed := testutil.ToFloat64(m.escrowed)
	beforeWriter := testutil.ToFloat64(m.paid.WithLabelValues("writer"))

	m.Emit(ledger.CommittedEvent{Height: 3, Event: &types.Event{
		Type:       "lockbox.request.opened",
		Attributes: map[string]string{"escrowed": "24"},
	}})
	m.Emit(ledger.CommittedEvent{Height: 4, Event: &types.Event{
		Type:       "lockbox.slashed",
		Attributes: map[string]string{"amount": "300"},
	}})
	m.Emit(ledger.CommittedEvent{Height: 5, Event: &types.Event{
		Type:       "lockbox.request.settled",
		Attributes: map[string]string{"writerPaid": "not-a-number"},
	}})

	if diff := testutil.ToFloat64(m.slashes) - beforeSlashes; diff != 1 {
		t.Fatalf("expected 1 slash, got %f", diff)
	}
	if diff := testutil.ToFloat64(m.slashed) - beforeSlashed; diff != 300 {
		t.Fatalf("expected slashed amount 300, got %f", diff)
	}
	if diff := testutil.ToFloat64(m.escrowed) - beforeEscrowed; diff != 24 {
		t.Fatalf("expected escrowed amount 24, got %f", diff)
	}
	if diff := testutil.ToFloat64(m.paid.WithLabelValues("writer")) - beforeWriter; diff != 0 {
		t.Fatalf("malformed amounts must be ignored, got %f", diff)
	}
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.errors.WithLabelValues("lockbox", "lockbox_openRequest", "-32033"))
	m.Observe("lockbox", "lockbox_openRequest", -32033, time.Millisecond)
	m.Observe("lockbox", "lockbox_openRequest", 0, time.Millisecond)
	if diff := testutil.ToFloat64(m.errors.WithLabelValues("lockbox", "lockbox_openRequest", "-32033")) - before; diff != 1 {
		t.Fatalf("expected 1 error observation, got %f", diff)
	}
	m.RecordThrottle("", "")
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")); got < 1 {
		t.Fatalf("expected throttle to be recorded, got %f", got)
	}
}

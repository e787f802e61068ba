package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"lockboxchain/core/events"
	"lockboxchain/core/ledger"
)

type eventMetrics struct {
	events   *prometheus.CounterVec
	slashes  prometheus.Counter
	slashed  prometheus.Counter
	escrowed prometheus.Counter
	paid     *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed protocol events. It
// implements events.Emitter so it can sit in the executor fan-out.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lockbox",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Committed events segmented by type.",
			}, []string{"type"}),
			slashes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lockbox",
				Subsystem: "events",
				Name:      "slashes_total",
				Help:      "Count of deposits slashed to a challenger.",
			}),
			slashed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lockbox",
				Subsystem: "events",
				Name:      "slashed_amount_total",
				Help:      "Sum of deposit funds forfeited through challenges.",
			}),
			escrowed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lockbox",
				Subsystem: "events",
				Name:      "escrowed_amount_total",
				Help:      "Sum of reader payments moved into request escrows.",
			}),
			paid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lockbox",
				Subsystem: "events",
				Name:      "paid_amount_total",
				Help:      "Sum of escrow disbursements segmented by recipient role.",
			}, []string{"role"}),
		}
		prometheus.MustRegister(
			eventRegistry.events,
			eventRegistry.slashes,
			eventRegistry.slashed,
			eventRegistry.escrowed,
			eventRegistry.paid,
		)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()

	committed, ok := evt.(ledger.CommittedEvent)
	if !ok || committed.Event == nil {
		return
	}
	attrs := committed.Event.Attributes
	switch eventType {
	case "lockbox.slashed":
		m.slashes.Inc()
		addAmount(m.slashed, attrs["amount"])
	case "lockbox.request.opened":
		addAmount(m.escrowed, attrs["escrowed"])
	case "lockbox.result.posted":
		addAmount(m.paid.WithLabelValues("node"), attrs["fee"])
	case "lockbox.request.settled":
		addAmount(m.paid.WithLabelValues("writer"), attrs["writerPaid"])
	}
}

func addAmount(c prometheus.Counter, raw string) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	c.Add(value)
}

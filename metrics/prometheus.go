package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/burstfence/core"
)

// Collector exports bucket events as Prometheus counters labelled by policy.
type Collector struct {
	TokensConsumed   *prometheus.CounterVec
	ConsumeRejected  *prometheus.CounterVec
	TokensRefilled   *prometheus.CounterVec
	TokensOverflowed *prometheus.CounterVec
	ConsumeCancelled *prometheus.CounterVec
}

// NewCollector creates and registers the bucket metrics on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	newCounter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{"policy"})
	}

	c := &Collector{
		TokensConsumed:   newCounter("burstfence_tokens_consumed_total", "Total number of tokens consumed."),
		ConsumeRejected:  newCounter("burstfence_consume_rejected_total", "Total number of consume attempts rejected for lack of tokens."),
		TokensRefilled:   newCounter("burstfence_tokens_refilled_total", "Total number of tokens added to buckets."),
		TokensOverflowed: newCounter("burstfence_tokens_overflowed_total", "Total number of refilled tokens lost to full buckets."),
		ConsumeCancelled: newCounter("burstfence_consume_cancelled_total", "Total number of blocking consumes abandoned before tokens arrived."),
	}

	for _, collector := range []prometheus.Collector{
		c.TokensConsumed,
		c.ConsumeRejected,
		c.TokensRefilled,
		c.TokensOverflowed,
		c.ConsumeCancelled,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ForBucket returns an observer for the bucket name. Only the policy part of
// the name is used as a label.
func (c *Collector) ForBucket(name string) core.Observer {
	policy := PolicyOf(name)
	return core.ObserverFunc(func(e core.Event) {
		delta := Delta(e)
		if delta.Consumed > 0 {
			c.TokensConsumed.WithLabelValues(policy).Add(float64(delta.Consumed))
		}
		if delta.Rejected > 0 {
			c.ConsumeRejected.WithLabelValues(policy).Add(float64(delta.Rejected))
		}
		if delta.Refilled > 0 {
			c.TokensRefilled.WithLabelValues(policy).Add(float64(delta.Refilled))
		}
		if delta.Overflowed > 0 {
			c.TokensOverflowed.WithLabelValues(policy).Add(float64(delta.Overflowed))
		}
		if delta.Cancelled > 0 {
			c.ConsumeCancelled.WithLabelValues(policy).Add(float64(delta.Cancelled))
		}
	})
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

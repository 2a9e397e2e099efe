// Package metrics exports Prometheus metrics for blocking stacks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcodamonte/blockingstack/stack"
)

var metricsNamespace = "blockingstack"

// Collection holds the metric vectors shared by every stack registered on the
// same Registerer. Each stack is told apart by the "stack" label.
type Collection struct {
	offers        *prometheus.CounterVec
	pops          *prometheus.CounterVec
	waits         *prometheus.HistogramVec
	timeouts      *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	depth         *prometheus.GaugeVec
}

// New registers the metric vectors on reg.
func New(reg prometheus.Registerer) *Collection {
	f := promauto.With(reg)

	return &Collection{
		offers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "offers_total",
			Help:      "Insert attempts, by outcome.",
		}, []string{"stack", "result"}),
		pops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pops_total",
			Help:      "Elements removed.",
		}, []string{"stack"}),
		waits: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "wait_seconds",
			Help:      "Time spent parked on a condition variable.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 9),
		}, []string{"stack", "op"}),
		timeouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "timeouts_total",
			Help:      "Timed inserts that gave up.",
		}, []string{"stack", "op"}),
		cancellations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cancellations_total",
			Help:      "Blocking calls abandoned because their context was done.",
		}, []string{"stack", "op"}),
		depth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "depth",
			Help:      "Elements currently held.",
		}, []string{"stack"}),
	}
}

// Stack returns an observer that records into c under the given stack label.
func (c *Collection) Stack(name string) *StackObserver {
	return &StackObserver{
		accepted: c.offers.WithLabelValues(name, "accepted"),
		rejected: c.offers.WithLabelValues(name, "rejected"),
		pops:     c.pops.WithLabelValues(name),
		waits: map[stack.Op]prometheus.Observer{
			stack.OpOffer: c.waits.WithLabelValues(name, stack.OpOffer.String()),
			stack.OpPop:   c.waits.WithLabelValues(name, stack.OpPop.String()),
		},
		timeouts: map[stack.Op]prometheus.Counter{
			stack.OpOffer: c.timeouts.WithLabelValues(name, stack.OpOffer.String()),
			stack.OpPop:   c.timeouts.WithLabelValues(name, stack.OpPop.String()),
		},
		cancellations: map[stack.Op]prometheus.Counter{
			stack.OpOffer: c.cancellations.WithLabelValues(name, stack.OpOffer.String()),
			stack.OpPop:   c.cancellations.WithLabelValues(name, stack.OpPop.String()),
		},
		depth: c.depth.WithLabelValues(name),
	}
}

// StackObserver implements stack.Observer on top of a Collection. The label
// lookups happen once, in Collection.Stack, so callbacks are allocation free.
type StackObserver struct {
	accepted      prometheus.Counter
	rejected      prometheus.Counter
	pops          prometheus.Counter
	waits         map[stack.Op]prometheus.Observer
	timeouts      map[stack.Op]prometheus.Counter
	cancellations map[stack.Op]prometheus.Counter
	depth         prometheus.Gauge
}

var _ stack.Observer = (*StackObserver)(nil)

func (o *StackObserver) Offered(accepted bool) {
	if accepted {
		o.accepted.Inc()
		return
	}
	o.rejected.Inc()
}

func (o *StackObserver) Popped() {
	o.pops.Inc()
}

func (o *StackObserver) Waited(op stack.Op, d time.Duration) {
	if h, ok := o.waits[op]; ok {
		h.Observe(d.Seconds())
	}
}

func (o *StackObserver) TimedOut(op stack.Op) {
	if c, ok := o.timeouts[op]; ok {
		c.Inc()
	}
}

func (o *StackObserver) Cancelled(op stack.Op) {
	if c, ok := o.cancellations[op]; ok {
		c.Inc()
	}
}

func (o *StackObserver) Depth(n int) {
	o.depth.Set(float64(n))
}

// Handler exposes the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Package metrics exports the requests served by a dispatcher
// to prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegistudio/go-dokan"
	"github.com/aegistudio/go-dokan/internal/logger"
)

const (
	defaultNamespace = "dokan"
	handlerPattern   = "/metrics"
)

// Observer counts the requests of a dispatcher by operation
// and status, and records their latency.
type Observer struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	registerer prometheus.Registerer
	option     *option
}

type option struct {
	namespace string
	buckets   []float64
	labels    prometheus.Labels
}

// Option customizes the observer.
type Option func(*option)

// WithNamespace replaces the namespace of the metric names.
func WithNamespace(namespace string) Option {
	return func(o *option) {
		o.namespace = namespace
	}
}

// WithBuckets replaces the latency buckets, in seconds.
func WithBuckets(buckets ...float64) Option {
	return func(o *option) {
		o.buckets = buckets
	}
}

// WithConstLabels attaches the labels to every metric, which
// tells apart the volumes mounted by the same process.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(o *option) {
		o.labels = labels
	}
}

// New creates the observer and registers its metrics.
func New(registerer prometheus.Registerer, opts ...Option) (*Observer, error) {
	option := &option{
		namespace: defaultNamespace,
		buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
	}
	for _, opt := range opts {
		opt(option)
	}
	result := &Observer{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   option.namespace,
				Subsystem:   "dispatcher",
				Name:        "requests_total",
				Help:        "requests served by the dispatcher",
				ConstLabels: option.labels,
			},
			[]string{"operation", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   option.namespace,
				Subsystem:   "dispatcher",
				Name:        "request_duration_seconds",
				Help:        "time spent serving the requests",
				Buckets:     option.buckets,
				ConstLabels: option.labels,
			},
			[]string{"operation"},
		),
		registerer: registerer,
		option:     option,
	}
	for _, collector := range []prometheus.Collector{
		result.requests, result.latency,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
	}
	return result, nil
}

// ObserveRequest implements dokan.Observer.
func (o *Observer) ObserveRequest(
	operation string, status dokan.Status, elapsed time.Duration,
) {
	o.requests.WithLabelValues(operation, status.String()).Inc()
	o.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

var _ dokan.Observer = (*Observer)(nil)

// WatchHandles exports the count of handles open on the
// dispatcher, sampled whenever the metrics are gathered.
func (o *Observer) WatchHandles(d *dokan.Dispatcher) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   o.option.namespace,
		Subsystem:   "dispatcher",
		Name:        "open_handles",
		Help:        "handles created and not closed yet",
		ConstLabels: o.option.labels,
	}, func() float64 {
		return float64(d.OpenHandles())
	})
	return errors.Wrap(o.registerer.Register(gauge), "register handle gauge")
}

// Serve exposes the gathered metrics over http at /metrics
// until the context is done.
func Serve(
	ctx context.Context, listen string,
	gatherer prometheus.Gatherer, log *logger.Logger,
) error {
	mux := http.NewServeMux()
	mux.Handle(handlerPattern, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		Timeout: 5 * time.Second,
	}))
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	log.Infof("metrics: serving on %s%s", listen, handlerPattern)
	select {
	case err := <-errCh:
		return errors.Wrapf(err, "metrics: listen %q", listen)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "granary"

var (
	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Total writes issued, by destination table and result.",
		},
		[]string{"table", "result"},
	)
	BatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total batches submitted to the writer.",
		},
	)
	WriteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_latency_seconds",
			Help:      "Latency of individual store writes.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"table"},
	)
	InflightWrites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_writes",
			Help:      "Writes submitted but not yet settled.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		WritesTotal,
		BatchesTotal,
		WriteLatency,
		InflightWrites,
	)
}

func Expose(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
	}()
}

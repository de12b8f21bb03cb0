package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    assemblies = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfassembly",
            Name:      "assemblies_total",
            Help:      "Total assembly invocations by operation and result (ok, partial, empty, failed, cancelled)",
        },
        []string{"op", "result"},
    )

    assemblyLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pdfassembly",
            Name:      "assembly_duration_seconds",
            Help:      "Duration of merge/split invocations",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"op"},
    )

    itemsProcessed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfassembly",
            Name:      "items_processed_total",
            Help:      "Source items processed, labeled by operation and outcome",
        },
        []string{"op", "outcome"},
    )

    outputsEncoded = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfassembly",
            Name:      "outputs_encoded_total",
            Help:      "Output documents by encode outcome",
        },
        []string{"outcome"},
    )

    deliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfassembly",
            Name:      "deliveries_total",
            Help:      "Output deliveries by sink and result (delivered, failed, retried, cancelled)",
        },
        []string{"sink", "result"},
    )

    activeJobs = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "pdfassembly",
            Name:      "active_jobs",
            Help:      "Assembly jobs currently running",
        },
    )

    once sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
    once.Do(func() {
        prometheus.MustRegister(assemblies, assemblyLatency, itemsProcessed, outputsEncoded, deliveries, activeJobs)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveAssembly(op, result string, dur time.Duration) {
    assemblies.WithLabelValues(op, result).Inc()
    assemblyLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func IncItem(op, outcome string)          { itemsProcessed.WithLabelValues(op, outcome).Inc() }
func IncOutput(outcome string)            { outputsEncoded.WithLabelValues(outcome).Inc() }
func IncDelivery(sink, result string)     { deliveries.WithLabelValues(sink, result).Inc() }
func JobStarted()                         { activeJobs.Inc() }
func JobFinished()                        { activeJobs.Dec() }

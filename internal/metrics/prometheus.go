package metrics

import (
	"log"
	"net/http"
	"sync"

	"labelbot/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus records workflow activity as Prometheus metrics. Collectors are
// registered lazily on first use.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	labelsSet        *prometheus.CounterVec
	labelsCleared    prometheus.Counter
	uploads          prometheus.Counter
	samplesUploaded  prometheus.Counter
	partitions       prometheus.Counter
	resets           prometheus.Counter
	samplesTotal     prometheus.Gauge
	labelerCompleted *prometheus.GaugeVec
	labelerAssigned  *prometheus.GaugeVec
}

// NewPrometheus uses prometheus.DefaultRegisterer when reg is nil and the
// "labelbot" namespace when namespace is empty.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "labelbot"
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.labelsSet = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "ledger",
			Name:      "labels_set_total",
			Help:      "Label decisions written, by label.",
		}, []string{"label"})
		p.labelsCleared = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "ledger",
			Name:      "labels_cleared_total",
			Help:      "Label decisions reset to unset.",
		})
		p.uploads = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "uploads_total",
			Help:      "Accepted sample uploads.",
		})
		p.samplesUploaded = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "samples_uploaded_total",
			Help:      "Samples appended to the store.",
		})
		p.partitions = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "partitions_total",
			Help:      "Times the samples were re-partitioned across labelers.",
		})
		p.resets = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "resets_total",
			Help:      "Full data resets.",
		})
		p.samplesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "samples",
			Help:      "Samples currently in the store.",
		})
		p.labelerCompleted = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "progress",
			Name:      "completed_samples",
			Help:      "Labeled samples per labeler assignment.",
		}, []string{"labeler"})
		p.labelerAssigned = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "progress",
			Name:      "assigned_samples",
			Help:      "Assigned samples per labeler.",
		}, []string{"labeler"})

		p.reg.MustRegister(
			p.labelsSet, p.labelsCleared, p.uploads, p.samplesUploaded,
			p.partitions, p.resets, p.samplesTotal,
			p.labelerCompleted, p.labelerAssigned,
		)
	})
}

func (p *Prometheus) LabelSet(label domain.Label) {
	p.ensureRegistered()
	p.labelsSet.WithLabelValues(string(label)).Inc()
}

func (p *Prometheus) LabelCleared() {
	p.ensureRegistered()
	p.labelsCleared.Inc()
}

func (p *Prometheus) Uploaded(samples, total int) {
	p.ensureRegistered()
	p.uploads.Inc()
	p.samplesUploaded.Add(float64(samples))
	p.samplesTotal.Set(float64(total))
}

func (p *Prometheus) Partitioned() {
	p.ensureRegistered()
	p.partitions.Inc()
}

func (p *Prometheus) Reset() {
	p.ensureRegistered()
	p.resets.Inc()
	p.samplesTotal.Set(0)
	p.labelerCompleted.Reset()
	p.labelerAssigned.Reset()
}

// ObserveProgress replaces the per-labeler gauges with the given snapshot.
func (p *Prometheus) ObserveProgress(total int, progress []domain.Progress) {
	p.ensureRegistered()
	p.samplesTotal.Set(float64(total))
	p.labelerCompleted.Reset()
	p.labelerAssigned.Reset()
	for _, pr := range progress {
		p.labelerCompleted.WithLabelValues(pr.Labeler).Set(float64(pr.Completed))
		p.labelerAssigned.WithLabelValues(pr.Labeler).Set(float64(pr.Total))
	}
}

// Serve exposes the default registry on addr in the background. An empty
// addr disables the endpoint.
func Serve(addr string) {
	if addr == "" {
		log.Println("Metrics endpoint disabled (metrics_addr not set)")
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("Metrics listening on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()
}

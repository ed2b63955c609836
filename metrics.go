package ragfile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by readers and writers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	bytesRead      prometheus.Counter
	bytesWritten   prometheus.Counter
	ioRetries      *prometheus.CounterVec
	recordsRead    *prometheus.CounterVec
	recordsWritten *prometheus.CounterVec
	sections       prometheus.Counter
	relocations    prometheus.Counter
	errors         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		bytesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "ragfile_read_bytes_total",
			Help: "Bytes read from ragfile streams",
		}),
		bytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "ragfile_written_bytes_total",
			Help: "Bytes written to ragfile streams",
		}),
		ioRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragfile_io_retries_total",
			Help: "Retried short or transient stream operations",
		}, []string{"op"}),
		recordsRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragfile_records_read_total",
			Help: "Records decoded by cursors",
		}, []string{"kind"}),
		recordsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragfile_records_written_total",
			Help: "Records encoded by writers",
		}, []string{"kind"}),
		sections: f.NewCounter(prometheus.CounterOpts{
			Name: "ragfile_sections_written_total",
			Help: "Sections completed by writers",
		}),
		relocations: f.NewCounter(prometheus.CounterOpts{
			Name: "ragfile_index_relocations_total",
			Help: "Finalizes that shifted sections to grow the index reservation",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragfile_errors_total",
			Help: "Structural and I/O errors by operation",
		}, []string{"op"}),
	}
}

func (m *Metrics) read(n int) {
	if m != nil {
		m.bytesRead.Add(float64(n))
	}
}

func (m *Metrics) write(n int) {
	if m != nil {
		m.bytesWritten.Add(float64(n))
	}
}

func (m *Metrics) retry(op string) {
	if m != nil {
		m.ioRetries.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) record(kind Kind, written bool) {
	if m == nil {
		return
	}
	if written {
		m.recordsWritten.WithLabelValues(kind.String()).Inc()
	} else {
		m.recordsRead.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) section() {
	if m != nil {
		m.sections.Inc()
	}
}

func (m *Metrics) relocation() {
	if m != nil {
		m.relocations.Inc()
	}
}

func (m *Metrics) fail(op string) {
	if m != nil {
		m.errors.WithLabelValues(op).Inc()
	}
}

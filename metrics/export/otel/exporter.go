package otel

import (
	"context"
	"errors"
	"fmt"

	identity "github.com/allocar/identity"
	"github.com/allocar/identity/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() identity.MetricsSnapshot
	AuditDropped() uint64
	NotificationsDropped() uint64
}

// reading records one instrument's value for the current collection.
type reading func(o metric.Observer, snap identity.MetricsSnapshot, cumulative map[identity.MetricID][8]uint64)

// Exporter publishes engine counters as OTel observable instruments. One
// callback takes a single snapshot per collection cycle.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	readings     []reading
}

func NewExporter(meter metric.Meter, engine *identity.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	counter := func(name, help string, value func(identity.MetricsSnapshot) uint64) error {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return fmt.Errorf("create observable counter %s: %w", name, err)
		}
		observables = append(observables, ins)
		e.readings = append(e.readings, func(o metric.Observer, snap identity.MetricsSnapshot, _ map[identity.MetricID][8]uint64) {
			o.ObserveInt64(ins, int64(value(snap)))
		})
		return nil
	}
	gauge := func(name, help string, id identity.MetricID, bucket int) error {
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
		if err != nil {
			return fmt.Errorf("create histogram gauge %s: %w", name, err)
		}
		observables = append(observables, ins)
		e.readings = append(e.readings, func(o metric.Observer, _ identity.MetricsSnapshot, cumulative map[identity.MetricID][8]uint64) {
			o.ObserveInt64(ins, int64(cumulative[id][bucket]))
		})
		return nil
	}

	for _, def := range internaldefs.CounterDefs {
		id := def.ID
		if err := counter(def.Name, def.Help, func(s identity.MetricsSnapshot) uint64 { return s.Counters[id] }); err != nil {
			return nil, err
		}
	}

	last := len(internaldefs.HistogramBoundSuffix) - 1
	for _, def := range internaldefs.HistogramDefs {
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			if err := gauge(def.Name+"_bucket_le_"+suffix, "Cumulative histogram bucket count.", def.ID, i); err != nil {
				return nil, err
			}
		}
		// The +Inf bucket doubles as the sample count.
		if err := gauge(def.Name+"_count", "Histogram total sample count.", def.ID, last); err != nil {
			return nil, err
		}
	}

	if err := counter("identity_audit_dropped_total", "Dropped audit events due to dispatcher backpressure.",
		func(identity.MetricsSnapshot) uint64 { return source.AuditDropped() }); err != nil {
		return nil, err
	}
	if err := counter("identity_notification_queue_dropped_total", "Notifications refused by the delivery queue.",
		func(identity.MetricsSnapshot) uint64 { return source.NotificationsDropped() }); err != nil {
		return nil, err
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	cumulative := make(map[identity.MetricID][8]uint64, len(internaldefs.HistogramDefs))
	for _, def := range internaldefs.HistogramDefs {
		cumulative[def.ID] = internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[def.ID]))
	}
	for _, read := range e.readings {
		read(o, snap, cumulative)
	}
	return nil
}

// Close unregisters the callback. It is safe on a nil Exporter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
